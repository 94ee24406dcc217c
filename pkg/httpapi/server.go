package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/brunohrs/stackpilot/internal/observability"
	"github.com/brunohrs/stackpilot/pkg/orchestrator"
)

// ServerOptions holds HTTP server configuration
type ServerOptions struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// Server exposes the orchestrator over HTTP and WebSocket.
type Server struct {
	options        ServerOptions
	server         *http.Server
	orch           *orchestrator.Orchestrator
	chatSchema     *gojsonschema.Schema
	upgrader       websocket.Upgrader
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// NewServer creates a new API server
func NewServer(options ServerOptions, orch *orchestrator.Orchestrator, logger zerolog.Logger) (*Server, error) {
	if options.Port == 0 {
		options.Port = 8420
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.ShutdownTimeout == 0 {
		options.ShutdownTimeout = 30 * time.Second
	}

	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(chatRequestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat request schema: %w", err)
	}

	observability.EnsureRegistered()

	return &Server{
		options:    options,
		orch:       orch,
		chatSchema: schema,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:    logger.With().Str("component", "httpapi").Logger(),
		startTime: time.Now(),
	}, nil
}

// Handler returns the server's routing handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/api/v1/chat", s.handleChat)
	mux.HandleFunc("/ws/chat", s.handleChatSocket)
	return mux
}

// Start starts the API server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down API server")

	// Wait for in-flight requests with timeout
	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(s.options.ShutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Seconds(),
		"timestamp": time.Now().UnixMilli(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
