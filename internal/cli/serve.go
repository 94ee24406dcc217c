package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brunohrs/stackpilot/internal/config"
	"github.com/brunohrs/stackpilot/internal/tracing"
	"github.com/brunohrs/stackpilot/pkg/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server exposing the agent over REST and WebSocket.

Endpoints:
  POST /api/v1/chat   send a prompt, receive the full answer
  GET  /ws/chat       stream answer fragments over WebSocket
  GET  /health        liveness probe
  GET  /metrics       Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}

	l, err := setupLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer l.Close()

	if err := tracing.InitOpenTelemetry("stackpilot"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing")
	}
	defer func() {
		_ = tracing.ShutdownOpenTelemetry(cmd.Context())
	}()

	if errs := config.NewValidator().ValidateConfig(cfg); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	srv, err := httpapi.NewServer(httpapi.ServerOptions{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}, orch, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	// Credential and endpoint changes need a restart; the log level
	// is applied live.
	watcher, err := config.NewWatcher(loader, func(updated *config.Config) {
		if level, err := zerolog.ParseLevel(updated.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
		}
		log.Info().Msg("Configuration reloaded; credential changes apply after restart")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable")
	} else if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
	} else {
		defer watcher.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal")
	}

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("failed to stop API server: %w", err)
	}

	return nil
}
