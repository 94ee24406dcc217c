package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/brunohrs/stackpilot/internal/tracing"
)

type socketPrompt struct {
	Prompt string `json:"prompt"`
}

type socketFragment struct {
	Fragment string `json:"fragment"`
}

type socketAnswer struct {
	Answer   string `json:"answer"`
	Degraded bool   `json:"degraded,omitempty"`
	Done     bool   `json:"done"`
}

type socketError struct {
	Error string `json:"error"`
	Done  bool   `json:"done"`
}

// handleChatSocket handles GET /ws/chat. The client sends one prompt per
// message and receives fragment frames as they arrive, then a final frame
// carrying the assembled answer.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	clientID, _ := gonanoid.New()
	ctx := tracing.WithRequestID(r.Context(), clientID)
	logger := s.logger.With().Str("clientId", clientID).Logger()
	logger.Info().Msg("Chat client connected")

	defer func() {
		conn.Close()
		logger.Info().Msg("Chat client disconnected")
	}()

	for {
		var req socketPrompt
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error().Err(err).Msg("WebSocket error")
			}
			return
		}

		if strings.TrimSpace(req.Prompt) == "" {
			if err := conn.WriteJSON(socketError{Error: "prompt must not be blank", Done: true}); err != nil {
				return
			}
			continue
		}

		s.inFlightReqs.Add(1)
		result := s.orch.AskStream(ctx, req.Prompt, func(fragment string) {
			// A failed fragment write surfaces on the next read.
			_ = conn.WriteJSON(socketFragment{Fragment: fragment})
		})
		s.inFlightReqs.Done()

		if !result.OK() {
			if err := conn.WriteJSON(socketError{Error: result.ErrorMessage(), Done: true}); err != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(socketAnswer{
			Answer:   result.Answer,
			Degraded: result.Degraded,
			Done:     true,
		}); err != nil {
			return
		}
	}
}
