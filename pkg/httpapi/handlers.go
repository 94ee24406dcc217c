package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/xeipuuv/gojsonschema"

	"github.com/brunohrs/stackpilot/internal/tracing"
)

// chatRequestSchema constrains the chat request body.
const chatRequestSchema = `{
	"type": "object",
	"properties": {
		"prompt": {
			"type": "string",
			"minLength": 1,
			"maxLength": 32768
		}
	},
	"required": ["prompt"],
	"additionalProperties": false
}`

type chatRequest struct {
	Prompt string `json:"prompt"`
}

type chatResponse struct {
	Answer   string `json:"answer"`
	Degraded bool   `json:"degraded,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleChat handles POST /api/v1/chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	requestID, _ := gonanoid.New()
	logger := s.logger.With().Str("requestId", requestID).Logger()

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read request body")
		s.sendJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}

	if msg, ok := s.validateChatRequest(rawBody); !ok {
		logger.Warn().Str("reason", msg).Msg("Rejected chat request")
		s.sendJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return
	}

	var req chatRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		s.sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if strings.TrimSpace(req.Prompt) == "" {
		s.sendJSON(w, http.StatusBadRequest, errorResponse{Error: "prompt must not be blank"})
		return
	}

	ctx := tracing.WithRequestID(r.Context(), requestID)
	result := s.orch.Ask(ctx, req.Prompt)
	duration := time.Since(startTime).Milliseconds()

	if !result.OK() {
		logger.Error().
			Err(result.Err).
			Int64("duration", duration).
			Msg("Chat request failed")
		s.sendJSON(w, http.StatusBadGateway, errorResponse{Error: result.ErrorMessage()})
		return
	}

	logger.Info().
		Int64("duration", duration).
		Bool("degraded", result.Degraded).
		Msg("Chat request completed")

	s.sendJSON(w, http.StatusOK, chatResponse{
		Answer:   result.Answer,
		Degraded: result.Degraded,
	})
}

// validateChatRequest validates the body against the chat request schema.
func (s *Server) validateChatRequest(rawBody []byte) (string, bool) {
	result, err := s.chatSchema.Validate(gojsonschema.NewBytesLoader(rawBody))
	if err != nil {
		return "invalid JSON body", false
	}
	if !result.Valid() {
		var parts []string
		for _, e := range result.Errors() {
			parts = append(parts, e.String())
		}
		return strings.Join(parts, "; "), false
	}
	return "", true
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
