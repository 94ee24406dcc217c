// Package conversation tracks the platform conversation currently in
// use and enforces the per-conversation request cap.
package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/brunohrs/stackpilot/internal/observability"
)

// DefaultMaxRequests is the number of prompts a single conversation may
// serve before a fresh one is started.
const DefaultMaxRequests = 10

// Starter opens a new conversation on the platform and returns its id.
type Starter interface {
	StartConversation(ctx context.Context) (string, error)
}

// StarterFunc adapts a function to the Starter interface.
type StarterFunc func(ctx context.Context) (string, error)

func (f StarterFunc) StartConversation(ctx context.Context) (string, error) {
	return f(ctx)
}

// Session owns the current conversation id and its bounded request
// counter. Both persist across prompts for the life of the process and
// are only mutated through Resolve and Reset. Safe for concurrent use.
type Session struct {
	mu             sync.Mutex
	conversationID string
	requestCount   int
	maxRequests    int
}

// NewSession creates a session with the given request cap per
// conversation; zero or negative means DefaultMaxRequests.
func NewSession(maxRequests int) *Session {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	return &Session{maxRequests: maxRequests}
}

// Resolve returns the conversation id the next relay call should use,
// starting a new conversation when none is held or the cap is reached.
// The request counter is incremented exactly once, as the last action
// of a successful call; a failed start leaves all state untouched.
func (s *Session) Resolve(ctx context.Context, starter Starter) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conversationID == "" || s.requestCount >= s.maxRequests {
		recycled := s.conversationID != ""

		id, err := starter.StartConversation(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to start conversation: %w", err)
		}

		s.conversationID = id
		s.requestCount = 0

		observability.RecordConversationStarted()
		if recycled {
			observability.RecordConversationRecycled()
		}

		log.Info().
			Str("conversation_id", id).
			Bool("recycled", recycled).
			Msg("Conversation started")
	}

	s.requestCount++
	observability.SetConversationRequests(s.requestCount)

	return s.conversationID, nil
}

// Reset drops the held conversation so the next prompt starts a new one.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversationID = ""
	s.requestCount = 0
	observability.SetConversationRequests(0)

	log.Debug().Msg("Conversation reset")
}

// Snapshot returns the held conversation id and request count.
func (s *Session) Snapshot() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID, s.requestCount
}

// MaxRequests returns the request cap per conversation.
func (s *Session) MaxRequests() int {
	return s.maxRequests
}
