// Package relay sends prompts into an established StackSpot
// conversation and assembles the streamed answer.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brunohrs/stackpilot/internal/observability"
	"github.com/brunohrs/stackpilot/pkg/auth"
)

const (
	// DefaultChatURL is the StackSpot chat endpoint.
	DefaultChatURL = "https://genai-code-buddy-api.stackspot.com/v3/chat"

	// DegradedThreshold flags answers shorter than this as likely
	// degraded. They are still returned as-is.
	DegradedThreshold = 10

	// Streams stay open for the whole generation, so the relay
	// timeout is much larger than a regular request timeout.
	defaultTimeout = 300 * time.Second
)

// Config holds chat relay settings.
type Config struct {
	ChatURL string // defaults to DefaultChatURL
	AgentID string
	Timeout time.Duration
}

// Answer is the assembled result of one relay call. Degraded marks an
// empty or very short answer so callers can distinguish it without
// rejecting it.
type Answer struct {
	Text     string
	Degraded bool
}

// RelayError describes a failed chat call.
type RelayError struct {
	Status int
	Body   string
	Err    error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat relay failed: %v", e.Err)
	}
	return fmt.Sprintf("chat relay failed: status %d: %s", e.Status, e.Body)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// FragmentObserver receives each answer fragment as it arrives.
// Observers must not block; they run on the stream-consuming goroutine.
type FragmentObserver func(fragment string)

type chatContext struct {
	ConversationID     string   `json:"conversation_id"`
	UploadIDs          []string `json:"upload_ids"`
	AgentID            string   `json:"agent_id"`
	AgentBuiltIn       bool     `json:"agent_built_in"`
	OS                 string   `json:"os"`
	Platform           string   `json:"platform"`
	PlatformVersion    string   `json:"platform_version"`
	StackSpotAIVersion string   `json:"stackspot_ai_version"`
}

type chatRequest struct {
	Context    chatContext `json:"context"`
	UserPrompt string      `json:"user_prompt"`
}

// Client posts prompts to the chat endpoint and consumes the streamed
// response. Safe for concurrent use; accumulation state is local to
// each Send call.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new chat relay client.
func NewClient(cfg Config) *Client {
	if cfg.ChatURL == "" {
		cfg.ChatURL = DefaultChatURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Send posts the prompt into the conversation and accumulates the
// streamed answer fragments in arrival order. Optional observers see
// each fragment as it arrives.
func (c *Client) Send(ctx context.Context, prompt, conversationID string, cred auth.Credential, observers ...FragmentObserver) (Answer, error) {
	start := time.Now()

	answer, err := c.send(ctx, prompt, conversationID, cred, observers)
	observability.RecordRelay(err == nil, time.Since(start))

	return answer, err
}

func (c *Client) send(ctx context.Context, prompt, conversationID string, cred auth.Credential, observers []FragmentObserver) (Answer, error) {
	request := chatRequest{
		Context: chatContext{
			ConversationID:     conversationID,
			UploadIDs:          []string{},
			AgentID:            c.cfg.AgentID,
			AgentBuiltIn:       false,
			OS:                 runtime.GOOS,
			Platform:           "go-app",
			PlatformVersion:    "1.0",
			StackSpotAIVersion: "2.0.0",
		},
		UserPrompt: prompt,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return Answer{}, &RelayError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ChatURL, bytes.NewReader(body))
	if err != nil {
		return Answer{}, &RelayError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Answer{}, &RelayError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Answer{}, &RelayError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var builder strings.Builder
	fragments := newFragmentScanner(resp.Body)

	for {
		fragment, ok := fragments.Next()
		if !ok {
			break
		}
		builder.WriteString(fragment)
		observability.RecordRelayFragment()
		for _, observe := range observers {
			observe(fragment)
		}
	}

	for i := 0; i < fragments.Skipped(); i++ {
		observability.RecordRelayFragmentSkipped()
	}

	if err := fragments.Err(); err != nil {
		// A broken stream mid-answer would silently truncate it.
		return Answer{}, &RelayError{Err: fmt.Errorf("stream read failed: %w", err)}
	}

	text := strings.TrimSpace(builder.String())
	degraded := len([]rune(text)) < DegradedThreshold
	if degraded {
		observability.RecordRelayDegraded()
		log.Warn().
			Str("conversation_id", conversationID).
			Int("length", len(text)).
			Msg("Relay answer is empty or very short")
	}

	log.Debug().
		Str("conversation_id", conversationID).
		Int("skipped_fragments", fragments.Skipped()).
		Int("answer_length", len(text)).
		Msg("Relay completed")

	return Answer{Text: text, Degraded: degraded}, nil
}
