// Package execution submits prompts to the StackSpot quick-command API
// as asynchronous jobs and resolves the conversation id the platform
// assigns to them.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/brunohrs/stackpilot/internal/observability"
	"github.com/brunohrs/stackpilot/pkg/auth"
)

const (
	// DefaultBaseURL is the StackSpot code-buddy API.
	DefaultBaseURL = "https://genai-code-buddy-api.stackspot.com"

	defaultTimeout        = 30 * time.Second
	defaultRetryAttempts  = 6
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 8 * time.Second
)

// Config holds execution client settings.
type Config struct {
	BaseURL string // defaults to DefaultBaseURL
	Slug    string // quick-command identifier, required

	Timeout time.Duration

	// Retry settings for ResolveConversationIDWithRetry.
	RetryAttempts  int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Client talks to the quick-command endpoints. Both operations share
// one authenticated HTTP client. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new execution client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// CreateExecution submits a prompt as an asynchronous job and returns
// the execution id. A string prompt is wrapped as {"text": ...}; any
// other value is forwarded as-is under input_data. conversationID is
// optional and continues an existing conversation when set.
func (c *Client) CreateExecution(ctx context.Context, prompt any, cred auth.Credential, conversationID string) (string, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return "", ErrNoCredential
	}

	payload := map[string]any{}
	if text, ok := prompt.(string); ok {
		payload["input_data"] = map[string]any{"text": text}
	} else {
		payload["input_data"] = prompt
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	endpoint := fmt.Sprintf("%s/v1/quick-commands/create-execution/%s", c.cfg.BaseURL, c.cfg.Slug)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &SubmissionError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("slug", c.cfg.Slug)
	if conversationID != "" {
		req.Header.Set("conversation_id", conversationID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordExecutionCreate(false)
		return "", &SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.RecordExecutionCreate(false)
		return "", &SubmissionError{Status: resp.StatusCode, Body: string(respBody)}
	}

	// The API answers with the execution id as a bare quoted string.
	executionID := strings.Trim(strings.TrimSpace(string(respBody)), `"`)
	if executionID == "" {
		observability.RecordExecutionCreate(false)
		return "", &SubmissionError{Status: resp.StatusCode, Err: fmt.Errorf("empty execution id in response")}
	}

	observability.RecordExecutionCreate(true)
	log.Debug().
		Str("execution_id", executionID).
		Str("slug", c.cfg.Slug).
		Msg("Execution created")

	return executionID, nil
}

// ResolveConversationID issues exactly one callback GET for the given
// execution. It does not wait or retry; callers that cannot tolerate
// the platform's processing lag should use
// ResolveConversationIDWithRetry instead.
func (c *Client) ResolveConversationID(ctx context.Context, executionID string, cred auth.Credential) (string, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return "", ErrNoCredential
	}
	if strings.TrimSpace(executionID) == "" {
		return "", &ResolutionError{Err: fmt.Errorf("execution id must not be empty")}
	}

	endpoint := fmt.Sprintf("%s/v1/quick-commands/callback/%s", c.cfg.BaseURL, executionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &ResolutionError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+cred.Token)
	req.Header.Set("execution_id", executionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ResolutionError{Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ResolutionError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var result struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", &ResolutionError{Status: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if result.ConversationID == "" {
		return "", &ResolutionError{Status: resp.StatusCode, Err: ErrConversationPending}
	}

	return result.ConversationID, nil
}

// ResolveConversationIDWithRetry polls the callback endpoint with
// exponential backoff until the conversation id appears or the attempt
// budget runs out.
func (c *Client) ResolveConversationIDWithRetry(ctx context.Context, executionID string, cred auth.Credential) (string, error) {
	backoff := c.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		conversationID, err := c.ResolveConversationID(ctx, executionID, cred)
		if err == nil {
			observability.RecordResolutionAttempts(attempt)
			return conversationID, nil
		}

		lastErr = err

		if !isRetryableResolution(err) {
			return "", err
		}

		if attempt == c.cfg.RetryAttempts {
			break
		}

		log.Debug().
			Str("execution_id", executionID).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Conversation id not ready, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %w", ErrResolutionTimeout, c.cfg.RetryAttempts, lastErr)
}

// isRetryableResolution treats "not yet produced" and transient server
// conditions as retryable; authentication and client errors are not.
func isRetryableResolution(err error) bool {
	if errors.Is(err, ErrConversationPending) {
		return true
	}
	if errors.Is(err, ErrNoCredential) {
		return false
	}

	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		switch {
		case resErr.Status == 0:
			// Transport error.
			return true
		case resErr.Status == http.StatusNotFound, resErr.Status == http.StatusTooEarly:
			return true
		case resErr.Status >= 500:
			return true
		}
	}
	return false
}
