package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunohrs/stackpilot/pkg/auth"
	"github.com/brunohrs/stackpilot/pkg/conversation"
	"github.com/brunohrs/stackpilot/pkg/execution"
	"github.com/brunohrs/stackpilot/pkg/relay"
)

// fakePlatform fakes the identity provider, the quick-command API and
// the chat endpoint behind one httptest server.
type fakePlatform struct {
	srv *httptest.Server

	authCalls    atomic.Int64
	createCalls  atomic.Int64
	resolveCalls atomic.Int64
	relayCalls   atomic.Int64

	authStatus  int
	relayStatus int
	answerLines []string

	lastCreateBody map[string]any
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()

	p := &fakePlatform{
		authStatus:  http.StatusOK,
		relayStatus: http.StatusOK,
		answerLines: []string{`data: {"answer":"the final streamed answer"}`},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/", func(w http.ResponseWriter, r *http.Request) {
		p.authCalls.Add(1)
		if p.authStatus != http.StatusOK {
			http.Error(w, "unauthorized", p.authStatus)
			return
		}
		fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
	})
	mux.HandleFunc("/v1/quick-commands/create-execution/", func(w http.ResponseWriter, r *http.Request) {
		p.createCalls.Add(1)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.lastCreateBody = body
		fmt.Fprintf(w, `"exec-%d"`, p.createCalls.Load())
	})
	mux.HandleFunc("/v1/quick-commands/callback/", func(w http.ResponseWriter, r *http.Request) {
		p.resolveCalls.Add(1)
		executionID := strings.TrimPrefix(r.URL.Path, "/v1/quick-commands/callback/")
		fmt.Fprintf(w, `{"conversation_id":"conv-for-%s"}`, executionID)
	})
	mux.HandleFunc("/v3/chat", func(w http.ResponseWriter, r *http.Request) {
		p.relayCalls.Add(1)
		if p.relayStatus != http.StatusOK {
			http.Error(w, "relay down", p.relayStatus)
			return
		}
		for _, line := range p.answerLines {
			fmt.Fprintln(w, line)
		}
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePlatform) orchestrator(maxRequests int) *Orchestrator {
	guard := auth.NewGuard(auth.Config{
		Realm:        "acme",
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      p.srv.URL,
	})
	executions := execution.NewClient(execution.Config{
		BaseURL:        p.srv.URL,
		Slug:           "query.go",
		RetryAttempts:  3,
		InitialBackoff: time.Millisecond,
	})
	relayClient := relay.NewClient(relay.Config{
		ChatURL: p.srv.URL + "/v3/chat",
		AgentID: "agent-1",
	})
	return New(guard, executions, conversation.NewSession(maxRequests), relayClient)
}

func TestOrchestrator_Ask_HappyPath(t *testing.T) {
	platform := newFakePlatform(t)
	orch := platform.orchestrator(10)

	result := orch.Ask(context.Background(), "Write a hello world function")
	require.True(t, result.OK())
	assert.Equal(t, "the final streamed answer", result.Answer)
	assert.False(t, result.Degraded)
	assert.Empty(t, result.ErrorMessage())

	assert.Equal(t, int64(1), platform.authCalls.Load())
	assert.Equal(t, int64(1), platform.createCalls.Load())
	assert.Equal(t, int64(1), platform.relayCalls.Load())
}

func TestOrchestrator_Ask_ReusesCredentialAndConversation(t *testing.T) {
	platform := newFakePlatform(t)
	orch := platform.orchestrator(10)

	for i := 0; i < 4; i++ {
		result := orch.Ask(context.Background(), "prompt")
		require.True(t, result.OK())
	}

	assert.Equal(t, int64(1), platform.authCalls.Load(), "credential exchanged once")
	assert.Equal(t, int64(1), platform.createCalls.Load(), "conversation started once")
	assert.Equal(t, int64(4), platform.relayCalls.Load())
}

func TestOrchestrator_Ask_RecyclesConversationAtCap(t *testing.T) {
	platform := newFakePlatform(t)
	orch := platform.orchestrator(2)

	for i := 0; i < 3; i++ {
		result := orch.Ask(context.Background(), "prompt")
		require.True(t, result.OK())
	}

	// Two prompts share the first conversation; the third starts a new one.
	assert.Equal(t, int64(2), platform.createCalls.Load())
}

func TestOrchestrator_Ask_AuthFailure(t *testing.T) {
	platform := newFakePlatform(t)
	platform.authStatus = http.StatusUnauthorized
	orch := platform.orchestrator(10)

	result := orch.Ask(context.Background(), "prompt")
	require.False(t, result.OK())
	assert.Equal(t, AuthFailedMessage, result.ErrorMessage())

	assert.Equal(t, int64(0), platform.createCalls.Load(), "no submission after auth failure")
	assert.Equal(t, int64(0), platform.relayCalls.Load(), "no relay after auth failure")
}

func TestOrchestrator_Ask_RelayFailure(t *testing.T) {
	platform := newFakePlatform(t)
	platform.relayStatus = http.StatusBadGateway
	orch := platform.orchestrator(10)

	result := orch.Ask(context.Background(), "prompt")
	require.False(t, result.OK())
	assert.Contains(t, result.ErrorMessage(), "502")
}

func TestOrchestrator_Ask_LaterPromptSucceedsAfterFailure(t *testing.T) {
	platform := newFakePlatform(t)
	platform.authStatus = http.StatusUnauthorized
	orch := platform.orchestrator(10)

	result := orch.Ask(context.Background(), "prompt")
	require.False(t, result.OK())

	// Cause resolved before the next prompt.
	platform.authStatus = http.StatusOK

	result = orch.Ask(context.Background(), "prompt")
	require.True(t, result.OK())
	assert.Equal(t, "the final streamed answer", result.Answer)
}

func TestOrchestrator_AskStream(t *testing.T) {
	platform := newFakePlatform(t)
	platform.answerLines = []string{
		`data: {"answer":"piece one of the"}`,
		`data: {"answer":" answer"}`,
	}
	orch := platform.orchestrator(10)

	var fragments []string
	result := orch.AskStream(context.Background(), "prompt", func(fragment string) {
		fragments = append(fragments, fragment)
	})
	require.True(t, result.OK())
	assert.Equal(t, []string{"piece one of the", " answer"}, fragments)
	assert.Equal(t, "piece one of the answer", result.Answer)
}

func TestOrchestrator_AskPayload(t *testing.T) {
	platform := newFakePlatform(t)
	orch := platform.orchestrator(10)

	payload := map[string]any{"question": "list files", "cwd": "/tmp"}
	result := orch.AskPayload(context.Background(), payload, "list files")
	require.True(t, result.OK())

	inputData, ok := platform.lastCreateBody["input_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "list files", inputData["question"])
	assert.Equal(t, "/tmp", inputData["cwd"])
}

func TestOrchestrator_ResetConversation(t *testing.T) {
	platform := newFakePlatform(t)
	orch := platform.orchestrator(10)

	require.True(t, orch.Ask(context.Background(), "prompt").OK())
	orch.ResetConversation()
	require.True(t, orch.Ask(context.Background(), "prompt").OK())

	assert.Equal(t, int64(2), platform.createCalls.Load())
}
