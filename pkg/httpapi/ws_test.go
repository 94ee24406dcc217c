package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialChatSocket(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrames reads frames until one carries done=true, returning the
// fragment frames and the final frame raw.
func readFrames(t *testing.T, conn *websocket.Conn) ([]string, map[string]interface{}) {
	t.Helper()

	var fragments []string
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &frame))

		if fragment, ok := frame["fragment"].(string); ok {
			fragments = append(fragments, fragment)
			continue
		}
		if done, _ := frame["done"].(bool); done {
			return fragments, frame
		}
		t.Fatalf("unexpected frame: %s", raw)
	}
}

func TestChatSocketStreamsFragments(t *testing.T) {
	p := newFakePlatform(t)
	_, ts := newTestServer(t, p)

	conn := dialChatSocket(t, ts.URL)
	require.NoError(t, conn.WriteJSON(socketPrompt{Prompt: "stream it"}))

	fragments, final := readFrames(t, conn)

	assert.Equal(t, []string{"streamed ", "answer body"}, fragments)
	assert.Equal(t, "streamed answer body", final["answer"])
}

func TestChatSocketHandlesMultiplePrompts(t *testing.T) {
	p := newFakePlatform(t)
	_, ts := newTestServer(t, p)

	conn := dialChatSocket(t, ts.URL)

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(socketPrompt{Prompt: "again"}))
		_, final := readFrames(t, conn)
		assert.Equal(t, "streamed answer body", final["answer"])
	}

	assert.Equal(t, int64(3), p.relayCalls.Load())
	assert.Equal(t, int64(1), p.authCalls.Load(), "credential should be reused across prompts")
}

func TestChatSocketBlankPrompt(t *testing.T) {
	p := newFakePlatform(t)
	_, ts := newTestServer(t, p)

	conn := dialChatSocket(t, ts.URL)
	require.NoError(t, conn.WriteJSON(socketPrompt{Prompt: "  "}))

	fragments, final := readFrames(t, conn)

	assert.Empty(t, fragments)
	assert.Equal(t, "prompt must not be blank", final["error"])
	assert.Zero(t, p.relayCalls.Load())
}

func TestChatSocketReportsPipelineError(t *testing.T) {
	p := newFakePlatform(t)
	p.authStatus = http.StatusUnauthorized
	_, ts := newTestServer(t, p)

	conn := dialChatSocket(t, ts.URL)
	require.NoError(t, conn.WriteJSON(socketPrompt{Prompt: "hello"}))

	fragments, final := readFrames(t, conn)

	assert.Empty(t, fragments)
	assert.Equal(t, "authentication failed", final["error"])
}

func TestChatSocketRejectsDuringShutdown(t *testing.T) {
	p := newFakePlatform(t)
	srv, ts := newTestServer(t, p)

	srv.shutdownMu.Lock()
	srv.isShuttingDown = true
	srv.shutdownMu.Unlock()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
