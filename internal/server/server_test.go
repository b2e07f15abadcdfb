package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ttyflow/backend/internal/config"
	"github.com/ttyflow/backend/internal/logging"
	"github.com/ttyflow/backend/internal/session"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	cfg.Engine.ThrottleDebounceMs = 2

	return New(cfg, &logging.Logger{Logger: zap.NewNop()})
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestUnknownSessionRoutes(t *testing.T) {
	s := testServer(t)

	tests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/sessions/term_missing", nil},
		{http.MethodDelete, "/sessions/term_missing", nil},
		{http.MethodPost, "/sessions/term_missing/resize", map[string]int{"cols": 80, "rows": 24}},
		{http.MethodGet, "/sessions/term_missing/metrics", nil},
	}
	for _, tt := range tests {
		rec := doJSON(t, s.Handler(), tt.method, tt.path, tt.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestResizeValidation(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/sessions/term_x/resize", map[string]int{"cols": 0, "rows": 24})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	requireShell(t)
	s := testServer(t)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/sessions", session.CreateOptions{Shell: "/bin/sh"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var info session.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.NotEmpty(t, info.ID)
	assert.True(t, strings.HasPrefix(info.ID, "term_"))
	assert.True(t, info.Active)
	assert.False(t, info.Attached)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), info.ID)

	rec = doJSON(t, s.Handler(), http.MethodPost, "/sessions/"+info.ID+"/resize", map[string]int{"cols": 120, "rows": 40})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Metrics require an attached stream.
	rec = doJSON(t, s.Handler(), http.MethodGet, "/sessions/"+info.ID+"/metrics", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodDelete, "/sessions/"+info.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s.Handler(), http.MethodGet, "/sessions/"+info.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamEchoesOutput(t *testing.T) {
	requireShell(t)
	s := testServer(t)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	rec := doJSON(t, s.Handler(), http.MethodPost, "/sessions", session.CreateOptions{Shell: "/bin/sh"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var info session.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + info.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	input, err := json.Marshal(clientMessage{Type: "input", Data: "echo stream-marker\n"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, input))

	// Collect binary frames until the marker shows up.
	var output bytes.Buffer
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		msgType, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		if msgType == websocket.BinaryMessage {
			output.Write(payload)
		}
		if bytes.Contains(output.Bytes(), []byte("stream-marker")) {
			break
		}
	}
	assert.Contains(t, output.String(), "stream-marker")

	// Attached stream exposes engine metrics.
	rec = doJSON(t, s.Handler(), http.MethodGet, "/sessions/"+info.ID+"/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "buffer_lines")

	doJSON(t, s.Handler(), http.MethodDelete, "/sessions/"+info.ID, nil)
}

func TestStreamRejectsSecondAttach(t *testing.T) {
	requireShell(t)
	s := testServer(t)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	rec := doJSON(t, s.Handler(), http.MethodPost, "/sessions", session.CreateOptions{Shell: "/bin/sh"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var info session.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	defer doJSON(t, s.Handler(), http.MethodDelete, "/sessions/"+info.ID, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + info.ID + "/stream"
	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer first.Close()

	second, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer second.Close()

	// The second connection gets an error control frame and is closed.
	second.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg controlMessage
		if err := second.ReadJSON(&msg); err != nil {
			t.Fatalf("connection closed before error frame: %v", err)
		}
		if msg.Type == "error" {
			assert.Contains(t, msg.Message, "already")
			break
		}
	}
}
