package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/vanishchat/internal/relay"
	"github.com/Tyrowin/vanishchat/internal/server"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:8080"

// startTestServer runs a fully wired relay behind httptest and tears it down
// with the test.
func startTestServer(t *testing.T, mutate func(*server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.DeleteGrace = 20 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	srv := server.New(cfg, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	srv.StartBackground(ctx)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		require.NoError(t, srv.Hub().Shutdown(2*time.Second))
	})
	return srv, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// dial connects with the given Origin header. The response is returned so
// callers can inspect handshake failures.
func dial(ts *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(wsURL(ts), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

func connect(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := dial(ts, testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(relay.Envelope{Event: event, Data: raw}))
}

func expectFrame(t *testing.T, conn *websocket.Conn, event string) relay.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var env relay.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	require.Equal(t, event, env.Event, "unexpected frame: %s", env.Data)
	return env
}

// expectSilence asserts nothing arrives within d. A timed-out gorilla
// connection cannot be read again, so this must be the last read on conn.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))

	_, frame, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame, got %s", frame)
}

func decode[T any](t *testing.T, env relay.Envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func join(t *testing.T, conn *websocket.Conn, inviteID, alias string) {
	t.Helper()
	emit(t, conn, relay.EventJoinChat, relay.JoinRequest{InviteID: inviteID, Alias: alias})
	ack := decode[relay.JoinedChat](t, expectFrame(t, conn, relay.EventJoinedChat))
	require.True(t, ack.Success)
	require.Equal(t, inviteID, ack.InviteID)
}
