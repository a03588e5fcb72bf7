package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyeonwoo/partyroom-backend/internal"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg := LoadConfig()

	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DICTIONARY_API_KEY", "k")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "k", cfg.DictionaryAPIKey)
}

func TestLoadConfigInvalidPortFallsBack(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	cfg := LoadConfig()

	assert.Equal(t, 3001, cfg.Port)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(Config{
		Port:           3001,
		AllowedOrigins: []string{"https://allowed.example"},
	})
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.RegisterRoutes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestCORSReflectsOnlyAllowedOrigins(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.RegisterRoutes())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://allowed.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://allowed.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func wsDial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(internal.Message[any]{Type: event, Data: data}))
}

// nextEvent reads one envelope, returning its type and, for the per-game
// update events, the inner discriminator.
func nextEvent(t *testing.T, conn *websocket.Conn) (string, string) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg internal.Message[json.RawMessage]
	require.NoError(t, conn.ReadJSON(&msg))
	if !strings.HasSuffix(msg.Type, "-update") {
		return msg.Type, ""
	}
	var u struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &u))
	return msg.Type, u.Type
}

func awaitEvent(t *testing.T, conn *websocket.Conn, wantEnvelope, wantInner string) {
	t.Helper()
	for i := 0; i < 20; i++ {
		envelope, inner := nextEvent(t, conn)
		if envelope == wantEnvelope && inner == wantInner {
			return
		}
	}
	t.Fatalf("never received %s/%s", wantEnvelope, wantInner)
}

func TestRejoinLeavesNoGhostInPreviousRoom(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.RegisterRoutes())
	defer ts.Close()

	connA := wsDial(t, ts)
	connB := wsDial(t, ts)
	connC := wsDial(t, ts)

	sendEvent(t, connA, "join", map[string]string{"displayName": "A", "roomName": "r1", "gameType": "mafia"})
	awaitEvent(t, connA, "mafia-update", "join")
	sendEvent(t, connB, "join", map[string]string{"displayName": "B", "roomName": "r1", "gameType": "mafia"})
	awaitEvent(t, connA, "mafia-update", "join")
	sendEvent(t, connC, "join", map[string]string{"displayName": "C", "roomName": "r1", "gameType": "mafia"})
	awaitEvent(t, connA, "mafia-update", "join")

	// C moves on to another room; r1 must drop them from its roster.
	sendEvent(t, connC, "join", map[string]string{"displayName": "C", "roomName": "r2", "gameType": "mafia"})
	awaitEvent(t, connA, "mafia-update", "leave")

	// With only two left, the game cannot start.
	sendEvent(t, connA, "mafia-game-start", map[string]string{"roomName": "r1"})
	for i := 0; i < 20; i++ {
		envelope, inner := nextEvent(t, connA)
		if envelope == "mafia-error" {
			return
		}
		require.NotEqual(t, "game-start", inner, "departed player still counted in the roster")
	}
	t.Fatal("never received mafia-error")
}

func TestPreflightShortCircuits(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.RegisterRoutes())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://allowed.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
