package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	router "github.com/dkeye/Lounge/internal/adapters/http"
	"github.com/dkeye/Lounge/internal/adapters/signal"
	"github.com/dkeye/Lounge/internal/app"
	"github.com/dkeye/Lounge/internal/app/orch"
	"github.com/dkeye/Lounge/internal/config"
	"github.com/dkeye/Lounge/internal/domain"
	"github.com/dkeye/Lounge/internal/store/memory"
)

func newRouter(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := signal.NewHub(nil)
	rooms := memory.NewRooms()
	tracker := app.NewTracker(memory.NewSessions(), nil)
	o := &orch.Orchestrator{
		Presence: tracker,
		Rooms:    app.NewRegistry(rooms, hub, nil),
		Chat:     app.NewChat(rooms, tracker, hub, nil),
		Relay:    app.NewRelay(tracker, hub),
		Notifier: hub,
	}
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	r := router.SetupRouter(context.Background(), cfg, o, signal.NewController(o, hub, signal.Options{}))
	return r, o
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthSetsSessionCookie(t *testing.T) {
	r, _ := newRouter(t)
	w := do(r, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","connections":0}`, w.Body.String())
	assert.Contains(t, w.Header().Get("Set-Cookie"), "LoungeSessions=")
}

func TestRoomsAPI(t *testing.T) {
	r, o := newRouter(t)

	w := do(r, http.MethodPost, "/api/rooms", map[string]any{"name": "Team Sync", "secret": "hunter2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var view domain.RoomView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.True(t, view.Protected)
	assert.Regexp(t, `^team-sync-[0-9a-z]{6}$`, string(view.ID))
	assert.NotContains(t, w.Body.String(), "hunter2")

	w = do(r, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(view.ID))

	w = do(r, http.MethodPost, "/api/rooms/"+string(view.ID)+"/verify", map[string]string{"secret": "nope"})
	assert.JSONEq(t, `{"ok":false}`, w.Body.String())
	w = do(r, http.MethodPost, "/api/rooms/"+string(view.ID)+"/verify", map[string]string{"secret": "hunter2"})
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/rooms/missing-000000/verify", map[string]string{"secret": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := o.Chat.Post(context.Background(), view.ID, "conn-a", "Ann", "hi", domain.MessageText)
	require.NoError(t, err)
	w = do(r, http.MethodGet, "/api/rooms/"+string(view.ID)+"/messages?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"hi"`)

	w = do(r, http.MethodGet, "/api/rooms/"+string(view.ID)+"/messages?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRoomValidation(t *testing.T) {
	r, _ := newRouter(t)
	w := do(r, http.MethodPost, "/api/rooms", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/rooms", map[string]any{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_room_name")
}

func TestAgentUnavailable(t *testing.T) {
	r, o := newRouter(t)
	room, err := o.Rooms.Create(context.Background(), "Lobby", "token-a", nil)
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/rooms/"+string(room.ID)+"/agent", map[string]string{"channel": "voice-1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPresenceSnapshot(t *testing.T) {
	r, o := newRouter(t)
	require.NoError(t, o.Presence.Join(context.Background(), "lobby-abc123", "conn-a", "Ann", domain.KindText))

	w := do(r, http.MethodGet, "/api/presence", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lobby-abc123"`)
}
