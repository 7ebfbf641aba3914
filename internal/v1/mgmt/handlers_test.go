package mgmt

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/callback"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/config"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/middleware"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/registry"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/store"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/syncsvc"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

const testAPIKey = "test-admin-api-key-123"

type fixture struct {
	router *gin.Engine
	reg    *registry.Registry
	store  *store.Store
	svc    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		AdminAPIKey:         testAPIKey,
		MaxConnections:      100,
		UserMessageInterval: time.Second,
		CallbackMaxRetries:  0,
		CallbackRetryDelay:  0,
		CallbackTimeout:     time.Second,
		HistoryBatchSize:    100,
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New(cfg)
	dispatcher := callback.New(cfg, st)
	svc := NewService(reg, st, dispatcher)
	syncSvc := syncsvc.New(reg, st, dispatcher, 0)

	router := gin.New()
	group := router.Group("/management")
	group.Use(middleware.APIKeyAuth(cfg.AdminAPIKey))
	NewHandlers(svc, syncSvc).RegisterRoutes(group)

	t.Cleanup(func() {
		for _, h := range reg.List() {
			h.Close()
		}
	})

	return &fixture{router: router, reg: reg, store: st, svc: svc}
}

func (f *fixture) request(t *testing.T, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
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
	if apiKey != "" {
		req.Header.Set(middleware.HeaderXAPIKey, apiKey)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) createRoom(t *testing.T, name string, admins []string) types.RoomIDType {
	t.Helper()
	w := f.request(t, http.MethodPost, "/management/rooms",
		gin.H{"room_name": name, "admin_user_ids": admins}, testAPIKey)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		RoomID       string `json:"room_id"`
		WebsocketURL string `json:"websocket_url"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RoomID)
	require.Contains(t, resp.WebsocketURL, resp.RoomID)
	return types.RoomIDType(resp.RoomID)
}

func TestAPIKeyRequired(t *testing.T) {
	f := newFixture(t)

	w := f.request(t, http.MethodGet, "/management/health", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.request(t, http.MethodGet, "/management/health", nil, "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "error")

	w = f.request(t, http.MethodGet, "/management/health", nil, testAPIKey)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestCreateRoomPersistsAndRegisters(t *testing.T) {
	f := newFixture(t)

	id := f.createRoom(t, "General", []string{"alice"})

	_, ok := f.reg.Get(id)
	assert.True(t, ok, "actor registered")

	admins, _, err := f.store.LoadRoomState(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []types.UserIDType{"alice"}, admins)
}

func TestCreateRoomValidatesBody(t *testing.T) {
	f := newFixture(t)
	w := f.request(t, http.MethodPost, "/management/rooms", gin.H{"admin_user_ids": []string{}}, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRoomsReturnsDetails(t *testing.T) {
	f := newFixture(t)
	f.createRoom(t, "One", nil)
	f.createRoom(t, "Two", nil)

	w := f.request(t, http.MethodGet, "/management/rooms", nil, testAPIKey)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Rooms []types.RoomDetail `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Rooms, 2)
}

func TestCloseRoomRemovesEverything(t *testing.T) {
	f := newFixture(t)
	id := f.createRoom(t, "Doomed", nil)

	w := f.request(t, http.MethodDelete, "/management/rooms/"+string(id), nil, testAPIKey)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, ok := f.reg.Get(id)
	assert.False(t, ok)

	rooms, err := f.store.ListRooms(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rooms)

	w = f.request(t, http.MethodDelete, "/management/rooms/"+string(id), nil, testAPIKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResetAdminsRoundTrip(t *testing.T) {
	f := newFixture(t)
	id := f.createRoom(t, "General", []string{"alice"})

	w := f.request(t, http.MethodPut, "/management/rooms/"+string(id)+"/admins",
		gin.H{"admin_user_ids": []string{"bob"}}, testAPIKey)
	require.Equal(t, http.StatusOK, w.Code)

	admins, _, err := f.store.LoadRoomState(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, []types.UserIDType{"bob"}, admins)

	// The live actor saw the control message too.
	h, ok := f.reg.Get(id)
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	detail, err := h.QueryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.UserIDType{"bob"}, detail.AdminUserIDs)
}

func TestResetAdminsUnknownRoom(t *testing.T) {
	f := newFixture(t)
	w := f.request(t, http.MethodPut, "/management/rooms/ghost/admins",
		gin.H{"admin_user_ids": []string{"bob"}}, testAPIKey)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnbanRemovesDurableBan(t *testing.T) {
	f := newFixture(t)
	id := f.createRoom(t, "General", []string{"alice"})

	// Seed a durable ban directly, as the persistence writer would.
	require.NoError(t, f.store.ApplyBatch(context.Background(), []types.DbWriteCommand{
		types.WriteBanUser{RoomID: id, UserID: "mallory"},
	}))

	w := f.request(t, http.MethodDelete,
		"/management/rooms/"+string(id)+"/bans/mallory", nil, testAPIKey)
	assert.Equal(t, http.StatusOK, w.Code)

	_, bans, err := f.store.LoadRoomState(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, bans)
}

func TestPullSyncReturnsRoomData(t *testing.T) {
	f := newFixture(t)
	f.createRoom(t, "General", nil)

	w := f.request(t, http.MethodGet, "/management/sync", nil, testAPIKey)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Rooms []callback.RoomData `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Rooms, 1)
	assert.Equal(t, "General", resp.Rooms[0].Room.RoomName)
}

func TestTriggerSyncAccepted(t *testing.T) {
	f := newFixture(t)
	w := f.request(t, http.MethodPost, "/management/sync", nil, testAPIKey)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestLoadPersistedRoomsRestoresActors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.CreateRoom(ctx, "room-old", "Old", 1, []types.UserIDType{"alice"}))
	require.NoError(t, f.store.ApplyBatch(ctx, []types.DbWriteCommand{
		types.WriteBanUser{RoomID: "room-old", UserID: "mallory"},
	}))

	require.NoError(t, f.svc.LoadPersistedRooms(ctx))

	h, ok := f.reg.Get("room-old")
	require.True(t, ok)
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	detail, err := h.QueryStats(queryCtx)
	require.NoError(t, err)
	assert.Equal(t, []types.UserIDType{"alice"}, detail.AdminUserIDs)
	assert.Equal(t, []types.UserIDType{"mallory"}, detail.BannedUserIDs)
}
