package syncsvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/callback"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/config"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/registry"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/room"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/store"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

type capture struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (c *capture) add(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies = append(c.bodies, b)
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func setupSync(t *testing.T, dataURL string) (*Service, *store.Store, *types.RoomHandle) {
	t.Helper()

	cfg := &config.Config{
		CallbackMaxRetries: 0,
		CallbackRetryDelay: 0,
		CallbackTimeout:    2 * time.Second,
		HistoryBatchSize:   100,
		DataCallbackURL:    dataURL,
		MaxConnections:     10,
	}

	st, err := store.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New(cfg)
	h := types.NewRoomHandle("room-1", "General", types.Timestamp(time.Now().Unix()))
	require.True(t, reg.Add(h))
	actor := room.New(h, room.Options{Admins: []types.UserIDType{"alice"}})
	go actor.Run()
	go store.NewWriter(st, h.ID, h.Writes).Run()
	t.Cleanup(h.Close)

	dispatcher := callback.New(cfg, st)
	return New(reg, st, dispatcher, 0), st, h
}

func TestSyncRoomPostsCombinedPayload(t *testing.T) {
	cap := &capture{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cap.add(body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	svc, st, h := setupSync(t, server.URL)

	require.NoError(t, st.ApplyBatch(context.Background(), []types.DbWriteCommand{
		types.WriteChatMessage{RoomID: "room-1", UserID: "alice", Content: "hi", CreatedAt: time.Now()},
		types.WriteUserJoined{RoomID: "room-1", UserID: "alice", JoinTime: time.Now()},
	}))

	require.NoError(t, svc.SyncRoom(context.Background(), h))
	require.Equal(t, 1, cap.count())

	var data callback.RoomData
	require.NoError(t, json.Unmarshal(cap.bodies[0], &data))
	assert.Equal(t, callback.EventRoomDataSync, data.EventType)
	assert.Equal(t, "General", data.Room.RoomName)
	assert.Equal(t, []types.UserIDType{"alice"}, data.Room.AdminUserIDs)
	require.Len(t, data.ChatHistory, 1)
	assert.Equal(t, "hi", data.ChatHistory[0].Content)
	require.Len(t, data.SessionHistory, 1)
	assert.Nil(t, data.SessionHistory[0].LeaveTime)
}

func TestSyncAllCoversEveryRoom(t *testing.T) {
	cap := &capture{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cap.add(body)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	svc, _, _ := setupSync(t, server.URL)
	svc.SyncAll(context.Background())
	assert.Equal(t, 1, cap.count())
}

func TestSyncAllLogsButToleratesFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	svc, _, _ := setupSync(t, server.URL)
	// Must not panic or block; failures are logged per room.
	svc.SyncAll(context.Background())
}

func TestPullAllWithoutPosting(t *testing.T) {
	svc, _, _ := setupSync(t, "")

	data, err := svc.PullAll(context.Background())
	require.NoError(t, err)
	require.Len(t, data, 1)
	assert.Equal(t, types.RoomIDType("room-1"), data[0].Room.RoomID)
}

func TestRunHonorsCancellation(t *testing.T) {
	svc, _, _ := setupSync(t, "")
	svc.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
