package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchemaAndPings(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestCreateListDeleteRoom(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Now().Unix()
	require.NoError(t, s.CreateRoom(ctx, "room-1", "General", created, []types.UserIDType{"alice", "bob"}))

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "room-1", rooms[0].ID)
	assert.Equal(t, "General", rooms[0].Name)
	assert.Equal(t, created, rooms[0].CreatedAt)

	admins, bans, err := s.LoadRoomState(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []types.UserIDType{"alice", "bob"}, admins)
	assert.Empty(t, bans)

	require.NoError(t, s.DeleteRoom(ctx, "room-1"))
	rooms, err = s.ListRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestDuplicateRoomIDFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRoom(ctx, "room-1", "General", 1, nil))
	assert.Error(t, s.CreateRoom(ctx, "room-1", "Other", 2, nil))
}

func TestReplaceAdmins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRoom(ctx, "room-1", "General", 1, []types.UserIDType{"alice"}))
	require.NoError(t, s.ReplaceAdmins(ctx, "room-1", []types.UserIDType{"bob", "carol"}))

	admins, _, err := s.LoadRoomState(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []types.UserIDType{"bob", "carol"}, admins)
}

func TestBanLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Idempotent insert-or-ignore.
	require.NoError(t, s.ApplyBatch(ctx, []types.DbWriteCommand{
		types.WriteBanUser{RoomID: "room-1", UserID: "mallory"},
		types.WriteBanUser{RoomID: "room-1", UserID: "mallory"},
	}))

	_, bans, err := s.LoadRoomState(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, []types.UserIDType{"mallory"}, bans)

	require.NoError(t, s.RemoveBan(ctx, "room-1", "mallory"))
	_, bans, err = s.LoadRoomState(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, bans)

	// Removing an absent ban is not an error.
	assert.NoError(t, s.RemoveBan(ctx, "room-1", "mallory"))
}

func TestSessionJoinLeavePairing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	joinInstant := time.Now().Add(-3 * time.Second)
	require.NoError(t, s.ApplyBatch(ctx, []types.DbWriteCommand{
		types.WriteUserJoined{RoomID: "room-1", UserID: "alice", JoinTime: joinInstant},
	}))

	sessions, err := s.SessionHistoryAll(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.False(t, sessions[0].LeaveTime.Valid, "live session has NULL leave_time")

	require.NoError(t, s.ApplyBatch(ctx, []types.DbWriteCommand{
		types.WriteUserLeft{RoomID: "room-1", UserID: "alice", JoinInstant: joinInstant},
	}))

	sessions, err = s.SessionHistoryAll(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].LeaveTime.Valid)
	require.True(t, sessions[0].DurationSeconds.Valid)
	assert.InDelta(t, 3, sessions[0].DurationSeconds.Int64, 1)

	// A late duplicate leave updates zero rows and is silently OK.
	require.NoError(t, s.ApplyBatch(ctx, []types.DbWriteCommand{
		types.WriteUserLeft{RoomID: "room-1", UserID: "alice", JoinInstant: joinInstant},
	}))
}

func TestUserLeftClosesNewestOpenSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	newer := time.Now().Add(-time.Minute)
	require.NoError(t, s.ApplyBatch(ctx, []types.DbWriteCommand{
		types.WriteUserJoined{RoomID: "room-1", UserID: "alice", JoinTime: older},
		types.WriteUserJoined{RoomID: "room-1", UserID: "alice", JoinTime: newer},
	}))

	require.NoError(t, s.ApplyBatch(ctx, []types.DbWriteCommand{
		types.WriteUserLeft{RoomID: "room-1", UserID: "alice", JoinInstant: newer},
	}))

	sessions, err := s.SessionHistoryAll(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.False(t, sessions[0].LeaveTime.Valid, "older session stays open")
	assert.True(t, sessions[1].LeaveTime.Valid, "newest open session is the one closed")
}

func TestChatHistoryPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var cmds []types.DbWriteCommand
	for _, content := range []string{"one", "two", "three", "four", "five"} {
		cmds = append(cmds, types.WriteChatMessage{
			RoomID: "room-1", UserID: "alice", Content: content, CreatedAt: time.Now(),
		})
	}
	require.NoError(t, s.ApplyBatch(ctx, cmds))

	page1, err := s.ChatHistoryPage(ctx, "room-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "one", page1[0].Content)
	assert.Equal(t, "two", page1[1].Content)

	page3, err := s.ChatHistoryPage(ctx, "room-1", 2, 4)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "five", page3[0].Content)

	all, err := s.ChatHistoryAll(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, all, 5)

	other, err := s.ChatHistoryAll(ctx, "room-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestApplyBatchEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.ApplyBatch(context.Background(), nil))
}
