package room

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

const frameWait = 2 * time.Second

// testRoom bundles a running actor with its write-command collector.
type testRoom struct {
	handle *types.RoomHandle
	writes <-chan types.DbWriteCommand
}

// startRoom spins up an actor and a collector that re-exposes the write
// queue, so tests can assert on emitted commands without a database.
func startRoom(t *testing.T, opts Options) *testRoom {
	t.Helper()

	h := types.NewRoomHandle("room-1", "Test Room", types.Timestamp(time.Now().Unix()))
	actor := New(h, opts)

	collected := make(chan types.DbWriteCommand, types.WriteBuffer)
	go func() {
		for cmd := range h.Writes {
			collected <- cmd
		}
		close(collected)
	}()
	go actor.Run()

	t.Cleanup(h.Close)
	return &testRoom{handle: h, writes: collected}
}

// join registers a connection and returns its outbound channel.
func (r *testRoom) join(t *testing.T, connID types.ConnIDType, userID types.UserIDType) chan []byte {
	t.Helper()
	outbound := make(chan []byte, types.OutboundBuffer)
	require.NoError(t, r.handle.ForwardNormal(types.UserJoined{
		ConnID:   connID,
		UserID:   userID,
		JoinedAt: time.Now(),
		Outbound: outbound,
	}))
	return outbound
}

func (r *testRoom) forward(t *testing.T, msg types.InternalMessage) {
	t.Helper()
	require.NoError(t, r.handle.ForwardNormal(msg))
}

func (r *testRoom) stats(t *testing.T) types.RoomDetail {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), frameWait)
	defer cancel()
	detail, err := r.handle.QueryStats(ctx)
	require.NoError(t, err)
	return detail
}

// recvFrame waits for the next outbound frame.
func recvFrame(t *testing.T, ch chan []byte) types.Frame {
	t.Helper()
	select {
	case data, ok := <-ch:
		require.True(t, ok, "outbound channel closed while waiting for frame")
		frame, err := types.DecodeFrame(data)
		require.NoError(t, err)
		return frame
	case <-time.After(frameWait):
		t.Fatal("timed out waiting for frame")
		return types.Frame{}
	}
}

// recvFrameOfType discards frames until one of the wanted type arrives.
func recvFrameOfType(t *testing.T, ch chan []byte, want types.FrameType) types.Frame {
	t.Helper()
	deadline := time.After(frameWait)
	for {
		select {
		case data, ok := <-ch:
			require.True(t, ok, "outbound channel closed while waiting for %s", want)
			frame, err := types.DecodeFrame(data)
			require.NoError(t, err)
			if frame.Type == want {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", want)
		}
	}
}

// expectClosed asserts that the outbound channel closes (draining anything
// still buffered).
func expectClosed(t *testing.T, ch chan []byte) {
	t.Helper()
	deadline := time.After(frameWait)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("outbound channel was not closed")
		}
	}
}

// collectWrites drains currently buffered write commands after giving the
// actor a moment to emit them.
func (r *testRoom) collectWrites() []types.DbWriteCommand {
	time.Sleep(50 * time.Millisecond)
	var cmds []types.DbWriteCommand
	for {
		select {
		case cmd, ok := <-r.writes:
			if !ok {
				return cmds
			}
			cmds = append(cmds, cmd)
		default:
			return cmds
		}
	}
}

func decodePayload[T any](t *testing.T, frame types.Frame) T {
	t.Helper()
	var payload T
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	return payload
}
