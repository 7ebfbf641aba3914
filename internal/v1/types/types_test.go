package types

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"type":"SendMessage","payload":{"content":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, FrameSendMessage, frame.Type)
	assert.JSONEq(t, `{"content":"hi"}`, string(frame.Payload))

	_, err = DecodeFrame([]byte(`{not json`))
	assert.Error(t, err)

	_, err = DecodeFrame([]byte(`{"payload":{}}`))
	assert.Error(t, err, "missing type tag")
}

func TestEncodeFrameRoundTrip(t *testing.T) {
	data, err := EncodeFrame(FrameMessage, MessagePayload{From: "bob", Content: "hi", IsAdmin: true})
	require.NoError(t, err)

	frame, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, FrameMessage, frame.Type)
	assert.JSONEq(t, `{"from":"bob","content":"hi","is_admin":true}`, string(frame.Payload))
}

func TestEncodeFrameWithoutPayload(t *testing.T) {
	data, err := EncodeFrame(FrameYouAreKicked, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"YouAreKicked"}`, string(data))
}

func TestValidateChatContent(t *testing.T) {
	assert.Error(t, ValidateChatContent(""))
	assert.Error(t, ValidateChatContent(strings.Repeat("a", 1001)))
	assert.NoError(t, ValidateChatContent("hello"))
	assert.NoError(t, ValidateChatContent(strings.Repeat("a", 1000)))
}

func TestRoomHandleLifecycle(t *testing.T) {
	h := NewRoomHandle("room-1", "Test", 42)

	require.NoError(t, h.ForwardNormal(UserLeft{ConnID: "c"}))
	require.NoError(t, h.SendControl(UnbanUser{UserID: "u"}))

	h.Close()
	h.Close() // idempotent

	assert.ErrorIs(t, h.ForwardNormal(UserLeft{ConnID: "c"}), ErrRoomClosed)
	assert.ErrorIs(t, h.SendControl(UnbanUser{UserID: "u"}), ErrRoomClosed)

	_, err := h.QueryStats(context.Background())
	assert.ErrorIs(t, err, ErrRoomClosed)

	select {
	case <-h.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}
}

func TestQueryStatsHonorsCallerContext(t *testing.T) {
	h := NewRoomHandle("room-1", "Test", 0)
	defer h.Close()

	// Fill the stats port so the send blocks, then let the context expire.
	for i := 0; i < StatsBuffer; i++ {
		h.Stats <- StatsQuery{Reply: make(chan RoomDetail, 1)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.QueryStats(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
