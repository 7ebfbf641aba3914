// Package transport bridges WebSocket connections to room actors. Each
// accepted socket runs a goroutine pair: the reader deserializes inbound
// frames and forwards them to the room's normal-priority port; the writer
// drains the connection's outbound channel and serializes frames to the
// socket. The outbound channel's send side is owned by the room actor from
// registration until the actor closes it.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/registry"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

// writeWait bounds a single socket write.
const writeWait = 10 * time.Second

// wsConnection defines the interface for WebSocket connection operations.
// In production this is *websocket.Conn; tests use mock implementations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Client is one live socket bridged to a room actor.
type Client struct {
	conn   wsConnection
	room   *types.RoomHandle
	connID types.ConnIDType
	userID types.UserIDType

	// outbound is the receive side of the channel registered with the actor.
	outbound chan []byte

	// writeMu is the exclusive lock on the write half of the socket: the
	// writer pump and the local Pong reply both serialize through it.
	writeMu sync.Mutex

	slot *registry.ConnSlot
}

func newClient(conn wsConnection, room *types.RoomHandle, connID types.ConnIDType, userID types.UserIDType, slot *registry.ConnSlot) *Client {
	return &Client{
		conn:     conn,
		room:     room,
		connID:   connID,
		userID:   userID,
		outbound: make(chan []byte, types.OutboundBuffer),
		slot:     slot,
	}
}

// writeFrame writes one text frame under the write lock.
func (c *Client) writeFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// writePump drains the outbound channel until the actor closes it or a
// write fails, then closes the socket.
func (c *Client) writePump() {
	defer c.conn.Close()

	for frame := range c.outbound {
		if err := c.writeFrame(frame); err != nil {
			logging.Warn(context.Background(), "socket write failed",
				zap.String("conn_id", string(c.connID)), zap.Error(err))
			return
		}
	}
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
	c.writeMu.Unlock()
}

// readPump consumes inbound frames until socket EOF or an envelope decode
// failure, forwarding each as an internal message. It runs on the upgrade
// handler's goroutine; on exit it synthesizes a final UserLeft, closes the
// socket, and releases the connection slot.
func (c *Client) readPump() {
	defer func() {
		c.room.ForwardNormal(types.UserLeft{ConnID: c.connID})
		c.conn.Close()
		c.slot.Release()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		frame, err := types.DecodeFrame(data)
		if err != nil {
			logging.Warn(context.Background(), "undecodable frame, closing socket",
				zap.String("conn_id", string(c.connID)), zap.Error(err))
			return
		}

		if frame.Type == types.FramePing {
			c.answerPing(frame)
			continue
		}

		msg, ok := c.toInternal(frame)
		if !ok {
			continue
		}
		if err := c.room.ForwardNormal(msg); err != nil {
			return
		}
	}
}

// answerPing replies locally; Ping never reaches the room actor.
func (c *Client) answerPing(frame types.Frame) {
	var ping types.PingPayload
	if len(frame.Payload) > 0 {
		if err := json.Unmarshal(frame.Payload, &ping); err != nil {
			return
		}
	}
	pong, err := types.EncodeFrame(types.FramePong, types.PongPayload{Timestamp: ping.Timestamp})
	if err != nil {
		return
	}
	c.writeFrame(pong)
}

// toInternal maps a decoded wire frame to its internal message. Frames with
// unknown types or malformed payloads are dropped.
func (c *Client) toInternal(frame types.Frame) (types.InternalMessage, bool) {
	switch frame.Type {
	case types.FrameSendMessage:
		var p types.SendMessagePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, false
		}
		return types.SendMessage{ConnID: c.connID, Content: p.Content}, true
	case types.FrameKickUser:
		var p types.TargetUserPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, false
		}
		return types.KickUser{ConnID: c.connID, TargetUserID: p.UserID}, true
	case types.FrameMuteUser:
		var p types.TargetUserPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, false
		}
		return types.MuteUser{ConnID: c.connID, TargetUserID: p.UserID}, true
	case types.FrameCustomEvent:
		var p types.CustomEventPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return nil, false
		}
		return types.CustomEvent{ConnID: c.connID, EventType: p.EventType, Payload: p.Payload}, true
	default:
		logging.Warn(context.Background(), "dropping frame with unknown type",
			zap.String("conn_id", string(c.connID)),
			zap.String("type", string(frame.Type)))
		return nil, false
	}
}
