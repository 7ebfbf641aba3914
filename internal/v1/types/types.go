// Package types defines shared types and constants for the application.
package types

import (
	"context"
	"errors"
	"time"
)

// --- Core Domain Types ---

// RoomIDType represents a unique identifier for a chat room.
type RoomIDType string

// UserIDType represents the caller-supplied user identity. It is opaque and
// not authenticated; at most one live connection per user id exists per room.
type UserIDType string

// ConnIDType represents a unique identifier for a single WebSocket connection,
// minted fresh on upgrade.
type ConnIDType string

// Timestamp represents a Unix timestamp in seconds.
type Timestamp int64

// Channel capacities for a room's inbound ports and its write queue.
// All inter-task channels are bounded; a slow consumer slows its producer.
const (
	HighPrioBuffer = 100  // latency-sensitive traffic
	NormalBuffer   = 100  // ordinary chat and presence traffic
	ControlBuffer  = 32   // management-surface control messages
	StatsBuffer    = 32   // stats queries with one-shot replies
	WriteBuffer    = 1024 // persistence commands
	OutboundBuffer = 10   // per-connection outbound frames
)

// --- Internal Messages (socket -> room actor) ---

// InternalMessage is the sum type carried on a room's high- and
// normal-priority ports. Exactly one variant per inbound event.
type InternalMessage interface{ isInternalMessage() }

// UserJoined registers a new connection with the room actor. The outbound
// channel is moved into the actor, which owns it for the connection's
// lifetime; the connection's writer task holds only the receiving side.
type UserJoined struct {
	ConnID   ConnIDType
	UserID   UserIDType
	JoinedAt time.Time
	Outbound chan []byte
}

// UserLeft removes a connection after socket EOF or a decode failure.
type UserLeft struct {
	ConnID ConnIDType
}

// SendMessage carries a chat message from a connected sender.
type SendMessage struct {
	ConnID  ConnIDType
	Content string
}

// KickUser is an admin request to ban and evict a user.
type KickUser struct {
	ConnID       ConnIDType
	TargetUserID UserIDType
}

// MuteUser is an admin request to mute a user for the room's lifetime.
type MuteUser struct {
	ConnID       ConnIDType
	TargetUserID UserIDType
}

// CustomEvent is an admin-only application event broadcast unchanged.
type CustomEvent struct {
	ConnID    ConnIDType
	EventType string
	Payload   []byte
}

func (UserJoined) isInternalMessage()  {}
func (UserLeft) isInternalMessage()    {}
func (SendMessage) isInternalMessage() {}
func (KickUser) isInternalMessage()    {}
func (MuteUser) isInternalMessage()    {}
func (CustomEvent) isInternalMessage() {}

// --- Control Messages (management surface -> room actor) ---

// ControlMessage is the sum type carried on a room's control port.
type ControlMessage interface{ isControlMessage() }

// ResetAdmins replaces the in-memory admin set. The is_admin snapshot cached
// on existing connections is not updated; a promoted admin must reconnect.
type ResetAdmins struct {
	Admins []UserIDType
}

// UnbanUser removes a user from the in-memory ban set. The durable delete is
// performed by the management surface before this message is sent.
type UnbanUser struct {
	UserID UserIDType
}

func (ResetAdmins) isControlMessage() {}
func (UnbanUser) isControlMessage()   {}

// --- Stats Queries ---

// StatsQuery carries a one-shot reply channel. The actor answers with a
// consistent snapshot of the room's live state.
type StatsQuery struct {
	Reply chan RoomDetail
}

// RoomDetail is a point-in-time snapshot of one room.
type RoomDetail struct {
	RoomID        RoomIDType   `json:"room_id"`
	RoomName      string       `json:"room_name"`
	CreatedAt     Timestamp    `json:"created_at"`
	CurrentUsers  int          `json:"current_users"`
	PeakUsers     int          `json:"peak_users"`
	TotalJoins    int          `json:"total_joins"`
	AdminUserIDs  []UserIDType `json:"admin_user_ids"`
	BannedUserIDs []UserIDType `json:"banned_user_ids"`
}

// --- Persistence Commands (room actor -> persistence writer) ---

// DbWriteCommand is the sum type consumed by a room's persistence writer.
type DbWriteCommand interface{ isDbWriteCommand() }

// WriteUserJoined inserts a session row with a null leave_time.
type WriteUserJoined struct {
	RoomID   RoomIDType
	UserID   UserIDType
	JoinTime time.Time
}

// WriteUserLeft closes the newest still-open session for (room, user).
// JoinInstant retains the monotonic clock reading from the join, so the
// writer computes the duration without trusting wall-clock arithmetic.
type WriteUserLeft struct {
	RoomID      RoomIDType
	UserID      UserIDType
	JoinInstant time.Time
}

// WriteChatMessage inserts a chat history row.
type WriteChatMessage struct {
	RoomID    RoomIDType
	UserID    UserIDType
	Content   string
	CreatedAt time.Time
}

// WriteBanUser records a ban; idempotent.
type WriteBanUser struct {
	RoomID RoomIDType
	UserID UserIDType
}

// WriteUnbanUser deletes a ban row.
type WriteUnbanUser struct {
	RoomID RoomIDType
	UserID UserIDType
}

func (WriteUserJoined) isDbWriteCommand()  {}
func (WriteUserLeft) isDbWriteCommand()    {}
func (WriteChatMessage) isDbWriteCommand() {}
func (WriteBanUser) isDbWriteCommand()     {}
func (WriteUnbanUser) isDbWriteCommand()   {}

// --- Room Handle ---

// RoomHandle is the registry-visible face of a live room: its inbound ports,
// its write queue, and its lifecycle context. Only the owning actor reads the
// ports; everything else communicates through them.
type RoomHandle struct {
	ID        RoomIDType
	Name      string
	CreatedAt Timestamp

	HighPrio chan InternalMessage
	Normal   chan InternalMessage
	Control  chan ControlMessage
	Stats    chan StatsQuery
	Writes   chan DbWriteCommand

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRoomHandle allocates the bounded ports for one room.
func NewRoomHandle(id RoomIDType, name string, createdAt Timestamp) *RoomHandle {
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomHandle{
		ID:        id,
		Name:      name,
		CreatedAt: createdAt,
		HighPrio:  make(chan InternalMessage, HighPrioBuffer),
		Normal:    make(chan InternalMessage, NormalBuffer),
		Control:   make(chan ControlMessage, ControlBuffer),
		Stats:     make(chan StatsQuery, StatsBuffer),
		Writes:    make(chan DbWriteCommand, WriteBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Done is closed once the room has been asked to shut down.
func (h *RoomHandle) Done() <-chan struct{} { return h.ctx.Done() }

// Close signals the actor to terminate. Safe to call more than once.
// The inbound ports themselves are never closed; cancellation is the single
// shutdown signal, which avoids send/close races between socket readers and
// the management surface. The write queue is closed by the actor, its only
// producer, as it stops.
func (h *RoomHandle) Close() { h.cancel() }

// ErrRoomClosed is returned when a send is attempted against a room that has
// been shut down.
var ErrRoomClosed = errors.New("room closed")

// ForwardNormal enqueues a socket message on the normal-priority port.
// It blocks when the port is full (back-pressure onto the socket reader)
// and fails once the room is shutting down.
func (h *RoomHandle) ForwardNormal(msg InternalMessage) error {
	select {
	case <-h.ctx.Done():
		return ErrRoomClosed
	case h.Normal <- msg:
		return nil
	}
}

// SendControl enqueues a control message from the management surface.
func (h *RoomHandle) SendControl(msg ControlMessage) error {
	select {
	case <-h.ctx.Done():
		return ErrRoomClosed
	case h.Control <- msg:
		return nil
	}
}

// QueryStats asks the actor for a snapshot and waits for the one-shot reply.
func (h *RoomHandle) QueryStats(ctx context.Context) (RoomDetail, error) {
	q := StatsQuery{Reply: make(chan RoomDetail, 1)}
	select {
	case <-h.ctx.Done():
		return RoomDetail{}, ErrRoomClosed
	case <-ctx.Done():
		return RoomDetail{}, ctx.Err()
	case h.Stats <- q:
	}
	select {
	case <-h.ctx.Done():
		return RoomDetail{}, ErrRoomClosed
	case <-ctx.Done():
		return RoomDetail{}, ctx.Err()
	case detail := <-q.Reply:
		return detail, nil
	}
}
