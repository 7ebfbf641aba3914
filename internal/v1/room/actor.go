// Package room implements the per-room concurrency engine: a single actor
// task exclusively owns one room's live connection set, presence state,
// admin/ban/mute sets, and running statistics. All external interactions
// arrive as messages on bounded ports; queries are answered over one-shot
// reply channels. The single owner serializes every mutation, which is what
// gives all members the same total order of broadcasts.
package room

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/metrics"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

const (
	// normalSlice caps consecutive normal-priority messages processed before
	// the actor re-checks the high-priority ports, so a chat flood cannot
	// starve control traffic or stats queries.
	normalSlice = 200

	// joinNotifyDelay is the debounce window that turns a burst of joins
	// into a single RoomStats broadcast.
	joinNotifyDelay = time.Second
)

// EventSink receives room lifecycle events for external delivery. A nil sink
// disables delivery.
type EventSink interface {
	UserJoined(roomID types.RoomIDType, userID types.UserIDType)
	UserLeft(roomID types.RoomIDType, userID types.UserIDType)
}

// connectionInfo is the actor-private record of one live connection. The
// actor owns the outbound channel from registration until it closes it.
type connectionInfo struct {
	connID        types.ConnIDType
	userID        types.UserIDType
	joinedAt      time.Time
	isAdmin       bool // snapshot taken at join; not refreshed by ResetAdmins
	outbound      chan []byte
	lastMessageAt time.Time
}

// roomStats is the running statistics block.
type roomStats struct {
	currentUsers int
	peakUsers    int
	totalJoins   int
}

// Options configures a room actor at start.
type Options struct {
	Admins              []types.UserIDType
	Banned              []types.UserIDType
	UserMessageInterval time.Duration
	Events              EventSink
}

// Actor owns one room's live state. Create with New, start with Run.
type Actor struct {
	handle *types.RoomHandle

	conns     map[types.ConnIDType]*connectionInfo
	userIndex map[types.UserIDType]types.ConnIDType

	admins set.Set[types.UserIDType]
	banned set.Set[types.UserIDType]
	muted  set.Set[types.UserIDType]

	stats roomStats

	messageInterval time.Duration
	events          EventSink

	// Join-notify debounce. statsPending is set by joins; debounceC is nil
	// while no timer is armed. The timer is one-shot, never restarted while
	// armed, and never cancelled (an idle fire only clears the flag).
	statsPending bool
	debounceC    <-chan time.Time
}

// New creates an actor for the handle with its persisted admin and ban sets
// loaded. Run must be started exactly once, on its own goroutine.
func New(h *types.RoomHandle, opts Options) *Actor {
	return &Actor{
		handle:          h,
		conns:           make(map[types.ConnIDType]*connectionInfo),
		userIndex:       make(map[types.UserIDType]types.ConnIDType),
		admins:          set.New(opts.Admins...),
		banned:          set.New(opts.Banned...),
		muted:           set.New[types.UserIDType](),
		messageInterval: opts.UserMessageInterval,
		events:          opts.Events,
	}
}

// Run is the actor loop. It multiplexes the four inbound ports under two
// rules: strict priority for high/control/stats, and a bounded slice of
// normal traffic between priority checks. It returns when the room handle is
// closed, after broadcasting a final RoomStats and releasing every
// connection.
func (a *Actor) Run() {
	defer a.shutdown()

	done := a.handle.Done()
	for {
		// Strict priority: service high-priority ports while any is ready.
		select {
		case <-done:
			return
		case msg := <-a.handle.HighPrio:
			a.handleInternal(msg)
			continue
		case ctl := <-a.handle.Control:
			a.handleControl(ctl)
			continue
		case q := <-a.handle.Stats:
			a.handleStats(q)
			continue
		case <-a.debounceC:
			a.fireJoinNotify()
			continue
		default:
		}

		// Nothing urgent: wait on every port.
		select {
		case <-done:
			return
		case msg := <-a.handle.HighPrio:
			a.handleInternal(msg)
		case ctl := <-a.handle.Control:
			a.handleControl(ctl)
		case q := <-a.handle.Stats:
			a.handleStats(q)
		case <-a.debounceC:
			a.fireJoinNotify()
		case msg := <-a.handle.Normal:
			a.handleInternal(msg)
			a.runNormalSlice(done)
		}
	}
}

// runNormalSlice greedily pulls queued normal traffic, up to the slice
// bound, re-checking the high-priority ports before every message. One
// message has already been consumed by the caller.
func (a *Actor) runNormalSlice(done <-chan struct{}) {
	for processed := 1; processed < normalSlice; processed++ {
		select {
		case <-done:
			return
		case msg := <-a.handle.HighPrio:
			a.handleInternal(msg)
			return
		case ctl := <-a.handle.Control:
			a.handleControl(ctl)
			return
		case q := <-a.handle.Stats:
			a.handleStats(q)
			return
		default:
		}

		select {
		case msg := <-a.handle.Normal:
			a.handleInternal(msg)
		default:
			return
		}
	}
}

// markStatsPending records that a RoomStats broadcast is due and arms the
// one-shot debounce timer if it is not already running.
func (a *Actor) markStatsPending() {
	a.statsPending = true
	if a.debounceC == nil {
		a.debounceC = time.After(joinNotifyDelay)
	}
}

// fireJoinNotify runs when the debounce timer fires.
func (a *Actor) fireJoinNotify() {
	a.debounceC = nil
	if !a.statsPending {
		return
	}
	a.statsPending = false
	a.broadcastRoomStats()
}

func (a *Actor) broadcastRoomStats() {
	frame, err := types.EncodeFrame(types.FrameRoomStats, types.RoomStatsPayload{
		CurrentUsers: a.stats.currentUsers,
		PeakUsers:    a.stats.peakUsers,
	})
	if err != nil {
		logging.Error(context.Background(), "encode RoomStats", zap.Error(err))
		return
	}
	a.broadcast(frame)
}

// broadcast fans a pre-encoded frame out to every connection. Sends never
// block the actor: a recipient whose outbound buffer is full loses the frame
// (bounded-buffer back-pressure per subscriber, not head-of-line).
func (a *Actor) broadcast(frame []byte) {
	for _, conn := range a.conns {
		a.push(conn, frame)
	}
}

func (a *Actor) push(conn *connectionInfo, frame []byte) {
	select {
	case conn.outbound <- frame:
	default:
		metrics.BroadcastDrops.Inc()
		logging.Warn(context.Background(), "dropping frame to slow connection",
			zap.String("room_id", string(a.handle.ID)),
			zap.String("conn_id", string(conn.connID)),
			zap.String("user_id", string(conn.userID)))
	}
}

// pushFrame encodes and sends one frame to a single connection.
func (a *Actor) pushFrame(conn *connectionInfo, t types.FrameType, payload any) {
	frame, err := types.EncodeFrame(t, payload)
	if err != nil {
		logging.Error(context.Background(), "encode frame",
			zap.String("type", string(t)), zap.Error(err))
		return
	}
	a.push(conn, frame)
}

// broadcastFrame encodes once and fans out.
func (a *Actor) broadcastFrame(t types.FrameType, payload any) {
	frame, err := types.EncodeFrame(t, payload)
	if err != nil {
		logging.Error(context.Background(), "encode frame",
			zap.String("type", string(t)), zap.Error(err))
		return
	}
	a.broadcast(frame)
}

// emitWrite enqueues a persistence command. The write queue is generously
// bounded; blocking here is acceptable because the actor is the only
// producer and its rate is already controlled.
func (a *Actor) emitWrite(cmd types.DbWriteCommand) {
	a.handle.Writes <- cmd
}

// handleStats answers a stats query with a consistent snapshot.
func (a *Actor) handleStats(q types.StatsQuery) {
	detail := types.RoomDetail{
		RoomID:        a.handle.ID,
		RoomName:      a.handle.Name,
		CreatedAt:     a.handle.CreatedAt,
		CurrentUsers:  a.stats.currentUsers,
		PeakUsers:     a.stats.peakUsers,
		TotalJoins:    a.stats.totalJoins,
		AdminUserIDs:  sortedIDs(a.admins),
		BannedUserIDs: sortedIDs(a.banned),
	}
	// Reply channels are buffered one deep; an abandoned query never blocks
	// the actor.
	select {
	case q.Reply <- detail:
	default:
	}
}

func sortedIDs(s set.Set[types.UserIDType]) []types.UserIDType {
	ids := s.UnsortedList()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// handleControl applies a management-surface control message.
func (a *Actor) handleControl(msg types.ControlMessage) {
	switch c := msg.(type) {
	case types.ResetAdmins:
		a.admins = set.New(c.Admins...)
		metrics.RoomMessages.WithLabelValues("ResetAdmins", "ok").Inc()
	case types.UnbanUser:
		a.banned.Delete(c.UserID)
		metrics.RoomMessages.WithLabelValues("UnbanUser", "ok").Inc()
	}
}

// shutdown runs exactly once when the actor loop exits. It broadcasts a
// final RoomStats to whatever connections remain, closes every session row
// via the write queue, closes all outbound channels (unblocking writer
// tasks), and finally closes the write queue so the persistence writer
// drains and stops.
func (a *Actor) shutdown() {
	a.broadcastFrame(types.FrameSystem, types.SystemPayload{Message: "房间已关闭"})
	a.broadcastRoomStats()

	for _, conn := range a.conns {
		a.emitWrite(types.WriteUserLeft{
			RoomID:      a.handle.ID,
			UserID:      conn.userID,
			JoinInstant: conn.joinedAt,
		})
		close(conn.outbound)
	}
	a.conns = make(map[types.ConnIDType]*connectionInfo)
	a.userIndex = make(map[types.UserIDType]types.ConnIDType)
	a.stats.currentUsers = 0

	metrics.RoomUsers.DeleteLabelValues(string(a.handle.ID))
	close(a.handle.Writes)

	logging.Info(context.Background(), "room actor stopped",
		zap.String("room_id", string(a.handle.ID)))
}
