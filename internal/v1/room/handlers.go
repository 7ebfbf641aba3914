package room

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/metrics"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

// User-facing notice strings.
const (
	noticeBannedRejoin = "你已被踢出该房间，无法再次加入"
	noticeRateLimited  = "发送太频繁，请 %d 秒后再试"
)

// handleInternal dispatches one message from the high- or normal-priority
// port to its variant handler.
func (a *Actor) handleInternal(msg types.InternalMessage) {
	switch m := msg.(type) {
	case types.UserJoined:
		a.handleUserJoined(m)
	case types.UserLeft:
		a.handleUserLeft(m)
	case types.SendMessage:
		a.handleSendMessage(m)
	case types.KickUser:
		a.handleKickUser(m)
	case types.MuteUser:
		a.handleMuteUser(m)
	case types.CustomEvent:
		a.handleCustomEvent(m)
	default:
		logging.Warn(context.Background(), "unknown internal message",
			zap.String("room_id", string(a.handle.ID)))
	}
}

func (a *Actor) handleUserJoined(m types.UserJoined) {
	if a.banned.Has(m.UserID) {
		reject := &connectionInfo{connID: m.ConnID, userID: m.UserID, outbound: m.Outbound}
		a.pushFrame(reject, types.FrameError, types.ErrorPayload{Message: noticeBannedRejoin})
		close(m.Outbound)
		metrics.RoomMessages.WithLabelValues("UserJoined", "banned").Inc()
		return
	}

	// At most one live connection per user id: a newer session displaces the
	// older one.
	if oldConnID, ok := a.userIndex[m.UserID]; ok {
		if old, ok := a.conns[oldConnID]; ok {
			a.evict(old)
		}
	}

	conn := &connectionInfo{
		connID:   m.ConnID,
		userID:   m.UserID,
		joinedAt: m.JoinedAt,
		isAdmin:  a.admins.Has(m.UserID),
		outbound: m.Outbound,
	}

	a.pushFrame(conn, types.FrameWelcomeInfo, types.WelcomeInfoPayload{
		UserID:  m.UserID,
		IsMuted: a.muted.Has(m.UserID),
	})

	a.broadcastFrame(types.FrameUserJoined, types.PresencePayload{UserID: m.UserID})

	a.conns[m.ConnID] = conn
	a.userIndex[m.UserID] = m.ConnID

	a.emitWrite(types.WriteUserJoined{
		RoomID:   a.handle.ID,
		UserID:   m.UserID,
		JoinTime: m.JoinedAt,
	})

	a.stats.currentUsers++
	a.stats.totalJoins++
	if a.stats.currentUsers > a.stats.peakUsers {
		a.stats.peakUsers = a.stats.currentUsers
	}
	metrics.RoomUsers.WithLabelValues(string(a.handle.ID)).Set(float64(a.stats.currentUsers))
	metrics.RoomMessages.WithLabelValues("UserJoined", "ok").Inc()

	a.markStatsPending()

	if a.events != nil {
		a.events.UserJoined(a.handle.ID, m.UserID)
	}
}

func (a *Actor) handleUserLeft(m types.UserLeft) {
	conn, ok := a.conns[m.ConnID]
	if !ok {
		// Late leave after an eviction or displacement; nothing to do.
		return
	}
	a.remove(conn)
	a.broadcastFrame(types.FrameUserLeft, types.PresencePayload{UserID: conn.userID})
	metrics.RoomMessages.WithLabelValues("UserLeft", "ok").Inc()

	if a.events != nil {
		a.events.UserLeft(a.handle.ID, conn.userID)
	}
}

func (a *Actor) handleSendMessage(m types.SendMessage) {
	conn, ok := a.conns[m.ConnID]
	if !ok {
		return
	}

	if a.muted.Has(conn.userID) {
		a.pushFrame(conn, types.FrameYouAreMuted, nil)
		metrics.RoomMessages.WithLabelValues("SendMessage", "muted").Inc()
		return
	}

	now := time.Now()
	if !conn.isAdmin && a.messageInterval > 0 && !conn.lastMessageAt.IsZero() {
		if elapsed := now.Sub(conn.lastMessageAt); elapsed < a.messageInterval {
			remaining := int(math.Ceil((a.messageInterval - elapsed).Seconds()))
			a.pushFrame(conn, types.FrameError, types.ErrorPayload{
				Message: fmt.Sprintf(noticeRateLimited, remaining),
			})
			metrics.RoomMessages.WithLabelValues("SendMessage", "rate_limited").Inc()
			return
		}
	}

	if err := types.ValidateChatContent(m.Content); err != nil {
		a.pushFrame(conn, types.FrameError, types.ErrorPayload{Message: err.Error()})
		metrics.RoomMessages.WithLabelValues("SendMessage", "invalid").Inc()
		return
	}

	conn.lastMessageAt = now

	a.emitWrite(types.WriteChatMessage{
		RoomID:    a.handle.ID,
		UserID:    conn.userID,
		Content:   m.Content,
		CreatedAt: now,
	})

	a.broadcastFrame(types.FrameMessage, types.MessagePayload{
		From:    conn.userID,
		Content: m.Content,
		IsAdmin: conn.isAdmin,
	})
	metrics.RoomMessages.WithLabelValues("SendMessage", "ok").Inc()
}

func (a *Actor) handleKickUser(m types.KickUser) {
	caller, ok := a.conns[m.ConnID]
	if !ok || !caller.isAdmin {
		// Authorization failures are dropped without a reply.
		metrics.RoomMessages.WithLabelValues("KickUser", "forbidden").Inc()
		return
	}

	a.banned.Insert(m.TargetUserID)
	a.emitWrite(types.WriteBanUser{RoomID: a.handle.ID, UserID: m.TargetUserID})

	if connID, ok := a.userIndex[m.TargetUserID]; ok {
		if target, ok := a.conns[connID]; ok {
			a.evict(target)
			a.broadcastFrame(types.FrameUserLeft, types.PresencePayload{UserID: m.TargetUserID})
			if a.events != nil {
				a.events.UserLeft(a.handle.ID, m.TargetUserID)
			}
		}
	}
	metrics.RoomMessages.WithLabelValues("KickUser", "ok").Inc()
}

func (a *Actor) handleMuteUser(m types.MuteUser) {
	caller, ok := a.conns[m.ConnID]
	if !ok || !caller.isAdmin {
		metrics.RoomMessages.WithLabelValues("MuteUser", "forbidden").Inc()
		return
	}
	a.muted.Insert(m.TargetUserID)
	a.broadcastFrame(types.FrameUserMuted, types.PresencePayload{UserID: m.TargetUserID})
	metrics.RoomMessages.WithLabelValues("MuteUser", "ok").Inc()
}

func (a *Actor) handleCustomEvent(m types.CustomEvent) {
	caller, ok := a.conns[m.ConnID]
	if !ok || !caller.isAdmin {
		metrics.RoomMessages.WithLabelValues("CustomEvent", "forbidden").Inc()
		return
	}
	a.broadcastFrame(types.FrameCustomEvent, types.CustomEventPayload{
		EventType: m.EventType,
		Payload:   m.Payload,
	})
	metrics.RoomMessages.WithLabelValues("CustomEvent", "ok").Inc()
}

// evict forcibly removes a connection: a YouAreKicked frame, then removal
// with its session row closed.
func (a *Actor) evict(conn *connectionInfo) {
	a.pushFrame(conn, types.FrameYouAreKicked, nil)
	a.remove(conn)
}

// remove deletes a connection from the actor's maps, closes its session row
// through the write queue, closes its outbound channel, and updates stats.
func (a *Actor) remove(conn *connectionInfo) {
	delete(a.conns, conn.connID)
	if current, ok := a.userIndex[conn.userID]; ok && current == conn.connID {
		delete(a.userIndex, conn.userID)
	}

	a.emitWrite(types.WriteUserLeft{
		RoomID:      a.handle.ID,
		UserID:      conn.userID,
		JoinInstant: conn.joinedAt,
	})
	close(conn.outbound)

	a.stats.currentUsers--
	metrics.RoomUsers.WithLabelValues(string(a.handle.ID)).Set(float64(a.stats.currentUsers))
}
