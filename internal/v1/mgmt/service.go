package mgmt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/callback"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/registry"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/room"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/store"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

// statsQueryTimeout bounds how long a listing waits on one room actor.
const statsQueryTimeout = 5 * time.Second

// Service owns room lifecycle: durable creation, actor/writer spawning,
// control-message plumbing, and explicit close. Rooms never self-destruct on
// transient zero-connection intervals; DELETE is the only request that stops
// an actor (process shutdown stops them all).
type Service struct {
	reg        *registry.Registry
	store      *store.Store
	dispatcher *callback.Dispatcher
}

// NewService wires the room lifecycle service.
func NewService(reg *registry.Registry, st *store.Store, d *callback.Dispatcher) *Service {
	return &Service{reg: reg, store: st, dispatcher: d}
}

// CreateRoom persists a new room with its initial admin set and starts its
// actor and persistence writer.
func (s *Service) CreateRoom(ctx context.Context, name string, admins []types.UserIDType) (types.RoomIDType, error) {
	id := types.RoomIDType(uuid.NewString())
	createdAt := time.Now().Unix()

	if err := s.store.CreateRoom(ctx, id, name, createdAt, admins); err != nil {
		return "", ErrInternal(fmt.Sprintf("create room: %v", err))
	}

	if err := s.spawn(id, name, createdAt, admins, nil); err != nil {
		return "", err
	}

	s.dispatcher.RoomCreated(id, name)
	logging.Info(ctx, "room created",
		zap.String("room_id", string(id)), zap.String("room_name", name))
	return id, nil
}

// LoadPersistedRooms starts an actor for every room row found at boot,
// reloading each room's durable admin and ban sets.
func (s *Service) LoadPersistedRooms(ctx context.Context) error {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("load persisted rooms: %w", err)
	}
	for _, r := range rooms {
		admins, bans, err := s.store.LoadRoomState(ctx, types.RoomIDType(r.ID))
		if err != nil {
			return fmt.Errorf("load room %s state: %w", r.ID, err)
		}
		if err := s.spawn(types.RoomIDType(r.ID), r.Name, r.CreatedAt, admins, bans); err != nil {
			return err
		}
	}
	logging.Info(ctx, "persisted rooms restored", zap.Int("count", len(rooms)))
	return nil
}

// spawn registers the handle and starts the actor/writer pair.
func (s *Service) spawn(id types.RoomIDType, name string, createdAt int64, admins, bans []types.UserIDType) error {
	h := types.NewRoomHandle(id, name, types.Timestamp(createdAt))
	if !s.reg.Add(h) {
		return ErrInternal(fmt.Sprintf("room %s already registered", id))
	}

	actor := room.New(h, room.Options{
		Admins:              admins,
		Banned:              bans,
		UserMessageInterval: s.reg.Config().UserMessageInterval,
		Events:              s.dispatcher,
	})
	writer := store.NewWriter(s.store, id, h.Writes)

	go actor.Run()
	go writer.Run()
	return nil
}

// CloseRoom removes the room from the registry, stops its actor (which
// closes every live session through the write queue), and deletes the
// durable room row.
func (s *Service) CloseRoom(ctx context.Context, id types.RoomIDType) error {
	h, ok := s.reg.Remove(id)
	if !ok {
		return ErrNotFound("room not found")
	}
	h.Close()

	if err := s.store.DeleteRoom(ctx, id); err != nil {
		return ErrInternal(fmt.Sprintf("delete room: %v", err))
	}

	s.dispatcher.RoomClosed(id, h.Name)
	logging.Info(ctx, "room closed", zap.String("room_id", string(id)))
	return nil
}

// ListRooms queries every live actor for a detail snapshot.
func (s *Service) ListRooms(ctx context.Context) ([]types.RoomDetail, error) {
	handles := s.reg.List()
	details := make([]types.RoomDetail, 0, len(handles))
	for _, h := range handles {
		queryCtx, cancel := context.WithTimeout(ctx, statsQueryTimeout)
		detail, err := h.QueryStats(queryCtx)
		cancel()
		if err != nil {
			// The room may have been closed between List and the query.
			logging.Warn(ctx, "room stats query failed",
				zap.String("room_id", string(h.ID)), zap.Error(err))
			continue
		}
		details = append(details, detail)
	}
	return details, nil
}

// ResetAdmins durably replaces the room's admin set, then tells the actor.
// The is_admin snapshot cached on live connections is left untouched.
func (s *Service) ResetAdmins(ctx context.Context, id types.RoomIDType, admins []types.UserIDType) error {
	h, ok := s.reg.Get(id)
	if !ok {
		return ErrNotFound("room not found")
	}
	if err := s.store.ReplaceAdmins(ctx, id, admins); err != nil {
		return ErrInternal(fmt.Sprintf("replace admins: %v", err))
	}
	if err := h.SendControl(types.ResetAdmins{Admins: admins}); err != nil {
		return ErrInternal("room control channel closed")
	}
	return nil
}

// UnbanUser durably deletes the ban, then tells the actor to forget it.
func (s *Service) UnbanUser(ctx context.Context, id types.RoomIDType, userID types.UserIDType) error {
	h, ok := s.reg.Get(id)
	if !ok {
		return ErrNotFound("room not found")
	}
	if err := s.store.RemoveBan(ctx, id, userID); err != nil {
		return ErrInternal(fmt.Sprintf("remove ban: %v", err))
	}
	if err := h.SendControl(types.UnbanUser{UserID: userID}); err != nil {
		return ErrInternal("room control channel closed")
	}
	return nil
}
