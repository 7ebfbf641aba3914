// Package syncsvc periodically fans every room's history out through the
// callback dispatcher, and serves the on-demand push/pull entry points used
// by the management surface.
package syncsvc

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/callback"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/registry"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/store"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

// statsQueryTimeout bounds how long a sync waits on one room actor.
const statsQueryTimeout = 5 * time.Second

// Service drives periodic and on-demand history export.
type Service struct {
	reg        *registry.Registry
	store      *store.Store
	dispatcher *callback.Dispatcher
	interval   time.Duration
}

// New wires the sync service.
func New(reg *registry.Registry, st *store.Store, d *callback.Dispatcher, interval time.Duration) *Service {
	return &Service{reg: reg, store: st, dispatcher: d, interval: interval}
}

// Run executes the periodic sync until ctx is cancelled. Intended to run as
// its own goroutine from main.
func (s *Service) Run(ctx context.Context) {
	if s.interval <= 0 {
		logging.Info(ctx, "periodic sync disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SyncAll(ctx)
		}
	}
}

// BuildRoomData joins a room's live stats snapshot with a full dump of its
// durable chat and session history.
func (s *Service) BuildRoomData(ctx context.Context, h *types.RoomHandle) (callback.RoomData, error) {
	queryCtx, cancel := context.WithTimeout(ctx, statsQueryTimeout)
	defer cancel()

	detail, err := h.QueryStats(queryCtx)
	if err != nil {
		return callback.RoomData{}, err
	}

	chats, err := s.store.ChatHistoryAll(ctx, h.ID)
	if err != nil {
		return callback.RoomData{}, err
	}
	sessions, err := s.store.SessionHistoryAll(ctx, h.ID)
	if err != nil {
		return callback.RoomData{}, err
	}

	return callback.RoomData{
		EventType:      callback.EventRoomDataSync,
		Room:           detail,
		ChatHistory:    chats,
		SessionHistory: callback.ToSessionEntries(sessions),
		Timestamp:      time.Now().Unix(),
	}, nil
}

// SyncRoom pushes one room's combined payload to the data callback.
func (s *Service) SyncRoom(ctx context.Context, h *types.RoomHandle) error {
	data, err := s.BuildRoomData(ctx, h)
	if err != nil {
		return err
	}
	return s.dispatcher.SendRoomData(ctx, data)
}

// SyncAll pushes every registered room concurrently. Failures are logged per
// room; the service does not retry beyond what the dispatcher already does.
func (s *Service) SyncAll(ctx context.Context) {
	handles := s.reg.List()
	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *types.RoomHandle) {
			defer wg.Done()
			if err := s.SyncRoom(ctx, h); err != nil {
				logging.Warn(ctx, "room sync failed",
					zap.String("room_id", string(h.ID)),
					zap.Error(err))
			}
		}(h)
	}
	wg.Wait()
	logging.Info(ctx, "room sync completed", zap.Int("rooms", len(handles)))
}

// PullAll assembles the combined payloads for every registered room without
// posting them; used by the management pull endpoint.
func (s *Service) PullAll(ctx context.Context) ([]callback.RoomData, error) {
	handles := s.reg.List()
	out := make([]callback.RoomData, 0, len(handles))
	for _, h := range handles {
		data, err := s.BuildRoomData(ctx, h)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
