// Package registry holds the process-wide map of live rooms and the global
// connection counter. The mutex guards only map lookups and mutations; it is
// never held across I/O or across sends on a room's channels.
package registry

import (
	"sync"
	"sync/atomic"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/config"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/metrics"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

// Registry is the shared state every component reaches rooms through.
type Registry struct {
	mu    sync.Mutex
	rooms map[types.RoomIDType]*types.RoomHandle

	connections atomic.Int64
	cfg         *config.Config
}

// New creates an empty registry with an immutable config snapshot.
func New(cfg *config.Config) *Registry {
	return &Registry{
		rooms: make(map[types.RoomIDType]*types.RoomHandle),
		cfg:   cfg,
	}
}

// Config returns the immutable configuration snapshot.
func (r *Registry) Config() *config.Config { return r.cfg }

// Add registers a room handle. Returns false when the id is already present.
func (r *Registry) Add(h *types.RoomHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[h.ID]; exists {
		return false
	}
	r.rooms[h.ID] = h
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	return true
}

// Get looks up a live room handle.
func (r *Registry) Get(id types.RoomIDType) (*types.RoomHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.rooms[id]
	return h, ok
}

// Remove unregisters a room and returns its handle, if any. The caller is
// responsible for closing the handle after releasing the registry.
func (r *Registry) Remove(id types.RoomIDType) (*types.RoomHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.rooms[id]
	if ok {
		delete(r.rooms, id)
		metrics.ActiveRooms.Set(float64(len(r.rooms)))
	}
	return h, ok
}

// List snapshots the live room handles.
func (r *Registry) List() []*types.RoomHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]*types.RoomHandle, 0, len(r.rooms))
	for _, h := range r.rooms {
		handles = append(handles, h)
	}
	return handles
}

// ConnSlot is a scoped reservation against the global connection cap.
// Release is idempotent and must run on every exit path.
type ConnSlot struct {
	reg      *Registry
	released atomic.Bool
}

// Release returns the slot to the pool.
func (s *ConnSlot) Release() {
	if s == nil || !s.released.CompareAndSwap(false, true) {
		return
	}
	s.reg.connections.Add(-1)
	metrics.DecConnection()
}

// AcquireConn atomically checks the global connection count against the cap
// and reserves a slot. Returns nil when the server is full; the counter is
// untouched in that case.
func (r *Registry) AcquireConn() *ConnSlot {
	limit := int64(r.cfg.MaxConnections)
	for {
		current := r.connections.Load()
		if current >= limit {
			metrics.ConnectionsRejected.Inc()
			return nil
		}
		if r.connections.CompareAndSwap(current, current+1) {
			metrics.IncConnection()
			return &ConnSlot{reg: r}
		}
	}
}

// ConnectionCount reports the current number of reserved slots.
func (r *Registry) ConnectionCount() int64 {
	return r.connections.Load()
}
