package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/metrics"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

const (
	// batchWait is how long the writer blocks for the first command of a
	// batch before re-checking its input.
	batchWait = 200 * time.Millisecond
	// maxBatch bounds the number of commands committed per transaction.
	maxBatch = 100
)

// Writer is the per-room write-behind persistence consumer. It coalesces the
// room actor's command stream into bounded transactional batches: wait for
// the first command, greedily drain until the channel momentarily empties or
// the batch fills, commit once.
//
// Durability is at-most-once on failure: a batch that fails to commit is
// logged and discarded, and the actor is never informed.
type Writer struct {
	store  *Store
	roomID types.RoomIDType
	in     <-chan types.DbWriteCommand
}

// NewWriter creates a Writer consuming commands for one room.
func NewWriter(s *Store, roomID types.RoomIDType, in <-chan types.DbWriteCommand) *Writer {
	return &Writer{store: s, roomID: roomID, in: in}
}

// Run consumes until the input channel is closed, flushing any tail batch
// before returning. Intended to run as its own goroutine.
func (w *Writer) Run() {
	ctx := context.Background()
	batch := make([]types.DbWriteCommand, 0, maxBatch)

	for {
		// Block-wait for the first command of the next batch.
		select {
		case cmd, ok := <-w.in:
			if !ok {
				return
			}
			batch = append(batch, cmd)
		case <-time.After(batchWait):
			continue
		}

		// Greedily drain without blocking until the batch fills or the
		// channel momentarily empties.
	drain:
		for len(batch) < maxBatch {
			select {
			case cmd, ok := <-w.in:
				if !ok {
					w.flush(ctx, batch)
					return
				}
				batch = append(batch, cmd)
			default:
				break drain
			}
		}

		w.flush(ctx, batch)
		batch = batch[:0]
	}
}

func (w *Writer) flush(ctx context.Context, batch []types.DbWriteCommand) {
	if len(batch) == 0 {
		return
	}
	if err := w.store.ApplyBatch(ctx, batch); err != nil {
		metrics.DbBatchFailures.Inc()
		logging.Error(ctx, "discarding failed write batch",
			zap.String("room_id", string(w.roomID)),
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
		return
	}
	metrics.DbBatchSize.Observe(float64(len(batch)))
}
