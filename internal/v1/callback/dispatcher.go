// Package callback delivers JSON events to the configured webhook URLs.
// Delivery is at-least-once with bounded retry and no persistent outbox: an
// event that still fails after the final attempt is logged and dropped.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/config"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/logging"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/metrics"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/store"
	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

// Event type tags.
const (
	EventRoomCreated         = "RoomCreated"
	EventRoomClosed          = "RoomClosed"
	EventUserJoined          = "UserJoined"
	EventUserLeft            = "UserLeft"
	EventChatHistoryBatch    = "ChatHistoryBatch"
	EventSessionHistoryBatch = "SessionHistoryBatch"
	EventRoomDataSync        = "RoomDataSync"
)

// LifecycleEvent is emitted at most once per occurrence, as soon as the
// occurrence happens.
type LifecycleEvent struct {
	EventType string `json:"event_type"`
	RoomID    string `json:"room_id"`
	RoomName  string `json:"room_name,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ChatHistoryBatch is one page of a room's chat history.
type ChatHistoryBatch struct {
	EventType   string             `json:"event_type"`
	RoomID      string             `json:"room_id"`
	BatchID     string             `json:"batch_id"`
	IsLastBatch bool               `json:"is_last_batch"`
	Messages    []store.ChatRecord `json:"messages"`
	Timestamp   int64              `json:"timestamp"`
}

// SessionEntry is the wire shape of one session row; leave_time and
// duration_seconds are null while the session is live.
type SessionEntry struct {
	ID              int64  `json:"id"`
	RoomID          string `json:"room_id"`
	UserID          string `json:"user_id"`
	JoinTime        int64  `json:"join_time"`
	LeaveTime       *int64 `json:"leave_time"`
	DurationSeconds *int64 `json:"duration_seconds"`
}

// SessionHistoryBatch is one page of a room's session history.
type SessionHistoryBatch struct {
	EventType   string         `json:"event_type"`
	RoomID      string         `json:"room_id"`
	BatchID     string         `json:"batch_id"`
	IsLastBatch bool           `json:"is_last_batch"`
	Sessions    []SessionEntry `json:"sessions"`
	Timestamp   int64          `json:"timestamp"`
}

// RoomData is the combined payload posted to the legacy data callback by the
// sync service, and returned by the management pull endpoint.
type RoomData struct {
	EventType      string             `json:"event_type"`
	Room           types.RoomDetail   `json:"room"`
	ChatHistory    []store.ChatRecord `json:"chat_history"`
	SessionHistory []SessionEntry     `json:"session_history"`
	Timestamp      int64              `json:"timestamp"`
}

// Dispatcher POSTs events to the configured webhook URLs with retry and a
// circuit breaker. Each target URL is independently optional; an absent URL
// silently disables that event family.
type Dispatcher struct {
	client *http.Client
	cb     *gobreaker.CircuitBreaker

	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	batchSize  int

	lifecycleURL      string
	userActivityURL   string
	chatHistoryURL    string
	sessionHistoryURL string
	dataURL           string

	store *store.Store
}

// New builds a Dispatcher from config. The store is used to paginate the
// durable history tables.
func New(cfg *config.Config, st *store.Store) *Dispatcher {
	settings := gobreaker.Settings{
		Name:        "webhook",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("webhook").Set(stateVal)
		},
	}

	return &Dispatcher{
		client:            &http.Client{Timeout: cfg.CallbackTimeout},
		cb:                gobreaker.NewCircuitBreaker(settings),
		maxRetries:        cfg.CallbackMaxRetries,
		retryDelay:        cfg.CallbackRetryDelay,
		timeout:           cfg.CallbackTimeout,
		batchSize:         cfg.HistoryBatchSize,
		lifecycleURL:      cfg.RoomLifecycleCallbackURL,
		userActivityURL:   cfg.UserActivityCallbackURL,
		chatHistoryURL:    cfg.ChatHistoryCallbackURL,
		sessionHistoryURL: cfg.SessionHistoryCallbackURL,
		dataURL:           cfg.DataCallbackURL,
		store:             st,
	}
}

// --- Lifecycle events ---

// RoomCreated announces a new room.
func (d *Dispatcher) RoomCreated(roomID types.RoomIDType, name string) {
	go d.deliver(context.Background(), d.lifecycleURL, LifecycleEvent{
		EventType: EventRoomCreated,
		RoomID:    string(roomID),
		RoomName:  name,
		Timestamp: time.Now().Unix(),
	})
}

// RoomClosed announces a room shutdown.
func (d *Dispatcher) RoomClosed(roomID types.RoomIDType, name string) {
	go d.deliver(context.Background(), d.lifecycleURL, LifecycleEvent{
		EventType: EventRoomClosed,
		RoomID:    string(roomID),
		RoomName:  name,
		Timestamp: time.Now().Unix(),
	})
}

// UserJoined implements the room actor's event sink.
func (d *Dispatcher) UserJoined(roomID types.RoomIDType, userID types.UserIDType) {
	go d.deliver(context.Background(), d.userActivityURL, LifecycleEvent{
		EventType: EventUserJoined,
		RoomID:    string(roomID),
		UserID:    string(userID),
		Timestamp: time.Now().Unix(),
	})
}

// UserLeft implements the room actor's event sink.
func (d *Dispatcher) UserLeft(roomID types.RoomIDType, userID types.UserIDType) {
	go d.deliver(context.Background(), d.userActivityURL, LifecycleEvent{
		EventType: EventUserLeft,
		RoomID:    string(roomID),
		UserID:    string(userID),
		Timestamp: time.Now().Unix(),
	})
}

// --- History batches ---

// SendChatHistory paginates a room's chat history into batch events. At
// least one batch is always sent so the receiver observes the terminal flag.
func (d *Dispatcher) SendChatHistory(ctx context.Context, roomID types.RoomIDType) error {
	if d.chatHistoryURL == "" {
		return nil
	}
	for page := 0; ; page++ {
		rows, err := d.store.ChatHistoryPage(ctx, roomID, d.batchSize, page*d.batchSize)
		if err != nil {
			return err
		}
		isLast := len(rows) < d.batchSize
		event := ChatHistoryBatch{
			EventType:   EventChatHistoryBatch,
			RoomID:      string(roomID),
			BatchID:     fmt.Sprintf("chat_%s_%d", roomID, page),
			IsLastBatch: isLast,
			Messages:    rows,
			Timestamp:   time.Now().Unix(),
		}
		if err := d.deliver(ctx, d.chatHistoryURL, event); err != nil {
			return err
		}
		if isLast {
			return nil
		}
	}
}

// SendSessionHistory paginates a room's session history into batch events.
func (d *Dispatcher) SendSessionHistory(ctx context.Context, roomID types.RoomIDType) error {
	if d.sessionHistoryURL == "" {
		return nil
	}
	for page := 0; ; page++ {
		rows, err := d.store.SessionHistoryPage(ctx, roomID, d.batchSize, page*d.batchSize)
		if err != nil {
			return err
		}
		isLast := len(rows) < d.batchSize
		event := SessionHistoryBatch{
			EventType:   EventSessionHistoryBatch,
			RoomID:      string(roomID),
			BatchID:     fmt.Sprintf("session_%s_%d", roomID, page),
			IsLastBatch: isLast,
			Sessions:    ToSessionEntries(rows),
			Timestamp:   time.Now().Unix(),
		}
		if err := d.deliver(ctx, d.sessionHistoryURL, event); err != nil {
			return err
		}
		if isLast {
			return nil
		}
	}
}

// SendRoomData posts one combined room payload to the legacy data callback.
func (d *Dispatcher) SendRoomData(ctx context.Context, data RoomData) error {
	return d.deliver(ctx, d.dataURL, data)
}

// ToSessionEntries converts store rows to their wire shape.
func ToSessionEntries(rows []store.SessionRecord) []SessionEntry {
	entries := make([]SessionEntry, 0, len(rows))
	for _, r := range rows {
		e := SessionEntry{
			ID:       r.ID,
			RoomID:   r.RoomID,
			UserID:   r.UserID,
			JoinTime: r.JoinTime,
		}
		if r.LeaveTime.Valid {
			v := r.LeaveTime.Int64
			e.LeaveTime = &v
		}
		if r.DurationSeconds.Valid {
			v := r.DurationSeconds.Int64
			e.DurationSeconds = &v
		}
		entries = append(entries, e)
	}
	return entries
}

// --- Delivery core ---

// deliver POSTs the event, retrying up to maxRetries additional attempts
// with a fixed delay between attempts. A 2xx response is success; anything
// else, a transport error, or an open breaker counts as a failure. On final
// failure the event is dropped.
func (d *Dispatcher) deliver(ctx context.Context, url string, event any) error {
	if url == "" {
		return nil
	}
	eventType := typeTag(event)

	body, err := json.Marshal(event)
	if err != nil {
		metrics.CallbackDeliveries.WithLabelValues(eventType, "error").Inc()
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.CallbackRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}

		if lastErr = d.post(ctx, url, body); lastErr == nil {
			metrics.CallbackDeliveries.WithLabelValues(eventType, "ok").Inc()
			return nil
		}
	}

	metrics.CallbackDeliveries.WithLabelValues(eventType, "dropped").Inc()
	logging.Error(ctx, "dropping callback event after final retry",
		zap.String("event_type", eventType),
		zap.String("url", url),
		zap.Int("attempts", d.maxRetries+1),
		zap.Error(lastErr))
	return fmt.Errorf("deliver %s: %w", eventType, lastErr)
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) error {
	_, err := d.cb.Execute(func() (any, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		return nil, nil
	})
	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("webhook").Inc()
	}
	return err
}

// typeTag extracts the event_type field for metrics and logs.
func typeTag(event any) string {
	switch e := event.(type) {
	case LifecycleEvent:
		return e.EventType
	case ChatHistoryBatch:
		return e.EventType
	case SessionHistoryBatch:
		return e.EventType
	case RoomData:
		return e.EventType
	default:
		return "unknown"
	}
}
