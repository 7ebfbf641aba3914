// Package store provides durable room, chat, and session state backed by an
// embedded SQLite database. It owns the database lifecycle and exposes the
// minimal API used by the rest of the server; high-frequency writes go
// through the batching Writer rather than through individual calls.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/RoseWrightdev/Chat-Rooms/backend/go/internal/v1/types"
)

// Store is a wrapper around sqlx.DB scoped to the chat schema.
type Store struct {
	db *sqlx.DB
}

// Open connects to the SQLite database at path, creating the file and parent
// directory when missing, and brings the schema up to date.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL with relaxed synchronous for concurrent readers alongside the
	// batch writer; busy_timeout covers writer/reader overlap.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS room_admins (
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (room_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS room_bans (
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		PRIMARY KEY (room_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS chat_history (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id    TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_history_room ON chat_history(room_id);
	CREATE INDEX IF NOT EXISTS idx_chat_history_created ON chat_history(created_at);

	CREATE TABLE IF NOT EXISTS room_sessions (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id          TEXT NOT NULL,
		user_id          TEXT NOT NULL,
		join_time        INTEGER NOT NULL,
		leave_time       INTEGER,
		duration_seconds INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_room_sessions_room ON room_sessions(room_id);
	CREATE INDEX IF NOT EXISTS idx_room_sessions_join ON room_sessions(join_time);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Row types ---

// RoomRecord is a persisted room.
type RoomRecord struct {
	ID        string `db:"id" json:"room_id"`
	Name      string `db:"name" json:"room_name"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// ChatRecord is one chat_history row.
type ChatRecord struct {
	ID        int64  `db:"id" json:"id"`
	RoomID    string `db:"room_id" json:"room_id"`
	UserID    string `db:"user_id" json:"user_id"`
	Content   string `db:"content" json:"content"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
}

// SessionRecord is one room_sessions row. LeaveTime and DurationSeconds are
// NULL while the session is live.
type SessionRecord struct {
	ID              int64          `db:"id" json:"id"`
	RoomID          string         `db:"room_id" json:"room_id"`
	UserID          string         `db:"user_id" json:"user_id"`
	JoinTime        int64          `db:"join_time" json:"join_time"`
	LeaveTime       sql.NullInt64  `db:"leave_time" json:"-"`
	DurationSeconds sql.NullInt64  `db:"duration_seconds" json:"-"`
}

// --- Room management ---

// CreateRoom inserts the room row and its initial admin set in one transaction.
func (s *Store) CreateRoom(ctx context.Context, id types.RoomIDType, name string, createdAt int64, admins []types.UserIDType) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create room: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (id, name, created_at) VALUES (?, ?, ?)`,
		string(id), name, createdAt); err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	for _, admin := range admins {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_admins (room_id, user_id) VALUES (?, ?)`,
			string(id), string(admin)); err != nil {
			return fmt.Errorf("insert room admin: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create room: %w", err)
	}
	return nil
}

// DeleteRoom removes the room row, its admins, and its bans. History and
// session rows are kept for export.
func (s *Store) DeleteRoom(ctx context.Context, id types.RoomIDType) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete room: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM rooms WHERE id = ?`,
		`DELETE FROM room_admins WHERE room_id = ?`,
		`DELETE FROM room_bans WHERE room_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, string(id)); err != nil {
			return fmt.Errorf("delete room: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete room: %w", err)
	}
	return nil
}

// ListRooms returns every persisted room ordered by creation time.
func (s *Store) ListRooms(ctx context.Context) ([]RoomRecord, error) {
	var rooms []RoomRecord
	if err := s.db.SelectContext(ctx, &rooms,
		`SELECT id, name, created_at FROM rooms ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

// LoadRoomState returns the persisted admin and ban sets for one room.
func (s *Store) LoadRoomState(ctx context.Context, id types.RoomIDType) (admins, bans []types.UserIDType, err error) {
	var adminRows []string
	if err := s.db.SelectContext(ctx, &adminRows,
		`SELECT user_id FROM room_admins WHERE room_id = ? ORDER BY user_id`, string(id)); err != nil {
		return nil, nil, fmt.Errorf("load room admins: %w", err)
	}
	var banRows []string
	if err := s.db.SelectContext(ctx, &banRows,
		`SELECT user_id FROM room_bans WHERE room_id = ? ORDER BY user_id`, string(id)); err != nil {
		return nil, nil, fmt.Errorf("load room bans: %w", err)
	}
	for _, a := range adminRows {
		admins = append(admins, types.UserIDType(a))
	}
	for _, b := range banRows {
		bans = append(bans, types.UserIDType(b))
	}
	return admins, bans, nil
}

// ReplaceAdmins swaps the durable admin set for the room.
func (s *Store) ReplaceAdmins(ctx context.Context, id types.RoomIDType, admins []types.UserIDType) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace admins: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM room_admins WHERE room_id = ?`, string(id)); err != nil {
		return fmt.Errorf("clear room admins: %w", err)
	}
	for _, admin := range admins {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_admins (room_id, user_id) VALUES (?, ?)`,
			string(id), string(admin)); err != nil {
			return fmt.Errorf("insert room admin: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace admins: %w", err)
	}
	return nil
}

// RemoveBan deletes one ban row. Removing an absent ban is not an error.
func (s *Store) RemoveBan(ctx context.Context, id types.RoomIDType, userID types.UserIDType) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM room_bans WHERE room_id = ? AND user_id = ?`,
		string(id), string(userID)); err != nil {
		return fmt.Errorf("remove ban: %w", err)
	}
	return nil
}

// --- History queries ---

// ChatHistoryPage returns one page of a room's chat history in insertion order.
func (s *Store) ChatHistoryPage(ctx context.Context, id types.RoomIDType, limit, offset int) ([]ChatRecord, error) {
	var rows []ChatRecord
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, room_id, user_id, content, created_at
		 FROM chat_history WHERE room_id = ? ORDER BY id LIMIT ? OFFSET ?`,
		string(id), limit, offset); err != nil {
		return nil, fmt.Errorf("chat history page: %w", err)
	}
	return rows, nil
}

// SessionHistoryPage returns one page of a room's session history in insertion order.
func (s *Store) SessionHistoryPage(ctx context.Context, id types.RoomIDType, limit, offset int) ([]SessionRecord, error) {
	var rows []SessionRecord
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, room_id, user_id, join_time, leave_time, duration_seconds
		 FROM room_sessions WHERE room_id = ? ORDER BY id LIMIT ? OFFSET ?`,
		string(id), limit, offset); err != nil {
		return nil, fmt.Errorf("session history page: %w", err)
	}
	return rows, nil
}

// ChatHistoryAll returns a room's complete chat history.
func (s *Store) ChatHistoryAll(ctx context.Context, id types.RoomIDType) ([]ChatRecord, error) {
	var rows []ChatRecord
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, room_id, user_id, content, created_at
		 FROM chat_history WHERE room_id = ? ORDER BY id`, string(id)); err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	return rows, nil
}

// SessionHistoryAll returns a room's complete session history.
func (s *Store) SessionHistoryAll(ctx context.Context, id types.RoomIDType) ([]SessionRecord, error) {
	var rows []SessionRecord
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, room_id, user_id, join_time, leave_time, duration_seconds
		 FROM room_sessions WHERE room_id = ? ORDER BY id`, string(id)); err != nil {
		return nil, fmt.Errorf("session history: %w", err)
	}
	return rows, nil
}

// --- Batch application ---

// ApplyBatch executes a batch of write commands inside a single transaction.
// Used by the Writer; exported so tests can seed rows directly.
func (s *Store) ApplyBatch(ctx context.Context, cmds []types.DbWriteCommand) error {
	if len(cmds) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, cmd := range cmds {
		if err := applyCommand(ctx, tx, cmd); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func applyCommand(ctx context.Context, tx *sqlx.Tx, cmd types.DbWriteCommand) error {
	switch c := cmd.(type) {
	case types.WriteUserJoined:
		_, err := tx.ExecContext(ctx,
			`INSERT INTO room_sessions (room_id, user_id, join_time, leave_time, duration_seconds)
			 VALUES (?, ?, ?, NULL, NULL)`,
			string(c.RoomID), string(c.UserID), c.JoinTime.Unix())
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
	case types.WriteUserLeft:
		// Monotonic clock arithmetic; the wall clock only stamps the row.
		duration := int64(time.Since(c.JoinInstant).Seconds())
		if duration < 0 {
			duration = 0
		}
		// Closes the newest still-open session for (room, user). The actor
		// guarantees at most one; a late duplicate updates zero rows.
		_, err := tx.ExecContext(ctx,
			`UPDATE room_sessions SET leave_time = ?, duration_seconds = ?
			 WHERE id = (
				SELECT id FROM room_sessions
				WHERE room_id = ? AND user_id = ? AND leave_time IS NULL
				ORDER BY join_time DESC, id DESC LIMIT 1
			 )`,
			time.Now().Unix(), duration, string(c.RoomID), string(c.UserID))
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
	case types.WriteChatMessage:
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chat_history (room_id, user_id, content, created_at) VALUES (?, ?, ?, ?)`,
			string(c.RoomID), string(c.UserID), c.Content, c.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("insert chat message: %w", err)
		}
	case types.WriteBanUser:
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_bans (room_id, user_id) VALUES (?, ?)`,
			string(c.RoomID), string(c.UserID))
		if err != nil {
			return fmt.Errorf("insert ban: %w", err)
		}
	case types.WriteUnbanUser:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM room_bans WHERE room_id = ? AND user_id = ?`,
			string(c.RoomID), string(c.UserID))
		if err != nil {
			return fmt.Errorf("delete ban: %w", err)
		}
	default:
		return fmt.Errorf("unknown write command %T", cmd)
	}
	return nil
}
