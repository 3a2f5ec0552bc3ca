package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"autotrader/internal/events"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var (
	_ EventJournal = (*SQLiteStore)(nil)
	_ events.Sink  = (*SQLiteStore)(nil)
)

// DefaultKeepCheckpoints is how many checkpoint rows are retained.
const DefaultKeepCheckpoints = 20

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at INTEGER NOT NULL,
	data       BLOB    NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	id      TEXT PRIMARY KEY,
	type    TEXT    NOT NULL,
	ticker  TEXT    NOT NULL DEFAULT '',
	ts      INTEGER NOT NULL,
	payload TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS events_ts ON events (ts);
CREATE INDEX IF NOT EXISTS events_ticker ON events (ticker, ts);
`

// SQLiteStore keeps engine checkpoints and the event journal in a SQLite
// database. It also implements events.Sink so it can sit on the event bus.
type SQLiteStore struct {
	db   *sql.DB
	keep int
	log  *slog.Logger
	now  func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// tables, and keeps at most keep checkpoints (DefaultKeepCheckpoints when
// keep <= 0).
func NewSQLiteStore(dbPath string, keep int, log *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dbPath, err)
	}
	// One writer; SQLite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	if keep <= 0 {
		keep = DefaultKeepCheckpoints
	}
	if log == nil {
		log = slog.Default()
	}
	return &SQLiteStore{db: db, keep: keep, log: log.With("component", "sqlite"), now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Checkpoints
// ---------------------------------------------------------------------------

// SaveCheckpoint stores data as the newest checkpoint and prunes old rows.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, data []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (created_at, data) VALUES (?, ?)`,
		s.now().UnixMilli(), data); err != nil {
		return fmt.Errorf("inserting checkpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE id NOT IN (SELECT id FROM checkpoints ORDER BY id DESC LIMIT ?)`,
		s.keep); err != nil {
		return fmt.Errorf("pruning checkpoints: %w", err)
	}
	return tx.Commit()
}

// LoadCheckpoint returns the newest checkpoint, or ErrNoCheckpoint.
func (s *SQLiteStore) LoadCheckpoint(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM checkpoints ORDER BY id DESC LIMIT 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}
	return data, nil
}

// CheckpointCount returns how many checkpoints are retained.
func (s *SQLiteStore) CheckpointCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints`).Scan(&n)
	return n, err
}

// ---------------------------------------------------------------------------
// Event journal
// ---------------------------------------------------------------------------

// AppendEvent stores e.
func (s *SQLiteStore) AppendEvent(ctx context.Context, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", e.ID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (id, type, ticker, ts, payload) VALUES (?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Ticker, e.Timestamp.UnixMilli(), string(payload))
	if err != nil {
		return fmt.Errorf("inserting event %s: %w", e.ID, err)
	}
	return nil
}

// Emit implements events.Sink. Write failures are logged; the journal never
// blocks the engine.
func (s *SQLiteStore) Emit(e events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.AppendEvent(ctx, e); err != nil {
		s.log.Warn("journaling event failed", "event_id", e.ID, "type", e.Type, "error", err)
	}
}

// ListEvents returns journaled events matching q, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, q EventQuery) ([]events.Event, error) {
	var (
		where []string
		args  []any
	)
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(q.Type))
	}
	if q.Ticker != "" {
		where = append(where, "ticker = ?")
		args = append(args, q.Ticker)
	}
	if !q.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, q.Since.UnixMilli())
	}

	query := "SELECT payload FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e events.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
