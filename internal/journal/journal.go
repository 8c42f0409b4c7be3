// Package journal records launcher actions (play, stop, update) in a
// local SQLite database so the history of launches and updates can be
// inspected later. Journal writes are best-effort; callers log and
// continue when they fail.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// schemaVersion is the current journal schema version.
const schemaVersion = 1

// Journal is a handle to the launch journal database.
type Journal struct {
	db *sql.DB
}

// Event is one recorded launcher action.
type Event struct {
	ID        string
	Action    string
	Outcome   string
	Detail    string
	CreatedAt time.Time
}

// Open opens (creating if needed) the journal database at path and
// ensures the schema is in place.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// initSchema creates the journal tables inside one transaction.
func initSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}
	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at)
	`); err != nil {
		return fmt.Errorf("create events index: %w", err)
	}

	var version int
	err = tx.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Record inserts one event. IDs are ULIDs, so lexical order is
// creation order.
func (j *Journal) Record(ctx context.Context, action, outcome, detail string) error {
	id := ulid.Make().String()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO events (id, action, outcome, detail, created_at) VALUES (?, ?, ?, ?, ?)",
		id, action, outcome, detail, now)
	if err != nil {
		return fmt.Errorf("record journal event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, action, outcome, detail, created_at FROM events ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query journal events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Action, &e.Outcome, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan journal event: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal events: %w", err)
	}
	return events, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
