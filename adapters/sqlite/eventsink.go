// Package sqlite provides SQLite implementations of storage ports.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// EventSink persists emitted events in SQLite. Events are written once and
// never mutated; readers consume them out of band.
type EventSink struct {
	db *sql.DB
}

// OpenEventSink opens (creating if needed) the event database at path.
func OpenEventSink(path string) (*EventSink, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open event database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create events table: %w", err)
	}

	return &EventSink{db: db}, nil
}

// Store persists one event of the given kind.
func (s *EventSink) Store(ctx context.Context, kind string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (kind, payload, created_at) VALUES (?, ?, ?)
	`, kind, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert %s event: %w", kind, err)
	}
	return nil
}

// StoredEvent is one row read back from the sink.
type StoredEvent struct {
	ID      int64
	Kind    string
	Payload string
}

// List returns the most recent events of a kind, newest first.
func (s *EventSink) List(ctx context.Context, kind string, limit int) ([]StoredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, payload FROM events
		WHERE kind = ?
		ORDER BY id DESC
		LIMIT ?
	`, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (s *EventSink) Close() error {
	return s.db.Close()
}
