// Package journal keeps an in-memory record of the events a session has
// seen and the actions it has submitted.
//
// The journal is per-session scratch state, not durable storage: it backs
// duplicate suppression on the event stream and lets the operator inspect
// recent activity. It uses an in-memory SQLite database so the session
// gets real SQL over its history without touching disk.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Journal records stream events and submitted actions for one session.
type Journal struct {
	db *sql.DB
}

// EventEntry is one recorded stream event.
type EventEntry struct {
	EventID string
	TS      int64
	Type    string
	Payload string
}

// ActionEntry is one recorded submitted action.
type ActionEntry struct {
	ActionID    string
	Kind        string
	TxID        string
	Status      string
	SubmittedAt int64
}

// Open creates a fresh in-memory journal.
//
// SQLite's :memory: database is per-connection, so the pool is pinned to
// a single connection; a second connection would see an empty database.
func Open() (*Journal, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect journal: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure journal: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close releases the journal. All recorded history is discarded.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// RecordEvent inserts one stream event. Duplicate event ids are silently
// ignored so a replayed event after a reconnect records nothing. Returns
// whether the event was new.
func (j *Journal) RecordEvent(ctx context.Context, eventID string, ts int64, typ, payload string) (bool, error) {
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO events (event_id, ts, type, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, eventID, ts, typ, payload)
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	return n > 0, nil
}

// RecordAction inserts one submitted action. Duplicate action ids are
// silently ignored; the first record wins.
func (j *Journal) RecordAction(ctx context.Context, a ActionEntry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO actions (action_id, kind, tx_id, status, submitted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(action_id) DO NOTHING
	`, a.ActionID, a.Kind, a.TxID, a.Status, a.SubmittedAt)
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

// SetActionStatus updates the recorded status of an action, typically
// when a later stream event settles it. Unknown ids are a no-op.
func (j *Journal) SetActionStatus(ctx context.Context, actionID, status string) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE actions SET status = ? WHERE action_id = ?
	`, status, actionID)
	if err != nil {
		return fmt.Errorf("set action status: %w", err)
	}
	return nil
}

// ActionStatus returns the recorded status for an action id.
func (j *Journal) ActionStatus(ctx context.Context, actionID string) (string, bool, error) {
	var status string
	err := j.db.QueryRowContext(ctx, `
		SELECT status FROM actions WHERE action_id = ?
	`, actionID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("action status: %w", err)
	}
	return status, true, nil
}

// RecentEvents returns up to n events, newest first. Ties on timestamp
// order by event id so the result is deterministic.
func (j *Journal) RecentEvents(ctx context.Context, n int) ([]EventEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT event_id, ts, type, payload
		FROM events
		ORDER BY ts DESC, event_id COLLATE BINARY DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	entries := []EventEntry{}
	for rows.Next() {
		var e EventEntry
		if err := rows.Scan(&e.EventID, &e.TS, &e.Type, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

// Actions returns all recorded actions, newest first.
func (j *Journal) Actions(ctx context.Context) ([]ActionEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT action_id, kind, tx_id, status, submitted_at
		FROM actions
		ORDER BY submitted_at DESC, action_id COLLATE BINARY DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	entries := []ActionEntry{}
	for rows.Next() {
		var a ActionEntry
		if err := rows.Scan(&a.ActionID, &a.Kind, &a.TxID, &a.Status, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		entries = append(entries, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return entries, nil
}
