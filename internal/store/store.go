// Package store persists emitted analytics events to SQLite for reporting.
//
// It only records what was sent; tracker state is never read back.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ajsharma/form_tail/internal/events"
)

// Schema for the events table. Open applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	site TEXT NOT NULL DEFAULT '',
	tab_id TEXT NOT NULL DEFAULT '',
	form_id TEXT NOT NULL DEFAULT '',
	params TEXT NOT NULL,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_name ON events(name);
CREATE INDEX IF NOT EXISTS idx_events_form ON events(form_id) WHERE form_id != '';
`

// DefaultLimit caps List when the filter leaves Limit unset.
const DefaultLimit = 100

// Store wraps a SQLite database holding emitted events.
type Store struct {
	db *sql.DB
}

// Record is a stored event with its row id.
type Record struct {
	ID int64 `json:"id"`
	events.Event
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Name   string
	Site   string
	FormID string
	Since  time.Time
	Limit  int
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

// Init creates the events table if it doesn't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Insert stores one event and returns its row id.
func (s *Store) Insert(ctx context.Context, ev *events.Event) (int64, error) {
	params, err := json.Marshal(ev.Params)
	if err != nil {
		return 0, fmt.Errorf("encode params: %w", err)
	}

	formID, _ := ev.Params[events.ParamFormID].(string)
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (name, session_id, site, tab_id, form_id, params, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.Name, ev.SessionID, ev.Site, ev.TabID, formID, string(params), ts.UnixMicro())
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	return res.LastInsertId()
}

// List returns events matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Name != "" {
		where = append(where, "name = ?")
		args = append(args, f.Name)
	}
	if f.Site != "" {
		where = append(where, "site = ?")
		args = append(args, f.Site)
	}
	if f.FormID != "" {
		where = append(where, "form_id = ?")
		args = append(args, f.FormID)
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UnixMicro())
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := "SELECT id, name, session_id, site, tab_id, params, timestamp FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec    Record
			params string
			ts     int64
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.SessionID, &rec.Site, &rec.TabID, &params, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return nil, fmt.Errorf("decode params for event %d: %w", rec.ID, err)
		}
		rec.Timestamp = time.UnixMicro(ts).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count summarises stored events by name.
func (s *Store) Count(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, COUNT(*) FROM events GROUP BY name")
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
