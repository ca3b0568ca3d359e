// Package sqlite persists canonical events in SQLite, for deployments where
// the system of record is ingested locally rather than read live. WAL mode
// lets the ingest path and the reconciler share the database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ferrydust/guildsync/storage"
)

// Store is a storage.CanonicalStore backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS canonical_events (
		source_event_id          TEXT PRIMARY KEY,
		platform_event_id        TEXT NOT NULL DEFAULT '',
		master_platform_event_id TEXT NOT NULL DEFAULT '',
		name                     TEXT NOT NULL,
		description              TEXT NOT NULL DEFAULT '',
		start_at                 TEXT NOT NULL,
		end_at                   TEXT NOT NULL,
		location                 TEXT NOT NULL DEFAULT '',
		recurring_series_id      TEXT NOT NULL DEFAULT '',
		recurrence_rule          TEXT NOT NULL DEFAULT '',
		last_written_at          TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_canonical_start ON canonical_events(start_at);
	CREATE INDEX IF NOT EXISTS idx_canonical_series ON canonical_events(recurring_series_id);
	CREATE INDEX IF NOT EXISTS idx_canonical_platform ON canonical_events(platform_event_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertEvent creates or replaces an event, keyed by source id. Used by the
// ingest path; the reconciler itself only updates.
func (s *Store) UpsertEvent(ctx context.Context, ev storage.CanonicalEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO canonical_events
		 (source_event_id, platform_event_id, master_platform_event_id, name, description,
		  start_at, end_at, location, recurring_series_id, recurrence_rule, last_written_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(source_event_id) DO UPDATE SET
		   platform_event_id = excluded.platform_event_id,
		   master_platform_event_id = excluded.master_platform_event_id,
		   name = excluded.name,
		   description = excluded.description,
		   start_at = excluded.start_at,
		   end_at = excluded.end_at,
		   location = excluded.location,
		   recurring_series_id = excluded.recurring_series_id,
		   recurrence_rule = excluded.recurrence_rule,
		   last_written_at = excluded.last_written_at`,
		eventArgs(ev)...)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", ev.SourceEventID, err)
	}
	return nil
}

// ListEvents implements storage.CanonicalStore.
func (s *Store) ListEvents(ctx context.Context) ([]storage.CanonicalEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_event_id, platform_event_id, master_platform_event_id, name, description,
		        start_at, end_at, location, recurring_series_id, recurrence_rule, last_written_at
		 FROM canonical_events ORDER BY start_at, source_event_id`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []storage.CanonicalEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// UpdateEvent implements storage.CanonicalStore.
func (s *Store) UpdateEvent(ctx context.Context, ev storage.CanonicalEvent) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE canonical_events SET
		   platform_event_id = ?, master_platform_event_id = ?, name = ?, description = ?,
		   start_at = ?, end_at = ?, location = ?, recurring_series_id = ?,
		   recurrence_rule = ?, last_written_at = ?
		 WHERE source_event_id = ?`,
		ev.PlatformEventID, ev.MasterPlatformEventID, ev.Name, ev.Description,
		formatTime(ev.StartAt), formatTime(ev.EndAt), ev.Location, ev.RecurringSeriesID,
		ev.RecurrenceRule, formatTime(ev.LastWrittenAt),
		ev.SourceEventID)
	if err != nil {
		return fmt.Errorf("update %q: %w", ev.SourceEventID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("update %q: %w", ev.SourceEventID, storage.ErrNotFound)
	}
	return nil
}

// GetEvent retrieves a single event by source id.
func (s *Store) GetEvent(ctx context.Context, sourceEventID string) (*storage.CanonicalEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source_event_id, platform_event_id, master_platform_event_id, name, description,
		        start_at, end_at, location, recurring_series_id, recurrence_rule, last_written_at
		 FROM canonical_events WHERE source_event_id = ?`, sourceEventID)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get %q: %w", sourceEventID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// DeleteEvent removes an event from the record, e.g. when the upstream
// ingest sees it disappear.
func (s *Store) DeleteEvent(ctx context.Context, sourceEventID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM canonical_events WHERE source_event_id = ?`, sourceEventID)
	if err != nil {
		return fmt.Errorf("delete %q: %w", sourceEventID, err)
	}
	return nil
}

func eventArgs(ev storage.CanonicalEvent) []any {
	return []any{
		ev.SourceEventID, ev.PlatformEventID, ev.MasterPlatformEventID, ev.Name, ev.Description,
		formatTime(ev.StartAt), formatTime(ev.EndAt), ev.Location, ev.RecurringSeriesID,
		ev.RecurrenceRule, formatTime(ev.LastWrittenAt),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (storage.CanonicalEvent, error) {
	var ev storage.CanonicalEvent
	var startAt, endAt, lastWrittenAt string
	err := row.Scan(&ev.SourceEventID, &ev.PlatformEventID, &ev.MasterPlatformEventID,
		&ev.Name, &ev.Description, &startAt, &endAt, &ev.Location,
		&ev.RecurringSeriesID, &ev.RecurrenceRule, &lastWrittenAt)
	if err != nil {
		return ev, err
	}
	if ev.StartAt, err = parseTime(startAt); err != nil {
		return ev, fmt.Errorf("event %q: bad start_at: %w", ev.SourceEventID, err)
	}
	if ev.EndAt, err = parseTime(endAt); err != nil {
		return ev, fmt.Errorf("event %q: bad end_at: %w", ev.SourceEventID, err)
	}
	if ev.LastWrittenAt, err = parseTime(lastWrittenAt); err != nil {
		return ev, fmt.Errorf("event %q: bad last_written_at: %w", ev.SourceEventID, err)
	}
	return ev, nil
}

// Timestamps are stored as RFC3339Nano UTC strings; the lexicographic sort
// of the column then matches chronological order.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
