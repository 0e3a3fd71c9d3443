// Package history keeps a SQLite record of finished runs so past runs
// survive a restart of runctl.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Iron-Ham/runctl/internal/run"
)

// Entry is one finished run.
type Entry struct {
	ID         string        `json:"id"`
	Label      string        `json:"label"`
	Slot       int           `json:"slot,omitempty"`
	OnComplete string        `json:"onComplete,omitempty"`
	OutputPath string        `json:"outputPath,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	DoneAt     time.Time     `json:"doneAt"`
	Duration   time.Duration `json:"durationNs"`
	ExitCode   *int          `json:"exitCode,omitempty"`
}

// EntryFromRun converts a registry snapshot. Runs that are not done get a
// zero DoneAt.
func EntryFromRun(r run.Run) Entry {
	e := Entry{
		ID:        r.ID,
		Label:     r.Label,
		StartedAt: r.StartedAt,
		Duration:  r.Duration(),
	}
	if r.DoneAt != nil {
		e.DoneAt = *r.DoneAt
	}
	if r.ExitCode != nil {
		code := *r.ExitCode
		e.ExitCode = &code
	}
	if r.Meta != nil {
		e.Slot = r.Meta.Slot
		e.OnComplete = r.Meta.OnComplete
		e.OutputPath = r.Meta.OutputPath
	}
	return e
}

// Store is a history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		slot INTEGER NOT NULL DEFAULT 0,
		on_complete TEXT NOT NULL DEFAULT '',
		output_path TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		done_at INTEGER,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		exit_code INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}
	return nil
}

// Record inserts e, replacing any earlier entry with the same id.
func (s *Store) Record(ctx context.Context, e Entry) error {
	var doneAt sql.NullInt64
	if !e.DoneAt.IsZero() {
		doneAt = sql.NullInt64{Int64: e.DoneAt.UnixMilli(), Valid: true}
	}
	var exitCode sql.NullInt64
	if e.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*e.ExitCode), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, label, slot, on_complete, output_path, started_at, done_at, duration_ms, exit_code)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			slot = excluded.slot,
			on_complete = excluded.on_complete,
			output_path = excluded.output_path,
			started_at = excluded.started_at,
			done_at = excluded.done_at,
			duration_ms = excluded.duration_ms,
			exit_code = excluded.exit_code`,
		e.ID, e.Label, e.Slot, e.OnComplete, e.OutputPath,
		e.StartedAt.UnixMilli(), doneAt, e.Duration.Milliseconds(), exitCode,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", e.ID, err)
	}
	return nil
}

// RecordRun records a registry snapshot. It satisfies completion.Recorder.
func (s *Store) RecordRun(ctx context.Context, r run.Run) error {
	return s.Record(ctx, EntryFromRun(r))
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, label, slot, on_complete, output_path, started_at, done_at, duration_ms, exit_code
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			startedAt  int64
			doneAt     sql.NullInt64
			durationMs int64
			exitCode   sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Label, &e.Slot, &e.OnComplete, &e.OutputPath,
			&startedAt, &doneAt, &durationMs, &exitCode); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedAt)
		if doneAt.Valid {
			e.DoneAt = time.UnixMilli(doneAt.Int64)
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		if exitCode.Valid {
			code := int(exitCode.Int64)
			e.ExitCode = &code
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
