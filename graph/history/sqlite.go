package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowgraph/engine/graph/bus"
)

// SQLiteStore is a SQLite-backed Store, for development and single-process
// deployments that want run history to survive a process restart without
// standing up a separate database server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path
// and prepares its schema. Pass ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP,
			errors TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			node_id TEXT,
			node_name TEXT,
			message TEXT,
			severity TEXT,
			tag TEXT,
			error_kind TEXT,
			event_id TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) RecordRunStart(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at) VALUES (?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET started_at = excluded.started_at`,
		runID, startedAt)
	return err
}

func (s *SQLiteStore) RecordRunEnd(ctx context.Context, runID string, endedAt time.Time, errs []string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, errors = ? WHERE run_id = ?`,
		endedAt, strings.Join(errs, "\n"), runID)
	return err
}

func (s *SQLiteStore) Events(ctx context.Context, runID string) ([]bus.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, node_id, node_name, message, severity, tag, error_kind, event_id
		 FROM events WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []bus.Event
	for rows.Next() {
		var e bus.Event
		e.RunID = runID
		if err := rows.Scan(&e.Kind, &e.NodeID, &e.NodeName, &e.Message, &e.Severity, &e.Tag, &e.ErrorKind, &e.EventID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Run(ctx context.Context, runID string) (RunRecord, error) {
	var r RunRecord
	var ended sql.NullTime
	var errs sql.NullString
	r.RunID = runID
	row := s.db.QueryRowContext(ctx, `SELECT started_at, ended_at, errors FROM runs WHERE run_id = ?`, runID)
	if err := row.Scan(&r.StartedAt, &ended, &errs); err != nil {
		if err == sql.ErrNoRows {
			return RunRecord{}, ErrNotFound
		}
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	if ended.Valid {
		r.EndedAt = ended.Time
	}
	if errs.Valid && errs.String != "" {
		r.Errors = strings.Split(errs.String, "\n")
	}
	return r, nil
}

// Emit implements bus.Sink. Write failures are swallowed, matching
// Sink's "must not block or panic" contract.
func (s *SQLiteStore) Emit(e bus.Event) {
	_, _ = s.db.Exec(
		`INSERT INTO events (run_id, kind, node_id, node_name, message, severity, tag, error_kind, event_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Kind, e.NodeID, e.NodeName, e.Message, e.Severity, e.Tag, e.ErrorKind, e.EventID,
	)
}

// Flush is a no-op: writes commit synchronously.
func (s *SQLiteStore) Flush(context.Context) error { return nil }

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }
