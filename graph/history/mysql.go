package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/flowgraph/engine/graph/bus"
)

// MySQLStore is a MySQL-backed Store, for deployments that already run a
// MySQL instance and want run history alongside their other operational
// data rather than a separate SQLite file per host.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against dsn (a
// github.com/go-sql-driver/mysql data source name) and prepares its
// schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id VARCHAR(255) PRIMARY KEY,
			started_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at TIMESTAMP NULL,
			errors TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			kind VARCHAR(64) NOT NULL,
			node_id VARCHAR(255),
			node_name VARCHAR(255),
			message TEXT,
			severity VARCHAR(32),
			tag VARCHAR(255),
			error_kind VARCHAR(64),
			event_id VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_events_run_id (run_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *MySQLStore) RecordRunStart(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE started_at = VALUES(started_at)`,
		runID, startedAt)
	return err
}

func (s *MySQLStore) RecordRunEnd(ctx context.Context, runID string, endedAt time.Time, errs []string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, errors = ? WHERE run_id = ?`,
		endedAt, strings.Join(errs, "\n"), runID)
	return err
}

func (s *MySQLStore) Events(ctx context.Context, runID string) ([]bus.Event, error) {
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

func (s *MySQLStore) Run(ctx context.Context, runID string) (RunRecord, error) {
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
func (s *MySQLStore) Emit(e bus.Event) {
	_, _ = s.db.Exec(
		`INSERT INTO events (run_id, kind, node_id, node_name, message, severity, tag, error_kind, event_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Kind, e.NodeID, e.NodeName, e.Message, e.Severity, e.Tag, e.ErrorKind, e.EventID,
	)
}

// Flush is a no-op: writes commit synchronously.
func (s *MySQLStore) Flush(context.Context) error { return nil }

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error { return s.db.Close() }
