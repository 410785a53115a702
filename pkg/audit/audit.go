// Package audit provides a SQLite-backed log of tool executions. Every
// side-effecting action the orchestrator approves is recorded here, so a run
// can be reviewed after the fact.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Execution is one recorded tool execution.
type Execution struct {
	ID        int64
	RunID     string
	Tool      string
	Arguments string
	Output    string
	Status    string
	Duration  time.Duration
	CreatedAt time.Time
}

// Log is an append-only execution log.
type Log struct {
	db *sql.DB
}

// Open opens (and if needed creates) the log database at path.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000", path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS executions (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		tool        TEXT NOT NULL,
		arguments   TEXT NOT NULL,
		output      TEXT NOT NULL,
		status      TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Record appends one execution.
func (l *Log) Record(ctx context.Context, rec Execution) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO executions (run_id, tool, arguments, output, status, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Tool, rec.Arguments, rec.Output, rec.Status,
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// Recent returns the n most recent executions, newest first.
func (l *Log) Recent(ctx context.Context, n int) ([]Execution, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, run_id, tool, arguments, output, status, duration_ms, created_at
		 FROM executions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var rec Execution
		var durationMS int64
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Tool, &rec.Arguments,
			&rec.Output, &rec.Status, &durationMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}
