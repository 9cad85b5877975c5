package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History manages bootstrap run records in SQLite
type History struct {
	db *sql.DB
}

// New creates a new history tracker
func New(dbPath string) (*History, error) {
	// Open database connection
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	// Initialize schema
	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

// initSchema creates the database tables and indexes
func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			duration_seconds REAL,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Create index for efficient queries
	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_runs_started
		ON runs(started_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// StartRun records the beginning of a bootstrap run. The row stays
// in_progress until FinishRun; a record stuck in that state marks a run
// that was killed mid-sequence.
func (h *History) StartRun(ctx context.Context, runID, role string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, role, status, started_at)
		VALUES (?, ?, ?, ?)
	`, runID, role, StatusInProgress, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// FinishRun completes a run record with its terminal status.
func (h *History) FinishRun(ctx context.Context, id int64, status string, runErr error) error {
	now := time.Now().UTC()

	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
	}

	_, err := h.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?,
		    completed_at = ?,
		    duration_seconds = (julianday(?) - julianday(started_at)) * 86400,
		    error_message = ?
		WHERE id = ?
	`, status, now.Format(time.RFC3339), now.Format(time.RFC3339), errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to finish run record: %w", err)
	}

	return nil
}

// LatestRun returns the most recent bootstrap run, or nil when the host
// has never recorded one.
func (h *History) LatestRun(ctx context.Context) (*RunRecord, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT id, run_id, role, status, started_at, completed_at,
		       duration_seconds, error_message
		FROM runs
		ORDER BY id DESC
		LIMIT 1
	`)

	record, err := scanRunRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	return record, nil
}

// ListRuns returns recent bootstrap runs, newest first.
func (h *History) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, run_id, role, status, started_at, completed_at,
		       duration_seconds, error_message
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRunRecord scans a database row into a RunRecord
// Works with both *sql.Row and *sql.Rows
func scanRunRecord(s scanner) (*RunRecord, error) {
	var record RunRecord
	var startedAtStr string
	var completedAtStr sql.NullString

	err := s.Scan(
		&record.ID,
		&record.RunID,
		&record.Role,
		&record.Status,
		&startedAtStr,
		&completedAtStr,
		&record.DurationSeconds,
		&record.ErrorMessage,
	)

	if err != nil {
		return nil, err
	}

	// Parse timestamps
	startedAt, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	record.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		record.CompletedAt = &completedAt
	}

	return &record, nil
}
