package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

// SQLiteRuns persists ingestion run summaries and their failed records.
type SQLiteRuns struct {
	db *sql.DB
}

// NewSQLiteRuns creates the run history schema on db if needed.
func NewSQLiteRuns(ctx context.Context, db *sql.DB) (*SQLiteRuns, error) {
	if db == nil {
		return nil, fmt.Errorf("runs: %w", dsherrors.ErrNilDependency)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TIMESTAMP NOT NULL,
		ended_at   TIMESTAMP NOT NULL,
		succeeded  INTEGER NOT NULL,
		embedded   INTEGER NOT NULL,
		failed     INTEGER NOT NULL,
		skipped    INTEGER NOT NULL,
		pending    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_failures (
		run_id        INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		dataset_id    TEXT NOT NULL,
		stage         TEXT NOT NULL,
		kind          TEXT NOT NULL,
		message       TEXT NOT NULL,
		attempts      INTEGER NOT NULL,
		first_attempt TIMESTAMP,
		last_attempt  TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_run_failures_run ON run_failures(run_id);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, dsherrors.StorageError("failed to initialize run schema", err)
	}
	return &SQLiteRuns{db: db}, nil
}

// SaveRun stores a run and its failures atomically, returning the run ID.
func (s *SQLiteRuns) SaveRun(ctx context.Context, run RunRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (started_at, ended_at, succeeded, embedded, failed, skipped, pending)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC(), run.EndedAt.UTC(), run.Succeeded, run.Embedded, run.Failed, run.Skipped, run.Pending)
	if err != nil {
		return 0, storageErr("save run", "", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	if len(run.Failures) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO run_failures (run_id, dataset_id, stage, kind, message, attempts, first_attempt, last_attempt)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return 0, fmt.Errorf("failed to prepare failure statement: %w", err)
		}
		defer stmt.Close()

		for _, f := range run.Failures {
			_, err := stmt.ExecContext(ctx, runID, f.DatasetID, f.Stage, f.Kind, f.Message,
				f.Attempts, f.FirstAttempt.UTC(), f.LastAttempt.UTC())
			if err != nil {
				return 0, storageErr("save run failure", f.DatasetID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("commit run", "", err)
	}
	return runID, nil
}

// LastRun returns the most recent run with its failures, or nil when no
// run has been recorded.
func (s *SQLiteRuns) LastRun(ctx context.Context) (*RunRecord, error) {
	var run RunRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, ended_at, succeeded, embedded, failed, skipped, pending
		FROM runs ORDER BY id DESC LIMIT 1`).
		Scan(&run.ID, &run.StartedAt, &run.EndedAt, &run.Succeeded, &run.Embedded, &run.Failed, &run.Skipped, &run.Pending)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load last run", "", err)
	}

	failures, err := s.Failures(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	run.Failures = failures
	return &run, nil
}

// Failures returns the failed records of one run in insertion order.
func (s *SQLiteRuns) Failures(ctx context.Context, runID int64) ([]FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dataset_id, stage, kind, message, attempts, first_attempt, last_attempt
		FROM run_failures WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, storageErr("load run failures", "", err)
	}
	defer rows.Close()

	var out []FailureRecord
	for rows.Next() {
		var f FailureRecord
		var first, last sql.NullTime
		if err := rows.Scan(&f.DatasetID, &f.Stage, &f.Kind, &f.Message, &f.Attempts, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.FirstAttempt = first.Time
		f.LastAttempt = last.Time
		out = append(out, f)
	}
	return out, rows.Err()
}
