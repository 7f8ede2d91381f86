// Package history persists a ledger of completed download runs in a local
// SQLite database so past runs can be inspected from the command line.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailsnag/internal/run"
)

// Run is one recorded download run.
type Run struct {
	ID          string    `db:"id"`
	WindowStart time.Time `db:"window_start"`
	WindowEnd   time.Time `db:"window_end"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
	Downloaded  int       `db:"downloaded"`
	Failed      int       `db:"failed"`
}

// AccountRecord is the recorded outcome of one account within a run.
type AccountRecord struct {
	RunID       string `db:"run_id"`
	Account     string `db:"account"`
	Position    int    `db:"position"`
	Status      string `db:"status"`
	Attachments int    `db:"attachments"`
	Detail      string `db:"detail"`
}

// Store wraps the SQLite ledger database.
type Store struct {
	db *sqlx.DB
}

// NewStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// RecordRun persists a completed run summary and its per-account results
// in a single transaction.
func (s *Store) RecordRun(ctx context.Context, summary run.Summary) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, window_start, window_end, started_at, finished_at, downloaded, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		summary.Window.Start.UTC(), summary.Window.End.UTC(),
		summary.Started.UTC(), summary.Finished.UTC(),
		summary.Downloaded(), summary.Failed(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", summary.RunID, err)
	}

	const query = `
		INSERT INTO account_results (run_id, account, position, status, attachments, detail)
		VALUES (?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing result statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range summary.Results {
		_, err = stmt.ExecContext(ctx,
			summary.RunID, r.Account, i, r.Status.String(), r.Attachments, r.Detail,
		)
		if err != nil {
			return fmt.Errorf("inserting result for %s: %w", r.Account, err)
		}
	}

	return tx.Commit()
}

// RecentRuns retrieves the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	var runs []Run
	err := s.db.SelectContext(ctx, &runs,
		"SELECT * FROM runs ORDER BY started_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}

	return runs, nil
}

// AccountResults retrieves the per-account results of one run in the order
// the accounts were processed.
func (s *Store) AccountResults(ctx context.Context, runID string) ([]AccountRecord, error) {
	var records []AccountRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM account_results WHERE run_id = ? ORDER BY position", runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying results for run %s: %w", runID, err)
	}

	return records, nil
}
