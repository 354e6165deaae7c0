// Package store keeps a local history of provisioning runs and source
// probes in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/BadgerOps/pyboot/internal/mirror"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// Store provides SQLite-backed persistence
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Store, opening the SQLite database and running migrations
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// serializes observer writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("history store initialized", "path", dbPath)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ============================================================================
// Run Operations
// ============================================================================

// StartRun inserts a running Run for operation and returns it
func (s *Store) StartRun(operation string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Operation: operation,
		StartedAt: s.now(),
	}

	const query = `INSERT INTO runs (id, operation, started_at) VALUES (?, ?, ?)`
	if _, err := s.db.Exec(query, run.ID, run.Operation, run.StartedAt); err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run as finished with its outcome
func (s *Store) FinishRun(id string, success bool, message string) error {
	const query = `
		UPDATE runs SET finished_at = ?, success = ?, message = ?
		WHERE id = ?
	`

	result, err := s.db.Exec(query, s.now(), success, message, id)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun retrieves a Run by id
func (s *Store) GetRun(id string) (*Run, error) {
	const query = `
		SELECT id, operation, started_at, finished_at, success, message
		FROM runs WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := `
		SELECT id, operation, started_at, finished_at, success, message
		FROM runs ORDER BY started_at DESC, rowid DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run      Run
		finished sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.Operation, &run.StartedAt, &finished, &run.Success, &run.Message); err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return &run, nil
}

// ============================================================================
// Probe Operations
// ============================================================================

// RecordProbes stores one row per probe result of a selection run.
// selectedURL marks the winning source.
func (s *Store) RecordProbes(runID string, category mirror.Category, results []mirror.ProbeResult, selectedURL string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO probe_results (run_id, category, label, url, latency_ms, selected, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	now := s.now()
	for _, r := range results {
		selected := r.Source.URL == selectedURL
		if _, err := tx.Exec(query, runID, string(category), r.Source.Label, r.Source.URL, r.LatencyMs, selected, now); err != nil {
			return fmt.Errorf("failed to insert probe result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit probe results: %w", err)
	}
	return nil
}

// LatestProbes returns the probe results of the most recent selection run
// for category, fastest first.
func (s *Store) LatestProbes(category mirror.Category) ([]ProbeRecord, error) {
	const query = `
		SELECT id, run_id, category, label, url, latency_ms, selected, recorded_at
		FROM probe_results
		WHERE run_id = (
			SELECT run_id FROM probe_results WHERE category = ?
			ORDER BY recorded_at DESC, id DESC LIMIT 1
		)
		ORDER BY latency_ms, id
	`

	rows, err := s.db.Query(query, string(category))
	if err != nil {
		return nil, fmt.Errorf("failed to query probe results: %w", err)
	}
	defer rows.Close()

	var records []ProbeRecord
	for rows.Next() {
		var rec ProbeRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Category, &rec.Label, &rec.URL,
			&rec.LatencyMs, &rec.Selected, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan probe result: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating probe results: %w", err)
	}
	return records, nil
}

// ============================================================================
// Observer
// ============================================================================

// StepFinished records a completed provisioning step as a finished run.
func (s *Store) StepFinished(step string, ok bool, message string, elapsed time.Duration) {
	finished := s.now()
	const query = `
		INSERT INTO runs (id, operation, started_at, finished_at, success, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, uuid.NewString(), step, finished.Add(-elapsed), finished, ok, message); err != nil {
		s.logger.Warn("failed to record run", "step", step, "error", err)
	}
}

// SourcesProbed records a selection run and its probe results.
func (s *Store) SourcesProbed(category mirror.Category, results []mirror.ProbeResult, choice mirror.Choice) {
	run, err := s.StartRun("select-" + string(category))
	if err != nil {
		s.logger.Warn("failed to record selection", "category", category, "error", err)
		return
	}

	recordErr := s.RecordProbes(run.ID, category, results, choice.URL)
	if recordErr != nil {
		s.logger.Warn("failed to record probe results", "category", category, "error", recordErr)
	}

	msg := fmt.Sprintf("selected %s (%dms)", choice.Label, choice.LatencyMs)
	if err := s.FinishRun(run.ID, recordErr == nil, msg); err != nil {
		s.logger.Warn("failed to finish selection run", "category", category, "error", err)
	}
}
