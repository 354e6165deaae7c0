package store

import (
	"fmt"
)

type migration struct {
	version int
	stmts   []string
}

// migrations are applied in order; append only.
var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE runs (
				id TEXT PRIMARY KEY,
				operation TEXT NOT NULL,
				started_at DATETIME NOT NULL,
				finished_at DATETIME,
				success BOOLEAN NOT NULL DEFAULT 0,
				message TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE probe_results (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL REFERENCES runs(id),
				category TEXT NOT NULL,
				label TEXT NOT NULL,
				url TEXT NOT NULL,
				latency_ms INTEGER NOT NULL,
				selected BOOLEAN NOT NULL DEFAULT 0,
				recorded_at DATETIME NOT NULL
			)`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`CREATE INDEX idx_runs_started_at ON runs(started_at)`,
			`CREATE INDEX idx_probe_results_category ON probe_results(category, recorded_at)`,
		},
	},
}

// migrate brings the schema up to the latest version
func (s *Store) migrate() error {
	const schemaTable = `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := s.db.Exec(schemaTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		s.logger.Debug("applying migration", "version", m.version)
		if err := s.apply(m); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}

// apply runs one migration and records it in the same transaction
func (s *Store) apply(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range m.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", firstLineOf(stmt), err)
		}
	}
	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

func firstLineOf(stmt string) string {
	for i, r := range stmt {
		if r == '\n' {
			return stmt[:i]
		}
	}
	return stmt
}
