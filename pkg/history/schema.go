package history

import (
	"context"
	"database/sql"
	"fmt"
)

const SchemaVersion = 1

// Migrate creates (or upgrades) the ledger schema in-place.
func Migrate(ctx context.Context, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS verification_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL UNIQUE,
			class_hash TEXT NOT NULL,
			contract_name TEXT NOT NULL,
			network TEXT NOT NULL,
			status TEXT NOT NULL,
			-- RFC3339 UTC timestamps.
			submitted_at TEXT NOT NULL,
			completed_at TEXT,
			package_name TEXT,
			scarb_version TEXT,
			cairo_version TEXT,
			dojo_version TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_job_id ON verification_history(job_id);`,
		`CREATE INDEX IF NOT EXISTS idx_history_class_hash ON verification_history(class_hash);`,
		`CREATE INDEX IF NOT EXISTS idx_history_network ON verification_history(network);`,
		`CREATE INDEX IF NOT EXISTS idx_history_status ON verification_history(status);`,
		`CREATE INDEX IF NOT EXISTS idx_history_submitted_at ON verification_history(submitted_at);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
