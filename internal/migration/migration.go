package migration

import (
	"context"

	"medstat/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the run ledger schema. The statements are kept to
// the subset of SQL shared by Postgres and SQLite.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "2.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in order. It is idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createAnalysisRunsTable(ctx, db); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to create analysis_runs table"))
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "failed to create indexes"))
	}

	return nil
}

func (r *MigrationRunner) createAnalysisRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analysis_runs (
			id VARCHAR(36) PRIMARY KEY,
			batch_id VARCHAR(36) NOT NULL DEFAULT '',
			analysis VARCHAR(64) NOT NULL,
			source VARCHAR(16) NOT NULL,
			status VARCHAR(16) NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			error_code VARCHAR(64) NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_runs_created_at ON analysis_runs(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_runs_analysis ON analysis_runs(analysis, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_runs_batch_id ON analysis_runs(batch_id)",
	}

	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "index statement %q", stmt)
		}
	}
	return nil
}
