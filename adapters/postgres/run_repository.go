package postgres

import (
	"context"
	"strings"

	"medstat/domain/run"
	"medstat/internal/errors"
	"medstat/ports"

	"github.com/jmoiron/sqlx"
)

// DefaultRecentLimit caps ledger queries that do not set a limit
const DefaultRecentLimit = 50

// RunRepositoryImpl implements ports.RunLedger on any sqlx database whose
// schema was created by the migration runner
type RunRepositoryImpl struct {
	db *sqlx.DB
}

// NewRunRepository creates a run ledger backed by db
func NewRunRepository(db *sqlx.DB) ports.RunLedger {
	return &RunRepositoryImpl{db: db}
}

// Record appends a finished run
func (r *RunRepositoryImpl) Record(ctx context.Context, ar run.AnalysisRun) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO analysis_runs (id, batch_id, analysis, source, status, duration_ms, error_code, created_at)
		VALUES (:id, :batch_id, :analysis, :source, :status, :duration_ms, :error_code, :created_at)
	`, ar)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, errors.Wrapf(err, "record run %s", ar.ID))
	}
	return nil
}

// Recent lists runs newest first
func (r *RunRepositoryImpl) Recent(ctx context.Context, filter ports.RunFilter) ([]run.AnalysisRun, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Analysis != "" {
		where = append(where, "analysis = ?")
		args = append(args, filter.Analysis)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `
		SELECT id, batch_id, analysis, source, status, duration_ms, error_code, created_at
		FROM analysis_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	runs := []run.AnalysisRun{}
	if err := r.db.SelectContext(ctx, &runs, r.db.Rebind(query), args...); err != nil {
		return nil, errors.WithCode(errors.CodeDatabaseError, errors.Wrap(err, "list recent runs"))
	}
	return runs, nil
}
