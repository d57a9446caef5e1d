package migration

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunIsIdempotent(t *testing.T) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	runner := NewRunner()
	ctx := context.Background()
	require.NoError(t, runner.Run(ctx, db))
	require.NoError(t, runner.Run(ctx, db))

	_, err = db.ExecContext(ctx, `INSERT INTO analysis_runs (id, analysis, source, status, duration_ms, created_at)
		VALUES ('r1', 'ttest', 'api', 'succeeded', 3, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	var batchID, code string
	require.NoError(t, db.QueryRowxContext(ctx, `SELECT batch_id, error_code FROM analysis_runs WHERE id = 'r1'`).Scan(&batchID, &code))
	assert.Empty(t, batchID)
	assert.Empty(t, code)
	assert.Equal(t, "2.0.0", runner.Version())
}
