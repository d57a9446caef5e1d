package postgres

import (
	"context"
	"testing"
	"time"

	"medstat/domain/core"
	"medstat/domain/run"
	"medstat/internal/migration"
	"medstat/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) ports.RunLedger {
	t.Helper()
	db, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migration.NewRunner().Run(context.Background(), db))
	// second run must be a no-op
	require.NoError(t, migration.NewRunner().Run(context.Background(), db))
	return NewRunRepository(db)
}

func TestRunRepositoryRecordAndRecent(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch := core.NewBatchID()
	entries := []run.AnalysisRun{
		{ID: core.NewRunID(), Analysis: "ttest", Source: "api", Status: run.StatusSucceeded, DurationMS: 3, CreatedAt: base},
		{ID: core.NewRunID(), BatchID: batch, Analysis: "anova", Source: "batch", Status: run.StatusRejected, ErrorCode: "VALIDATION_ERROR", CreatedAt: base.Add(time.Minute)},
		{ID: core.NewRunID(), Analysis: "ttest", Source: "cli", Status: run.StatusSucceeded, DurationMS: 7, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, ledger.Record(ctx, e))
	}

	all, err := ledger.Recent(ctx, ports.RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, entries[2].ID, all[0].ID)
	assert.Equal(t, entries[0].ID, all[2].ID)
	assert.Equal(t, batch, all[1].BatchID)
	assert.Equal(t, "VALIDATION_ERROR", all[1].ErrorCode)
	assert.True(t, base.Equal(all[2].CreatedAt))

	ttests, err := ledger.Recent(ctx, ports.RunFilter{Analysis: "ttest", Limit: 1})
	require.NoError(t, err)
	require.Len(t, ttests, 1)
	assert.Equal(t, int64(7), ttests[0].DurationMS)

	rejected, err := ledger.Recent(ctx, ports.RunFilter{Status: run.StatusRejected})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, "anova", rejected[0].Analysis)
}

func TestRunRepositoryEmpty(t *testing.T) {
	ledger := newTestLedger(t)
	runs, err := ledger.Recent(context.Background(), ports.RunFilter{Analysis: "meta"})
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestRunRepositoryDuplicateID(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()
	r := run.NewAnalysisRun("ttest", "api", run.StatusSucceeded, time.Millisecond, "")
	require.NoError(t, ledger.Record(ctx, r))

	err := ledger.Record(ctx, r)
	require.Error(t, err)
}
