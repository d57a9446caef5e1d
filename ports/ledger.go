package ports

import (
	"context"

	"medstat/domain/run"
)

// RunLedgerWriter appends finished runs. Entries are never updated.
type RunLedgerWriter interface {
	Record(ctx context.Context, r run.AnalysisRun) error
}

// RunLedgerReader lists recorded runs, newest first
type RunLedgerReader interface {
	Recent(ctx context.Context, filter RunFilter) ([]run.AnalysisRun, error)
}

// RunFilter narrows a ledger query. Zero values mean no restriction.
type RunFilter struct {
	Analysis string
	Status   run.Status
	Limit    int
}

// RunLedger combines read and write access
type RunLedger interface {
	RunLedgerWriter
	RunLedgerReader
}
