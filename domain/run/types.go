package run

import (
	"time"

	"medstat/domain/core"
)

// Status is the outcome of one analysis run
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusRejected  Status = "rejected" // input failed validation
	StatusFailed    Status = "failed"
)

// AnalysisRun is one entry of the run ledger. Inputs and results are not
// stored; only what is needed to audit usage and failures.
type AnalysisRun struct {
	ID         core.RunID   `db:"id" json:"id"`
	BatchID    core.BatchID `db:"batch_id" json:"batch_id,omitempty"`
	Analysis   string       `db:"analysis" json:"analysis"`
	Source     string       `db:"source" json:"source"`
	Status     Status       `db:"status" json:"status"`
	DurationMS int64        `db:"duration_ms" json:"duration_ms"`
	ErrorCode  string       `db:"error_code" json:"error_code,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
}

// NewAnalysisRun stamps a run that took elapsed and ended with status
func NewAnalysisRun(analysis, source string, status Status, elapsed time.Duration, errorCode string) AnalysisRun {
	return AnalysisRun{
		ID:         core.NewRunID(),
		Analysis:   analysis,
		Source:     source,
		Status:     status,
		DurationMS: elapsed.Milliseconds(),
		ErrorCode:  errorCode,
		CreatedAt:  time.Now().UTC(),
	}
}
