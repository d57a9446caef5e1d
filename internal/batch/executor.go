// Package batch runs independent analyses concurrently under a weighted
// capacity limit.
package batch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"medstat/domain/core"
	"medstat/internal/errors"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrency is the capacity used when none is configured
const DefaultMaxConcurrency = 4

// Item is one analysis request in a batch
type Item struct {
	ID       string          `json:"id"`
	Analysis string          `json:"analysis"`
	Input    json.RawMessage `json:"input"`
}

// ItemError reports why one item failed
type ItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Outcome is the result of one item. Exactly one of Result and Error is set.
type Outcome struct {
	ID         string      `json:"id"`
	Analysis   string      `json:"analysis"`
	Result     interface{} `json:"result,omitempty"`
	Error      *ItemError  `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}

// Report is the outcome of a whole batch, in request order
type Report struct {
	BatchID   core.BatchID `json:"batch_id"`
	Outcomes  []Outcome    `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// RunFunc executes a single item
type RunFunc func(ctx context.Context, batchID core.BatchID, item Item) (interface{}, error)

// CostFunc weighs an analysis against the executor capacity
type CostFunc func(analysis string) int64

// Executor runs batch items concurrently. Heavier analyses take more of
// the shared capacity; a failing item never cancels its siblings.
type Executor struct {
	sem      *semaphore.Weighted
	capacity int64
	maxItems int
	cost     CostFunc
	logger   *slog.Logger
}

// NewExecutor creates an executor with the given capacity and item cap
func NewExecutor(capacity, maxItems int, cost CostFunc, logger *slog.Logger) *Executor {
	if capacity <= 0 {
		capacity = DefaultMaxConcurrency
	}
	if cost == nil {
		cost = func(string) int64 { return 1 }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
		maxItems: maxItems,
		cost:     cost,
		logger:   logger,
	}
}

// Execute runs every item and returns outcomes in request order. It only
// fails as a whole for an invalid batch or a cancelled context.
func (e *Executor) Execute(ctx context.Context, items []Item, run RunFunc) (*Report, error) {
	if len(items) == 0 {
		return nil, errors.ValidationError("batch must contain at least one item")
	}
	if e.maxItems > 0 && len(items) > e.maxItems {
		return nil, errors.Validationf("batch has %d items, the limit is %d", len(items), e.maxItems)
	}

	report := &Report{
		BatchID:  core.NewBatchID(),
		Outcomes: make([]Outcome, len(items)),
	}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		if item.ID == "" {
			item.ID = item.Analysis
		}
		weight := e.weight(item.Analysis)

		if err := e.sem.Acquire(gctx, weight); err != nil {
			break
		}
		i, item := i, item
		g.Go(func() error {
			defer e.sem.Release(weight)
			report.Outcomes[i] = e.runOne(gctx, report.BatchID, item, run)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "batch cancelled")
	}

	for _, o := range report.Outcomes {
		if o.Error != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	e.logger.Info("batch finished",
		"batch_id", report.BatchID,
		"items", len(items),
		"failed", report.Failed,
		"elapsed", time.Since(start))
	return report, nil
}

func (e *Executor) weight(analysis string) int64 {
	w := e.cost(analysis)
	if w < 1 {
		w = 1
	}
	if w > e.capacity {
		w = e.capacity
	}
	return w
}

func (e *Executor) runOne(ctx context.Context, batchID core.BatchID, item Item, run RunFunc) Outcome {
	start := time.Now()
	out := Outcome{ID: item.ID, Analysis: item.Analysis}

	result, err := run(ctx, batchID, item)
	out.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		out.Error = &ItemError{Code: errors.GetCode(err), Message: err.Error()}
		return out
	}
	out.Result = result
	return out
}
