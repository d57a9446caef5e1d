package app

import (
	"context"
	"log/slog"
	"time"

	"medstat/domain/core"
	"medstat/domain/run"
	"medstat/internal/analysis/epi"
	"medstat/internal/batch"
	"medstat/internal/errors"
	"medstat/internal/observability"
	"medstat/ports"
)

// Run sources recorded in the ledger
const (
	SourceAPI   = "api"
	SourceBatch = "batch"
	SourceCLI   = "cli"
)

// AnalysisService runs registered analyses and records each run in the
// metrics and, when configured, the run ledger
type AnalysisService struct {
	registry *Registry
	executor *batch.Executor
	ledger   ports.RunLedger
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewAnalysisService wires a service. ledger and metrics may be nil.
func NewAnalysisService(registry *Registry, executor *batch.Executor, ledger ports.RunLedger, metrics *observability.Metrics, logger *slog.Logger) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	if executor == nil {
		executor = batch.NewExecutor(batch.DefaultMaxConcurrency, 0, registry.Cost, logger)
	}
	return &AnalysisService{
		registry: registry,
		executor: executor,
		ledger:   ledger,
		metrics:  metrics,
		logger:   logger,
	}
}

// Registry exposes the analysis definitions
func (s *AnalysisService) Registry() *Registry {
	return s.registry
}

// Run executes one analysis from a JSON request body
func (s *AnalysisService) Run(ctx context.Context, source, analysis string, raw []byte) (interface{}, error) {
	return s.run(ctx, source, "", analysis, raw)
}

// RunBatch executes items concurrently; per-item failures are reported in
// the outcomes rather than as an error
func (s *AnalysisService) RunBatch(ctx context.Context, items []batch.Item) (*batch.Report, error) {
	for i, item := range items {
		if _, ok := s.registry.Lookup(item.Analysis); !ok {
			return nil, errors.Validationf("item %d: unknown analysis %q", i, item.Analysis)
		}
	}
	report, err := s.executor.Execute(ctx, items, func(ctx context.Context, batchID core.BatchID, item batch.Item) (interface{}, error) {
		return s.run(ctx, SourceBatch, batchID, item.Analysis, item.Input)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveBatch(len(items))
	return report, nil
}

// RecentRuns lists ledger entries. Without a ledger the list is empty.
func (s *AnalysisService) RecentRuns(ctx context.Context, filter ports.RunFilter) ([]run.AnalysisRun, error) {
	if s.ledger == nil {
		return []run.AnalysisRun{}, nil
	}
	return s.ledger.Recent(ctx, filter)
}

func (s *AnalysisService) run(ctx context.Context, source string, batchID core.BatchID, analysis string, raw []byte) (interface{}, error) {
	if _, ok := s.registry.Lookup(analysis); !ok {
		return nil, errors.NotFound("analysis " + analysis)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err := s.registry.Run(analysis, raw)
	elapsed := time.Since(start)

	status, metricStatus := run.StatusSucceeded, observability.StatusSuccess
	switch {
	case err == nil:
	case errors.IsValidation(err):
		status, metricStatus = run.StatusRejected, observability.StatusValidation
	default:
		status, metricStatus = run.StatusFailed, observability.StatusError
	}
	s.metrics.ObserveRun(analysis, metricStatus, elapsed)

	logger := s.logger.With("analysis", analysis, "source", source, "elapsed", elapsed)
	if batchID != "" {
		logger = logger.With("batch_id", batchID)
	}
	switch {
	case err == nil:
		logger.Debug("analysis completed")
	case status == run.StatusRejected:
		logger.Info("analysis rejected", "error", err)
	default:
		logger.Error("analysis failed", "error", err)
	}

	if fit, ok := result.(*epi.LogisticResult); ok && fit.Failed() {
		s.metrics.ObserveDegradedFit(fit.Failure.Kind)
		logger.Warn("logistic fit degraded", "kind", fit.Failure.Kind, "reason", fit.Failure.Reason)
	}

	s.record(ctx, analysis, source, batchID, status, elapsed, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *AnalysisService) record(ctx context.Context, analysis, source string, batchID core.BatchID, status run.Status, elapsed time.Duration, runErr error) {
	if s.ledger == nil {
		return
	}
	code := ""
	if runErr != nil {
		code = errors.GetCode(runErr)
	}
	entry := run.NewAnalysisRun(analysis, source, status, elapsed, code)
	entry.BatchID = batchID
	if err := s.ledger.Record(ctx, entry); err != nil {
		s.logger.Warn("run ledger write failed", "analysis", analysis, "error", err)
	}
}
