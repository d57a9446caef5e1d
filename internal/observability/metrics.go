// Package observability provides Prometheus metrics for analysis runs.
//
// Each Metrics value owns its registry so tests and multiple servers in
// one process do not collide. The server exposes them on /metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "medstat"

// Run outcomes used as the status label
const (
	StatusSuccess    = "success"
	StatusValidation = "validation_error"
	StatusError      = "error"
)

// Metrics holds the analysis counters and histograms
type Metrics struct {
	registry *prometheus.Registry

	// RunsTotal counts analysis runs. Labels: analysis, status
	RunsTotal *prometheus.CounterVec

	// RunDurationSeconds measures analysis wall time. Labels: analysis
	RunDurationSeconds *prometheus.HistogramVec

	// DegradedFitsTotal counts logistic fits returned as degraded results.
	// Labels: kind
	DegradedFitsTotal *prometheus.CounterVec

	// BatchItems measures the size of batch requests
	BatchItems prometheus.Histogram

	// IngestedRows counts rows read from uploads and REDCap. Labels: source
	IngestedRows *prometheus.CounterVec
}

// NewMetrics registers the metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "analysis_runs_total",
				Help:      "Analysis runs by analysis and status",
			},
			[]string{"analysis", "status"},
		),
		RunDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "analysis_duration_seconds",
				Help:      "Analysis wall time",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"analysis"},
		),
		DegradedFitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "logistic_degraded_total",
				Help:      "Logistic regressions returned as degraded results, by failure kind",
			},
			[]string{"kind"},
		),
		BatchItems: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "batch_items",
			Help:      "Analyses per batch request",
			Buckets:   []float64{1, 2, 5, 10, 20, 50},
		}),
		IngestedRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "ingested_rows_total",
				Help:      "Rows read by source",
			},
			[]string{"source"},
		),
	}
}

// ObserveRun records one analysis run
func (m *Metrics) ObserveRun(analysis, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(analysis, status).Inc()
	m.RunDurationSeconds.WithLabelValues(analysis).Observe(elapsed.Seconds())
}

// ObserveDegradedFit records a logistic failure kind
func (m *Metrics) ObserveDegradedFit(kind string) {
	if m == nil {
		return
	}
	m.DegradedFitsTotal.WithLabelValues(kind).Inc()
}

// ObserveBatch records the size of a batch
func (m *Metrics) ObserveBatch(items int) {
	if m == nil {
		return
	}
	m.BatchItems.Observe(float64(items))
}

// ObserveIngest records rows read from a source
func (m *Metrics) ObserveIngest(source string, rows int) {
	if m == nil {
		return
	}
	m.IngestedRows.WithLabelValues(source).Add(float64(rows))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
