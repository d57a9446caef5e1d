package app

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"medstat/domain/run"
	"medstat/internal/analysis/epi"
	"medstat/internal/batch"
	"medstat/internal/errors"
	"medstat/internal/observability"
	"medstat/ports"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) Record(ctx context.Context, r run.AnalysisRun) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockLedger) Recent(ctx context.Context, f ports.RunFilter) ([]run.AnalysisRun, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]run.AnalysisRun), args.Error(1)
}

func newTestService(ledger ports.RunLedger) (*AnalysisService, *observability.Metrics) {
	reg := testRegistry()
	metrics := observability.NewMetrics()
	exec := batch.NewExecutor(2, 10, reg.Cost, nil)
	return NewAnalysisService(reg, exec, ledger, metrics, nil), metrics
}

func TestRunRecordsSuccess(t *testing.T) {
	ledger := &mockLedger{}
	ledger.On("Record", mock.Anything, mock.MatchedBy(func(r run.AnalysisRun) bool {
		return r.Analysis == AnalysisTTest && r.Status == run.StatusSucceeded &&
			r.Source == SourceAPI && r.ErrorCode == "" && r.ID != ""
	})).Return(nil).Once()

	svc, metrics := newTestService(ledger)
	_, err := svc.Run(context.Background(), SourceAPI, AnalysisTTest, []byte(`{"group1":[1,2,3],"group2":[4,5,7]}`))
	require.NoError(t, err)

	ledger.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(AnalysisTTest, observability.StatusSuccess)))
}

func TestRunRecordsRejection(t *testing.T) {
	ledger := &mockLedger{}
	ledger.On("Record", mock.Anything, mock.MatchedBy(func(r run.AnalysisRun) bool {
		return r.Status == run.StatusRejected && r.ErrorCode == errors.CodeValidationError
	})).Return(nil).Once()

	svc, metrics := newTestService(ledger)
	_, err := svc.Run(context.Background(), SourceCLI, AnalysisTTest, []byte(`{"group1":[1],"group2":[4,5]}`))
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	ledger.AssertExpectations(t)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(AnalysisTTest, observability.StatusValidation)))
}

func TestRunSurvivesLedgerFailure(t *testing.T) {
	ledger := &mockLedger{}
	ledger.On("Record", mock.Anything, mock.Anything).Return(stderrors.New("connection refused"))

	svc, _ := newTestService(ledger)
	out, err := svc.Run(context.Background(), SourceAPI, AnalysisTwoByTwo, []byte(`{"a":10,"b":5,"c":3,"d":12}`))
	require.NoError(t, err)
	assert.NotNil(t, out)
}

func TestRunCountsDegradedFit(t *testing.T) {
	svc, metrics := newTestService(nil)
	body := `{"outcome":[1,1,1,1,1,1,1,1,1,1],"predictors":{"x":[1,2,3,4,5,6,7,8,9,10]}}`

	out, err := svc.Run(context.Background(), SourceAPI, AnalysisLogistic, []byte(body))
	require.NoError(t, err)
	res := out.(*epi.LogisticResult)
	require.True(t, res.Failed())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DegradedFitsTotal.WithLabelValues(res.Failure.Kind)))
}

func TestRunBatch(t *testing.T) {
	ledger := &mockLedger{}
	ledger.On("Record", mock.Anything, mock.MatchedBy(func(r run.AnalysisRun) bool {
		return r.Source == SourceBatch && r.BatchID != ""
	})).Return(nil).Twice()

	svc, _ := newTestService(ledger)
	report, err := svc.RunBatch(context.Background(), []batch.Item{
		{ID: "t", Analysis: AnalysisTTest, Input: json.RawMessage(`{"group1":[1,2,3],"group2":[4,5,7]}`)},
		{ID: "m", Analysis: AnalysisMeta, Input: json.RawMessage(`{"studies":[{"yi":0.1,"sei":0.2}]}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, errors.CodeValidationError, report.Outcomes[1].Error.Code)
	ledger.AssertExpectations(t)

	_, err = svc.RunBatch(context.Background(), []batch.Item{{Analysis: "kaplan"}})
	assert.True(t, errors.IsValidation(err))
}

func TestRecentRuns(t *testing.T) {
	svc, _ := newTestService(nil)
	runs, err := svc.RecentRuns(context.Background(), ports.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)

	ledger := &mockLedger{}
	want := []run.AnalysisRun{{Analysis: AnalysisMeta}}
	ledger.On("Recent", mock.Anything, ports.RunFilter{Limit: 5}).Return(want, nil)
	svc, _ = newTestService(ledger)
	runs, err = svc.RecentRuns(context.Background(), ports.RunFilter{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, want, runs)
}
