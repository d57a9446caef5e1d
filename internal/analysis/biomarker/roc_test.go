package biomarker

import (
	"math"
	"math/rand"
	"testing"

	"medstat/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestROC_PerfectSeparation(t *testing.T) {
	marker := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	outcome := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}

	result, err := ROC(ROCInput{Marker: marker, Outcome: outcome})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, result.AUC.Estimate, 1e-12)
	assert.Equal(t, "Excellent (AUC ≥ 0.90)", result.AUCInterpretation)
	assert.Equal(t, 6.0, result.Optimal.Value)
	assert.InDelta(t, 1.0, result.Optimal.YoudenIndex, 1e-12)
	assert.Equal(t, 1.0, result.Optimal.Sensitivity)
	assert.Equal(t, 1.0, result.Optimal.Specificity)
	assert.False(t, result.Optimal.PositiveLR.Valid(), "LR+ is undefined at specificity 1")
	lrNeg, ok := result.Optimal.NegativeLR.Get()
	require.True(t, ok)
	assert.Equal(t, 0.0, lrNeg)
	assert.LessOrEqual(t, result.AUC.CI.Upper, 1.0)
	assert.Equal(t, 0.5, result.Prevalence)
}

func TestROC_LowDirectionMirrorsHigh(t *testing.T) {
	marker := []float64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	outcome := []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1}

	high, err := ROC(ROCInput{Marker: marker, Outcome: outcome, Direction: DirectionHigh})
	require.NoError(t, err)
	low, err := ROC(ROCInput{Marker: marker, Outcome: outcome, Direction: DirectionLow})
	require.NoError(t, err)

	assert.InDelta(t, 0.0, high.AUC.Estimate, 1e-12)
	assert.InDelta(t, 1.0, low.AUC.Estimate, 1e-12)
	assert.Equal(t, 5.0, low.Optimal.Value)
	assert.Equal(t, 5, low.Optimal.TP)
	assert.Equal(t, 0, low.Optimal.FP)
}

func TestROC_RankSumEquivalence(t *testing.T) {
	// Positives 0.35, 0.8 against negatives 0.1, 0.4, 0.2: 5 of 6 pairs concordant
	marker := []float64{0.1, 0.4, 0.35, 0.8, 0.2}
	outcome := []int{0, 0, 1, 1, 0}

	result, err := ROC(ROCInput{Marker: marker, Outcome: outcome})
	require.NoError(t, err)
	assert.InDelta(t, 5.0/6.0, result.AUC.Estimate, 1e-12)
	assert.InDelta(t, HanleyMcNeilSE(5.0/6.0, 2, 3), result.AUC.SE, 1e-12)
	assert.Equal(t, 2, result.NPositive)
	assert.Equal(t, 3, result.NNegative)
}

func TestROC_TiesGiveChanceLine(t *testing.T) {
	marker := []float64{3, 3, 3, 3, 3, 3}
	outcome := []int{0, 1, 0, 1, 0, 1}

	result, err := ROC(ROCInput{Marker: marker, Outcome: outcome})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.AUC.Estimate, 1e-12)
	assert.Equal(t, []float64{0, 1}, result.Curve.FPR)
	assert.Equal(t, []float64{0, 1}, result.Curve.TPR)
	assert.False(t, result.AUC.Significant)
}

func TestROC_AUCBoundedForRandomMarkers(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 25; trial++ {
		n := 20 + rng.Intn(60)
		marker := make([]float64, n)
		outcome := make([]int, n)
		for i := range marker {
			marker[i] = rng.NormFloat64()
			outcome[i] = i % 2
		}
		result, err := ROC(ROCInput{Marker: marker, Outcome: outcome})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.AUC.Estimate, 0.0)
		assert.LessOrEqual(t, result.AUC.Estimate, 1.0)
		assert.GreaterOrEqual(t, result.AUC.CI.Lower, 0.0)
		assert.LessOrEqual(t, result.AUC.CI.Upper, 1.0)
		assert.GreaterOrEqual(t, result.AUC.PValue, 0.0)
		assert.LessOrEqual(t, result.AUC.PValue, 1.0)
	}
}

func TestROC_IndependentMarkerNearChance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	n := 4000
	marker := make([]float64, n)
	outcome := make([]int, n)
	for i := range marker {
		marker[i] = rng.Float64()
		outcome[i] = rng.Intn(2)
	}
	result, err := ROC(ROCInput{Marker: marker, Outcome: outcome})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, result.AUC.Estimate, 0.03)
}

func TestROC_DownsamplesAfterAUC(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 1000
	marker := make([]float64, n)
	outcome := make([]int, n)
	for i := range marker {
		outcome[i] = i % 2
		marker[i] = rng.Float64() + 0.3*float64(outcome[i])
	}
	result, err := ROC(ROCInput{Marker: marker, Outcome: outcome})
	require.NoError(t, err)

	assert.Equal(t, n+1, result.CurvePoints)
	require.Len(t, result.Curve.FPR, DefaultMaxCurvePoints)
	assert.Equal(t, 0.0, result.Curve.FPR[0])
	assert.Equal(t, 1.0, result.Curve.FPR[len(result.Curve.FPR)-1])
	assert.Equal(t, 1.0, result.Curve.TPR[len(result.Curve.TPR)-1])
}

func TestROC_SelectedThresholdAndDeciles(t *testing.T) {
	marker := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	outcome := []int{0, 0, 1, 0, 0, 1, 0, 1, 1, 1}
	threshold := 5.5

	result, err := ROC(ROCInput{Marker: marker, Outcome: outcome, Threshold: &threshold})
	require.NoError(t, err)
	require.NotNil(t, result.Selected)

	sel := result.Selected
	assert.Equal(t, 4, sel.TP)
	assert.Equal(t, 1, sel.FP)
	assert.Equal(t, 4, sel.TN)
	assert.Equal(t, 1, sel.FN)
	assert.InDelta(t, 0.8, sel.Sensitivity, 1e-12)
	assert.InDelta(t, 0.8, sel.Specificity, 1e-12)
	assert.InDelta(t, 0.8, sel.Accuracy, 1e-12)
	lr, ok := sel.PositiveLR.Get()
	require.True(t, ok)
	assert.InDelta(t, 4.0, lr, 1e-12)

	require.Len(t, result.SensSpecTable, 10)
	assert.InDelta(t, 1.9, result.SensSpecTable[0].Threshold, 1e-12)
	assert.InDelta(t, 9.1, result.SensSpecTable[9].Threshold, 1e-12)
	for i := 1; i < len(result.SensSpecTable); i++ {
		assert.GreaterOrEqual(t, result.SensSpecTable[i].Threshold, result.SensSpecTable[i-1].Threshold)
	}
}

func TestPercentileInterpolatesBetweenOrderStatistics(t *testing.T) {
	sorted := []float64{1, 2, 4, 8}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.1, 1.3},
		{0.5, 3},
		{0.9, 6.8},
		{1, 8},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, percentile(sorted, tt.p), 1e-12, "p=%v", tt.p)
	}
	assert.Equal(t, 5.0, percentile([]float64{5}, 0.3))
}

func TestPerformance_LikelihoodRatioGuards(t *testing.T) {
	marker := []float64{1, 2, 3, 4, 5}
	outcome := []int{0, 1, 0, 1, 1}

	// Everything called positive: specificity 0, LR- undefined
	perf := Performance(marker, outcome, 0, DirectionHigh)
	assert.Equal(t, 0.0, perf.Specificity)
	assert.False(t, perf.NegativeLR.Valid())
	plr, ok := perf.PositiveLR.Get()
	require.True(t, ok)
	assert.Equal(t, 1.0, plr)

	// Nothing called positive: PPV has an empty denominator
	perf = Performance(marker, outcome, 100, DirectionHigh)
	assert.Equal(t, 0.0, perf.PPV)
	assert.Equal(t, 1.0, perf.Specificity)
	assert.False(t, perf.PositiveLR.Valid())
	assert.False(t, math.IsNaN(perf.NPV))
}

func TestROC_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   ROCInput
	}{
		{"length mismatch", ROCInput{Marker: []float64{1, 2, 3, 4, 5}, Outcome: []int{0, 1, 0, 1}}},
		{"too few", ROCInput{Marker: []float64{1, 2, 3, 4}, Outcome: []int{0, 1, 0, 1}}},
		{"non binary", ROCInput{Marker: []float64{1, 2, 3, 4, 5}, Outcome: []int{0, 1, 2, 1, 0}}},
		{"single class", ROCInput{Marker: []float64{1, 2, 3, 4, 5}, Outcome: []int{1, 1, 1, 1, 1}}},
		{"bad direction", ROCInput{Marker: []float64{1, 2, 3, 4, 5}, Outcome: []int{0, 1, 0, 1, 0}, Direction: "up"}},
		{"nan marker", ROCInput{Marker: []float64{1, math.NaN(), 3, 4, 5}, Outcome: []int{0, 1, 0, 1, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ROC(tt.in)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}

func TestInterpretAUC(t *testing.T) {
	assert.Equal(t, "Good (AUC 0.80–0.89)", InterpretAUC(0.85))
	assert.Equal(t, "Fair (AUC 0.70–0.79)", InterpretAUC(0.70))
	assert.Equal(t, "Poor (AUC 0.60–0.69)", InterpretAUC(0.61))
	assert.Equal(t, "Fail (AUC < 0.60)", InterpretAUC(0.4))
}
