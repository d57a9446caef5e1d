package clinical

import (
	"testing"

	"medstat/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func TestSampleSize_TTestTextbook(t *testing.T) {
	result, err := SampleSize(SampleSizeInput{Mode: ModeTTest2Sample, EffectSize: ptr(0.5)})
	require.NoError(t, err)

	assert.Equal(t, 63, result.N1)
	assert.Equal(t, 63, result.N2)
	assert.Equal(t, 126, result.NTotal)
	assert.Equal(t, 0.05, result.Alpha)
	assert.Equal(t, 0.80, result.Power)
}

func TestSampleSize_TTestFromMeans(t *testing.T) {
	result, err := SampleSize(SampleSizeInput{Mean1: ptr(120), Mean2: ptr(125), SD: ptr(10)})
	require.NoError(t, err)
	assert.Equal(t, 0.5, result.EffectSize)
	assert.Equal(t, 63, result.N1)
}

func TestSampleSize_Ratio(t *testing.T) {
	result, err := SampleSize(SampleSizeInput{EffectSize: ptr(0.5), Ratio: 2})
	require.NoError(t, err)
	assert.Equal(t, 48, result.N1)
	assert.Equal(t, 96, result.N2)
}

func TestSampleSize_Proportions(t *testing.T) {
	result, err := SampleSize(SampleSizeInput{Mode: ModeProportion2Sample, P1: ptr(0.5), P2: ptr(0.3)})
	require.NoError(t, err)
	assert.Equal(t, 93, result.N1)
	assert.Equal(t, 93, result.N2)
	assert.InDelta(t, 0.4082482904638631, result.EffectSize, 1e-12)
}

func TestSampleSize_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   SampleSizeInput
	}{
		{"missing inputs", SampleSizeInput{Mode: ModeTTest2Sample}},
		{"zero sd", SampleSizeInput{Mean1: ptr(1), Mean2: ptr(2), SD: ptr(0)}},
		{"zero effect", SampleSizeInput{EffectSize: ptr(0)}},
		{"equal proportions", SampleSizeInput{Mode: ModeProportion2Sample, P1: ptr(0.3), P2: ptr(0.3)}},
		{"missing proportion", SampleSizeInput{Mode: ModeProportion2Sample, P1: ptr(0.3)}},
		{"alpha out of range", SampleSizeInput{EffectSize: ptr(0.5), Alpha: 1.5}},
		{"negative ratio", SampleSizeInput{EffectSize: ptr(0.5), Ratio: -1}},
		{"unknown mode", SampleSizeInput{Mode: "anova"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SampleSize(tt.in)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
		})
	}
}
