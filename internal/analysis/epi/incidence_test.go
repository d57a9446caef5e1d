package epi

import (
	"math"
	"testing"

	"medstat/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncidenceRate_ExactPoissonCI(t *testing.T) {
	result, err := IncidenceRate(IncidenceInput{Arm: Arm{Events: 10, PersonTime: 1000}})
	require.NoError(t, err)

	assert.Equal(t, 0.01, result.Rate)
	assert.InDelta(t, 10.0, result.RatePer1000, 1e-12)
	assert.InDelta(t, 4.7954/1000, result.CI.Lower, 1e-6)
	assert.InDelta(t, 18.3904/1000, result.CI.Upper, 1e-6)
	assert.InDelta(t, result.CI.Upper*1000, result.CIPer1000.Upper, 1e-9)
	assert.Equal(t, DefaultTimeUnit, result.TimeUnit)
	assert.Nil(t, result.Comparison)
}

func TestIncidenceRate_ZeroEvents(t *testing.T) {
	result, err := IncidenceRate(IncidenceInput{Arm: Arm{Events: 0, PersonTime: 100}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.CI.Lower)
	// chi-square with 2 df has quantile -2 ln(1-p)
	assert.InDelta(t, -math.Log(0.025)/100, result.CI.Upper, 1e-9)
}

func TestIncidenceRate_Comparison(t *testing.T) {
	result, err := IncidenceRate(IncidenceInput{
		Arm:        Arm{Events: 20, PersonTime: 1000},
		Comparison: &Arm{Events: 10, PersonTime: 1000},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Comparison)

	irr, ok := result.Comparison.IRR.Get()
	require.True(t, ok)
	assert.InDelta(t, 2.0, irr, 1e-12)
	ci, ok := result.Comparison.IRRCI.Get()
	require.True(t, ok)
	assert.InDelta(t, 0.9361836574, ci.Lower, 1e-6)
	assert.InDelta(t, 4.2726659116, ci.Upper, 1e-6)
	p, ok := result.Comparison.PValue.Get()
	require.True(t, ok)
	assert.InDelta(t, 0.0253473187, p, 1e-6)
	sig, _ := result.Comparison.Significant.Get()
	assert.True(t, sig)
}

func TestIncidenceRate_ComparisonWithoutEvents(t *testing.T) {
	result, err := IncidenceRate(IncidenceInput{
		Arm:        Arm{Events: 5, PersonTime: 100},
		Comparison: &Arm{Events: 0, PersonTime: 100},
	})
	require.NoError(t, err)
	assert.False(t, result.Comparison.IRR.Valid())
	assert.False(t, result.Comparison.PValue.Valid())
	assert.False(t, result.Comparison.Significant.Valid())
}

func TestIncidenceRate_Validation(t *testing.T) {
	for _, in := range []IncidenceInput{
		{Arm: Arm{Events: -1, PersonTime: 10}},
		{Arm: Arm{Events: 1, PersonTime: 0}},
		{Arm: Arm{Events: 1, PersonTime: 10}, Comparison: &Arm{Events: 1, PersonTime: -5}},
	} {
		_, err := IncidenceRate(in)
		assert.True(t, errors.IsValidation(err))
	}
}
