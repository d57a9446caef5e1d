package core

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalJSON(t *testing.T) {
	type payload struct {
		OR  Optional[float64]  `json:"or"`
		CI  Optional[Interval] `json:"ci"`
		Sig Optional[bool]     `json:"sig"`
	}

	data, err := json.Marshal(payload{OR: Some(2.5), CI: None[Interval](), Sig: Some(true)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"or":2.5,"ci":null,"sig":true}`, string(data))

	var back payload
	require.NoError(t, json.Unmarshal(data, &back))
	v, ok := back.OR.Get()
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)
	assert.False(t, back.CI.Valid())
	assert.Equal(t, true, back.Sig.OrElse(false))
}

func TestSomeFinite(t *testing.T) {
	assert.True(t, SomeFinite(1.2).Valid())
	assert.False(t, SomeFinite(math.Inf(1)).Valid())
	assert.False(t, SomeFinite(math.NaN()).Valid())
	assert.Equal(t, -1.0, SomeFinite(math.NaN()).OrElse(-1))
	assert.Equal(t, "<none>", None[int]().String())
}

func TestInterval(t *testing.T) {
	ci := Symmetric(1, 0.5)
	assert.Equal(t, NewInterval(0.5, 1.5), ci)
	assert.True(t, ci.Contains(1.5))
	assert.False(t, ci.Contains(1.6))
	assert.InDelta(t, 1.0, ci.Width(), 1e-12)

	assert.Equal(t, NewInterval(0, 1), NewInterval(-0.2, 1.3).Clip(0, 1))

	exp := NewInterval(0, math.Log(2)).Exp()
	assert.InDelta(t, 1.0, exp.Lower, 1e-12)
	assert.InDelta(t, 2.0, exp.Upper, 1e-12)

	data, err := json.Marshal(ci)
	require.NoError(t, err)
	assert.JSONEq(t, `[0.5,1.5]`, string(data))

	var back Interval
	require.NoError(t, json.Unmarshal([]byte(`[1,2]`), &back))
	assert.Equal(t, NewInterval(1, 2), back)
	assert.Error(t, json.Unmarshal([]byte(`{"lower":1}`), &back))
}

func TestEffectEstimateSignificance(t *testing.T) {
	assert.True(t, NewEffectEstimate(1, 0.2, Symmetric(1, 0.4), 5, 0.01).Significant)
	assert.False(t, NewEffectEstimate(0.1, 0.2, Symmetric(0.1, 0.4), 0.5, Alpha).Significant)
}
