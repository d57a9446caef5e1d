package core

import (
	"encoding/json"
	"fmt"
	"math"
)

// Alpha is the significance level used for every significance flag and
// every two-sided 95% interval in the analysis modules.
const Alpha = 0.05

// ============================================================================
// OPTIONAL VALUES
// ============================================================================

// Optional holds a value that may be undefined because the input is
// degenerate (a zero cell, a zero risk difference). An absent Optional
// marshals as JSON null, which keeps "undefined" distinguishable from a
// computed zero.
type Optional[T any] struct {
	value T
	valid bool
}

// Some wraps a defined value
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, valid: true}
}

// None returns an absent value
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// SomeFinite wraps v only when it is a finite number
func SomeFinite(v float64) Optional[float64] {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return None[float64]()
	}
	return Some(v)
}

// Valid reports whether the value is defined
func (o Optional[T]) Valid() bool {
	return o.valid
}

// Get returns the value and whether it is defined
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.valid
}

// OrElse returns the value, or fallback when absent
func (o Optional[T]) OrElse(fallback T) T {
	if !o.valid {
		return fallback
	}
	return o.value
}

// MarshalJSON encodes an absent value as null
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON decodes null as an absent value
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}

func (o Optional[T]) String() string {
	if !o.valid {
		return "<none>"
	}
	return fmt.Sprint(o.value)
}

// ============================================================================
// INTERVALS AND ESTIMATES
// ============================================================================

// Interval is a two-sided confidence interval, encoded as [lower, upper]
type Interval struct {
	Lower float64
	Upper float64
}

// NewInterval builds an interval from its bounds
func NewInterval(lower, upper float64) Interval {
	return Interval{Lower: lower, Upper: upper}
}

// Symmetric builds estimate ± halfWidth
func Symmetric(estimate, halfWidth float64) Interval {
	return Interval{Lower: estimate - halfWidth, Upper: estimate + halfWidth}
}

// Exp maps a log-scale interval back to the natural scale
func (i Interval) Exp() Interval {
	return Interval{Lower: math.Exp(i.Lower), Upper: math.Exp(i.Upper)}
}

// Clip bounds both ends to [lo, hi]
func (i Interval) Clip(lo, hi float64) Interval {
	return Interval{
		Lower: math.Max(lo, math.Min(hi, i.Lower)),
		Upper: math.Max(lo, math.Min(hi, i.Upper)),
	}
}

// Contains reports whether v lies inside the closed interval
func (i Interval) Contains(v float64) bool {
	return v >= i.Lower && v <= i.Upper
}

// Width returns Upper - Lower
func (i Interval) Width() float64 {
	return i.Upper - i.Lower
}

// MarshalJSON encodes the interval as a two-element array
func (i Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{i.Lower, i.Upper})
}

// UnmarshalJSON decodes a two-element array
func (i *Interval) UnmarshalJSON(data []byte) error {
	var bounds [2]float64
	if err := json.Unmarshal(data, &bounds); err != nil {
		return fmt.Errorf("interval must be [lower, upper]: %w", err)
	}
	i.Lower, i.Upper = bounds[0], bounds[1]
	return nil
}

// EffectEstimate is the canonical result shape shared by every analysis:
// a point estimate with its standard error, two-sided 95% CI, test
// statistic, two-sided p-value and significance flag at Alpha.
type EffectEstimate struct {
	Estimate    float64  `json:"estimate"`
	SE          float64  `json:"se"`
	CI          Interval `json:"ci_95"`
	Statistic   float64  `json:"statistic"`
	PValue      float64  `json:"p_value"`
	Significant bool     `json:"significant"`
}

// NewEffectEstimate assembles an estimate and derives the significance flag
func NewEffectEstimate(estimate, se float64, ci Interval, statistic, pValue float64) EffectEstimate {
	return EffectEstimate{
		Estimate:    estimate,
		SE:          se,
		CI:          ci,
		Statistic:   statistic,
		PValue:      pValue,
		Significant: IsSignificant(pValue),
	}
}

// IsSignificant reports p < Alpha
func IsSignificant(pValue float64) bool {
	return pValue < Alpha
}
