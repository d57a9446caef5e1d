package meta

import (
	"fmt"
	"math"

	"medstat/internal/analysis/dist"
	"medstat/internal/errors"
)

// continuityCorrection is added to every cell of a 2×2 study with a zero
// (or full) arm
const continuityCorrection = 0.5

// StudyInput is one study in any of the accepted shapes. The set of
// implementations is closed: LogEffect, EffectCI and EventCounts.
type StudyInput interface {
	// normalize returns the study on the analysis scale: yi is the log
	// effect for ratio measures and the raw effect otherwise.
	normalize(m Measure) (yi, sei float64, err error)
	label() string
}

// LogEffect is an effect already on the analysis scale with its standard error
type LogEffect struct {
	Name string
	Yi   float64
	SEi  float64
}

// EffectCI is a natural-scale effect with its 95% confidence interval
type EffectCI struct {
	Name   string
	Effect float64
	Lower  float64
	Upper  float64
}

// EventCounts is a two-arm study reported as events out of totals
type EventCounts struct {
	Name    string
	Events1 int
	N1      int
	Events2 int
	N2      int
}

func (s LogEffect) label() string   { return s.Name }
func (s EffectCI) label() string    { return s.Name }
func (s EventCounts) label() string { return s.Name }

func (s LogEffect) normalize(Measure) (float64, float64, error) {
	if !finite(s.Yi) {
		return 0, 0, errors.ValidationError("yi must be finite")
	}
	if !finite(s.SEi) || s.SEi <= 0 {
		return 0, 0, errors.ValidationError("sei must be positive")
	}
	return s.Yi, s.SEi, nil
}

// normalize recovers the standard error from the CI width:
// se = (hi − lo) / (2·1.96) on the analysis scale.
func (s EffectCI) normalize(m Measure) (float64, float64, error) {
	effect, lo, hi := s.Effect, s.Lower, s.Upper
	if m.ratio() {
		if effect <= 0 || lo <= 0 || hi <= 0 {
			return 0, 0, errors.Validationf("%s effect and CI bounds must be positive", m)
		}
		effect, lo, hi = math.Log(effect), math.Log(lo), math.Log(hi)
	}
	se := (hi - lo) / (2 * dist.Z975)
	if !finite(effect) || !finite(se) || se <= 0 {
		return 0, 0, errors.ValidationError("upper CI bound must exceed the lower bound")
	}
	return effect, se, nil
}

func (s EventCounts) normalize(m Measure) (float64, float64, error) {
	if !m.ratio() {
		return 0, 0, errors.Validationf("2×2 event counts cannot be pooled as %s", m)
	}
	if s.N1 <= 0 || s.N2 <= 0 {
		return 0, 0, errors.ValidationError("arm sizes must be positive")
	}
	if s.Events1 < 0 || s.Events1 > s.N1 || s.Events2 < 0 || s.Events2 > s.N2 {
		return 0, 0, errors.ValidationError("events must lie between 0 and the arm size")
	}

	a, b := float64(s.Events1), float64(s.N1-s.Events1)
	c, d := float64(s.Events2), float64(s.N2-s.Events2)
	if a == 0 || b == 0 || c == 0 || d == 0 {
		a += continuityCorrection
		b += continuityCorrection
		c += continuityCorrection
		d += continuityCorrection
	}

	if m == OddsRatio {
		return math.Log(a * d / (b * c)), math.Sqrt(1/a + 1/b + 1/c + 1/d), nil
	}
	p1, p2 := a/(a+b), c/(c+d)
	return math.Log(p1 / p2), math.Sqrt(b/(a*(a+b)) + d/(c*(c+d))), nil
}

// normalized is a study on the analysis scale
type normalized struct {
	name string
	yi   float64
	sei  float64
}

func normalizeAll(studies []StudyInput, m Measure) ([]normalized, error) {
	out := make([]normalized, 0, len(studies))
	for i, s := range studies {
		if s == nil {
			return nil, errors.Validationf("study %d is empty", i+1)
		}
		yi, sei, err := s.normalize(m)
		if err != nil {
			return nil, errors.Wrapf(err, "study %d", i+1)
		}
		name := s.label()
		if name == "" {
			name = fmt.Sprintf("Study %d", i+1)
		}
		out = append(out, normalized{name: name, yi: yi, sei: sei})
	}
	return out, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
