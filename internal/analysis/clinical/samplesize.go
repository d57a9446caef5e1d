package clinical

import (
	"math"

	"medstat/domain/core"
	"medstat/internal/analysis/dist"
	"medstat/internal/errors"
)

// Sample-size modes
const (
	ModeTTest2Sample      = "ttest_2samp"
	ModeProportion2Sample = "proportion_2samp"
)

// Defaults applied when the caller leaves a field at zero
const (
	DefaultPower = 0.80
	DefaultRatio = 1.0
)

// SampleSizeInput describes the design to power. Pointer fields are
// optional; which ones are required depends on Mode.
type SampleSizeInput struct {
	Mode       string
	Alpha      float64
	Power      float64
	Ratio      float64
	EffectSize *float64
	Mean1      *float64
	Mean2      *float64
	SD         *float64
	P1         *float64
	P2         *float64
}

// SampleSizeResult reports per-arm sizes, n2 = ceil(n1·ratio)
type SampleSizeResult struct {
	Type       string  `json:"type"`
	Test       string  `json:"test"`
	Alpha      float64 `json:"alpha"`
	Power      float64 `json:"power"`
	EffectSize float64 `json:"effect_size"`
	N1         int     `json:"n1"`
	N2         int     `json:"n2"`
	NTotal     int     `json:"n_total"`
	Ratio      float64 `json:"ratio"`
}

// SampleSize computes the per-arm sample size for a two-sided test
func SampleSize(in SampleSizeInput) (*SampleSizeResult, error) {
	if in.Mode == "" {
		in.Mode = ModeTTest2Sample
	}
	if in.Alpha == 0 {
		in.Alpha = core.Alpha
	}
	if in.Power == 0 {
		in.Power = DefaultPower
	}
	if in.Ratio == 0 {
		in.Ratio = DefaultRatio
	}
	if in.Alpha <= 0 || in.Alpha >= 1 {
		return nil, errors.ValidationError("alpha must lie strictly between 0 and 1")
	}
	if in.Power <= 0 || in.Power >= 1 {
		return nil, errors.ValidationError("power must lie strictly between 0 and 1")
	}
	if in.Ratio < 0 || math.IsNaN(in.Ratio) || math.IsInf(in.Ratio, 0) {
		return nil, errors.ValidationError("ratio must be positive")
	}

	zAlpha := dist.NormalQuantile(1 - in.Alpha/2)
	zBeta := dist.NormalQuantile(in.Power)
	ratio := in.Ratio

	var n1, effect float64
	switch in.Mode {
	case ModeTTest2Sample:
		switch {
		case in.EffectSize != nil:
			effect = math.Abs(*in.EffectSize)
		case in.Mean1 != nil && in.Mean2 != nil && in.SD != nil:
			if *in.SD <= 0 {
				return nil, errors.ValidationError("sd must be positive")
			}
			effect = math.Abs(*in.Mean2-*in.Mean1) / *in.SD
		default:
			return nil, errors.ValidationError("provide effect_size or (mean1, mean2, sd)")
		}
		if effect == 0 || math.IsNaN(effect) || math.IsInf(effect, 0) {
			return nil, errors.ValidationError("effect size must be a non-zero finite number")
		}
		n1 = (zAlpha + zBeta) * (zAlpha + zBeta) * (1 + 1/ratio) / (effect * effect)

	case ModeProportion2Sample:
		if in.P1 == nil || in.P2 == nil {
			return nil, errors.ValidationError("provide p1 and p2")
		}
		p1, p2 := *in.P1, *in.P2
		if p1 <= 0 || p1 >= 1 || p2 <= 0 || p2 >= 1 {
			return nil, errors.ValidationError("p1 and p2 must lie strictly between 0 and 1")
		}
		if p1 == p2 {
			return nil, errors.ValidationError("p1 and p2 must differ")
		}
		pBar := (p1 + ratio*p2) / (1 + ratio)
		term := zAlpha*math.Sqrt((1+1/ratio)*pBar*(1-pBar)) +
			zBeta*math.Sqrt(p1*(1-p1)+p2*(1-p2)/ratio)
		n1 = term * term / ((p1 - p2) * (p1 - p2))
		effect = math.Abs(p1-p2) / math.Sqrt(pBar*(1-pBar))

	default:
		return nil, errors.Validationf("unknown sample-size mode %q", in.Mode)
	}

	// ceil after rounding away float noise so an exact integer stays put
	arm1 := int(math.Ceil(roundTo(n1, 9)))
	arm2 := int(math.Ceil(roundTo(float64(arm1)*ratio, 9)))
	return &SampleSizeResult{
		Type:       "sample_size",
		Test:       in.Mode,
		Alpha:      in.Alpha,
		Power:      in.Power,
		EffectSize: effect,
		N1:         arm1,
		N2:         arm2,
		NTotal:     arm1 + arm2,
		Ratio:      ratio,
	}, nil
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
