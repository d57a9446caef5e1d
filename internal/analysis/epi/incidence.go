package epi

import (
	"math"

	"medstat/domain/core"
	"medstat/internal/analysis/dist"
	"medstat/internal/errors"
)

// RateScale expresses rates per 1000 units of person-time
const RateScale = 1000

// DefaultTimeUnit labels person-time when the caller gives no unit
const DefaultTimeUnit = "person-years"

// Arm is an event count over person-time
type Arm struct {
	Events     int
	PersonTime float64
}

// IncidenceInput is a primary arm with an optional comparison arm
type IncidenceInput struct {
	Arm
	Comparison *Arm
	TimeUnit   string
}

// IncidenceResult reports the rate of the primary arm
type IncidenceResult struct {
	Type        string          `json:"type"`
	Events      int             `json:"events"`
	PersonTime  float64         `json:"person_time"`
	TimeUnit    string          `json:"time_unit"`
	Rate        float64         `json:"incidence_rate"`
	RatePer1000 float64         `json:"ir_per_1000"`
	CI          core.Interval   `json:"ci_95"`
	CIPer1000   core.Interval   `json:"ci_95_per_1000"`
	Comparison  *RateComparison `json:"comparison,omitempty"`
}

// RateComparison is the primary arm against the comparison arm
type RateComparison struct {
	Events      int                          `json:"events"`
	PersonTime  float64                      `json:"person_time"`
	Rate        float64                      `json:"incidence_rate"`
	RatePer1000 float64                      `json:"ir_per_1000"`
	IRR         core.Optional[float64]       `json:"irr"`
	IRRCI       core.Optional[core.Interval] `json:"irr_ci_95"`
	PValue      core.Optional[float64]       `json:"p_value"`
	Significant core.Optional[bool]          `json:"significant"`
}

// IncidenceRate computes events per person-time with the exact Poisson
// interval, and the incidence rate ratio against a comparison arm.
func IncidenceRate(in IncidenceInput) (*IncidenceResult, error) {
	if err := in.Arm.validate("events"); err != nil {
		return nil, err
	}
	if in.Comparison != nil {
		if err := in.Comparison.validate("comparison_events"); err != nil {
			return nil, err
		}
	}

	rate := in.rate()
	ci := PoissonCI(in.Events, in.PersonTime)
	result := &IncidenceResult{
		Type:        "incidence_rate",
		Events:      in.Events,
		PersonTime:  in.PersonTime,
		TimeUnit:    orDefault(in.TimeUnit, DefaultTimeUnit),
		Rate:        rate,
		RatePer1000: rate * RateScale,
		CI:          ci,
		CIPer1000:   core.NewInterval(ci.Lower*RateScale, ci.Upper*RateScale),
	}
	if in.Comparison != nil {
		result.Comparison = compareRates(in.Arm, *in.Comparison)
	}
	return result, nil
}

// PoissonCI is the exact 95% interval for a Poisson rate, from the
// chi-square relation: [χ²(0.025, 2k)/2T, χ²(0.975, 2k+2)/2T].
func PoissonCI(events int, personTime float64) core.Interval {
	tail := (1 - dist.ConfidenceLevel) / 2
	lower := 0.0
	if events > 0 {
		lower = dist.ChiSquareQuantile(tail, float64(2*events)) / (2 * personTime)
	}
	upper := dist.ChiSquareQuantile(1-tail, float64(2*(events+1))) / (2 * personTime)
	return core.NewInterval(lower, upper)
}

func compareRates(primary, other Arm) *RateComparison {
	r1, r2 := primary.rate(), other.rate()
	cmp := &RateComparison{
		Events:      other.Events,
		PersonTime:  other.PersonTime,
		Rate:        r2,
		RatePer1000: r2 * RateScale,
	}
	if r2 == 0 {
		return cmp
	}

	irr := r1 / r2
	cmp.IRR = core.Some(irr)
	if primary.Events > 0 {
		se := math.Sqrt(1/float64(primary.Events) + 1/float64(other.Events))
		cmp.IRRCI = core.Some(core.Symmetric(math.Log(irr), dist.Z975*se).Exp())
	}

	expected := primary.PersonTime * r2
	z := (float64(primary.Events) - expected) / math.Sqrt(expected*(1+primary.PersonTime/other.PersonTime))
	p := dist.TwoSidedNormalP(z)
	cmp.PValue = core.Some(p)
	cmp.Significant = core.Some(core.IsSignificant(p))
	return cmp
}

func (a Arm) rate() float64 {
	return float64(a.Events) / a.PersonTime
}

func (a Arm) validate(field string) error {
	if a.Events < 0 {
		return errors.Validationf("%s must be non-negative", field)
	}
	if !(a.PersonTime > 0) || math.IsInf(a.PersonTime, 0) {
		return errors.ValidationError("person-time must be a positive finite number")
	}
	return nil
}
