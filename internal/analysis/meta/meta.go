// Package meta pools study effects with inverse-variance fixed-effect and
// DerSimonian–Laird random-effects models.
package meta

import (
	"math"

	"medstat/domain/core"
	"medstat/internal/analysis/dist"
	"medstat/internal/errors"

	"gonum.org/v1/gonum/floats"
)

// MinStudies is the smallest number of studies that can be pooled
const MinStudies = 2

// Measure is the effect measure being pooled
type Measure string

const (
	OddsRatio            Measure = "OR"
	RiskRatio            Measure = "RR"
	MeanDifference       Measure = "MD"
	StandardizedMeanDiff Measure = "SMD"
)

// ratio reports whether the measure is pooled on the log scale
func (m Measure) ratio() bool {
	return m == OddsRatio || m == RiskRatio
}

func (m Measure) valid() bool {
	switch m {
	case OddsRatio, RiskRatio, MeanDifference, StandardizedMeanDiff:
		return true
	}
	return false
}

// Model selects which pooled estimate is the headline result
type Model string

const (
	Fixed  Model = "fixed"
	Random Model = "random"
)

// Input is a set of studies to pool
type Input struct {
	Studies []StudyInput
	Measure Measure
	Model   Model
}

// Heterogeneity summarises between-study variation
type Heterogeneity struct {
	Q              float64 `json:"Q"`
	DF             int     `json:"df"`
	QPValue        float64 `json:"Q_p"`
	I2             float64 `json:"I2"`
	Tau2           float64 `json:"tau2"`
	Interpretation string  `json:"interpretation"`
}

// PooledEstimate is a pooled effect on the analysis scale together with its
// natural-scale display values
type PooledEstimate struct {
	core.EffectEstimate
	Display   float64       `json:"display"`
	CIDisplay core.Interval `json:"ci_display"`
}

// ForestRow is one study line of a forest plot
type ForestRow struct {
	Name          string        `json:"name"`
	Yi            float64       `json:"yi"`
	SEi           float64       `json:"sei"`
	CI            core.Interval `json:"ci_95"`
	Weight        float64       `json:"weight"`
	EffectDisplay float64       `json:"effect_display"`
	CIDisplay     core.Interval `json:"ci_display"`
}

// FunnelData is the scatter behind a funnel plot
type FunnelData struct {
	Yi        []float64 `json:"yi"`
	SEi       []float64 `json:"sei"`
	Names     []string  `json:"names"`
	PooledEst float64   `json:"pooled_est"`
}

// Result is the outcome of a meta-analysis
type Result struct {
	Type          string         `json:"type"`
	Measure       Measure        `json:"measure"`
	Model         Model          `json:"model"`
	NStudies      int            `json:"n_studies"`
	Heterogeneity Heterogeneity  `json:"heterogeneity"`
	FixedEffects  PooledEstimate `json:"fixed_effects"`
	RandomEffects PooledEstimate `json:"random_effects"`
	Pooled        PooledEstimate `json:"pooled"`
	Forest        []ForestRow    `json:"forest_studies"`
	Funnel        FunnelData     `json:"funnel_data"`
	Label         string         `json:"label"`
	NullValue     float64        `json:"null_value"`
	NullDisplay   float64        `json:"null_display"`
}

// Analyze pools the studies. Both models are always estimated; Model only
// picks the headline estimate and the forest-plot weights.
func Analyze(in Input) (*Result, error) {
	if in.Measure == "" {
		in.Measure = OddsRatio
	}
	if in.Model == "" {
		in.Model = Random
	}
	if !in.Measure.valid() {
		return nil, errors.Validationf("unknown effect measure %q", in.Measure)
	}
	if in.Model != Fixed && in.Model != Random {
		return nil, errors.Validationf("unknown model %q", in.Model)
	}
	if len(in.Studies) < MinStudies {
		return nil, errors.Validationf("at least %d studies are required", MinStudies)
	}

	studies, err := normalizeAll(in.Studies, in.Measure)
	if err != nil {
		return nil, err
	}

	k := len(studies)
	yi := make([]float64, k)
	vi := make([]float64, k)
	for i, s := range studies {
		yi[i] = s.yi
		vi[i] = s.sei * s.sei
	}

	wFixed := inverse(vi, 0)
	fixed := pool(yi, wFixed)

	// Cochran's Q about the fixed-effect mean
	dev := make([]float64, k)
	for i := range dev {
		d := yi[i] - fixed.Estimate
		dev[i] = d * d
	}
	q := floats.Dot(wFixed, dev)
	df := k - 1

	i2 := 0.0
	if q > float64(df) {
		i2 = (q - float64(df)) / q * 100
	}
	sumW := floats.Sum(wFixed)
	c := sumW - floats.Dot(wFixed, wFixed)/sumW
	tau2 := 0.0
	if c > 0 {
		tau2 = math.Max(0, (q-float64(df))/c)
	}

	wRandom := inverse(vi, tau2)
	random := pool(yi, wRandom)

	m := in.Measure
	result := &Result{
		Type:     "meta",
		Measure:  m,
		Model:    in.Model,
		NStudies: k,
		Heterogeneity: Heterogeneity{
			Q:              q,
			DF:             df,
			QPValue:        dist.ChiSquarePValue(q, float64(df)),
			I2:             i2,
			Tau2:           tau2,
			Interpretation: InterpretI2(i2),
		},
		FixedEffects:  m.display(fixed),
		RandomEffects: m.display(random),
		Label:         m.label(),
		NullValue:     0,
		NullDisplay:   m.displayValue(0),
	}

	weights := wFixed
	result.Pooled = result.FixedEffects
	if in.Model == Random {
		weights = wRandom
		result.Pooled = result.RandomEffects
	}

	pct := make([]float64, k)
	floats.ScaleTo(pct, 100/floats.Sum(weights), weights)

	result.Forest = make([]ForestRow, k)
	result.Funnel = FunnelData{
		Yi:        yi,
		SEi:       make([]float64, k),
		Names:     make([]string, k),
		PooledEst: result.Pooled.Estimate,
	}
	for i, s := range studies {
		ci := core.Symmetric(s.yi, dist.Z975*s.sei)
		result.Forest[i] = ForestRow{
			Name:          s.name,
			Yi:            s.yi,
			SEi:           s.sei,
			CI:            ci,
			Weight:        pct[i],
			EffectDisplay: m.displayValue(s.yi),
			CIDisplay:     m.displayInterval(ci),
		}
		result.Funnel.SEi[i] = s.sei
		result.Funnel.Names[i] = s.name
	}
	return result, nil
}

// InterpretI2 labels the share of variation due to heterogeneity
func InterpretI2(i2 float64) string {
	switch {
	case i2 < 25:
		return "Low heterogeneity"
	case i2 < 50:
		return "Moderate heterogeneity"
	case i2 < 75:
		return "Substantial heterogeneity"
	default:
		return "Considerable heterogeneity"
	}
}

// inverse returns 1/(v + tau2) elementwise
func inverse(v []float64, tau2 float64) []float64 {
	w := make([]float64, len(v))
	copy(w, v)
	floats.AddConst(tau2, w)
	for i := range w {
		w[i] = 1 / w[i]
	}
	return w
}

// pool is the inverse-variance weighted mean with its Wald test
func pool(yi, w []float64) core.EffectEstimate {
	sumW := floats.Sum(w)
	est := floats.Dot(w, yi) / sumW
	se := math.Sqrt(1 / sumW)
	z := est / se
	return core.NewEffectEstimate(est, se, core.Symmetric(est, dist.Z975*se), z, dist.TwoSidedNormalP(z))
}

func (m Measure) display(e core.EffectEstimate) PooledEstimate {
	return PooledEstimate{
		EffectEstimate: e,
		Display:        m.displayValue(e.Estimate),
		CIDisplay:      m.displayInterval(e.CI),
	}
}

func (m Measure) displayValue(v float64) float64 {
	if m.ratio() {
		return math.Exp(v)
	}
	return v
}

func (m Measure) displayInterval(ci core.Interval) core.Interval {
	if m.ratio() {
		return ci.Exp()
	}
	return ci
}

func (m Measure) label() string {
	if m.ratio() {
		return "log(" + string(m) + ")"
	}
	return string(m)
}
