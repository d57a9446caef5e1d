// Package epi implements epidemiological measures: 2×2 exposure tables,
// logistic regression and incidence rates.
package epi

import (
	"math"

	"medstat/domain/core"
	"medstat/internal/analysis/clinical"
	"medstat/internal/analysis/dist"
	"medstat/internal/errors"
)

// nntEpsilon is the smallest |risk difference| for which NNT is reported
const nntEpsilon = 1e-10

// Table2x2 holds exposure × outcome counts
//
//	            Outcome+  Outcome-
//	Exposed        A         B
//	Unexposed      C         D
type Table2x2 struct {
	A int `json:"a"`
	B int `json:"b"`
	C int `json:"c"`
	D int `json:"d"`
}

// N is the table total
func (t Table2x2) N() int {
	return t.A + t.B + t.C + t.D
}

// Table2x2Input is a labelled 2×2 table
type Table2x2Input struct {
	Table        Table2x2
	ExposureName string
	OutcomeName  string
}

// Risks summarises outcome risk by exposure
type Risks struct {
	Exposed      float64       `json:"risk_exposed"`
	Unexposed    float64       `json:"risk_unexposed"`
	Difference   float64       `json:"risk_difference"`
	DifferenceSE float64       `json:"rd_se"`
	DifferenceCI core.Interval `json:"rd_ci_95"`
	DifferenceP  float64       `json:"rd_p_value"`
}

// Ratio is an odds or risk ratio with its log-scale CI
type Ratio struct {
	Value core.Optional[float64]       `json:"value"`
	CI    core.Optional[core.Interval] `json:"ci_95"`
}

// TableChiSquare is the Yates-corrected test on the table
type TableChiSquare struct {
	Value  float64 `json:"value"`
	DF     int     `json:"df"`
	PValue float64 `json:"p_value"`
}

// NNT is the number needed to treat (or harm)
type NNT struct {
	Value core.Optional[float64] `json:"value"`
	Type  string                 `json:"type"`
}

// TwoByTwoResult is the full set of 2×2 measures of association
type TwoByTwoResult struct {
	Type                    string                        `json:"type"`
	Table                   Table2x2                      `json:"table"`
	N                       int                           `json:"n"`
	ExposureName            string                        `json:"exposure_name"`
	OutcomeName             string                        `json:"outcome_name"`
	Risks                   Risks                         `json:"risks"`
	OddsRatio               Ratio                         `json:"odds_ratio"`
	RelativeRisk            Ratio                         `json:"relative_risk"`
	ChiSquare               core.Optional[TableChiSquare] `json:"chi_square"`
	FisherExactP            float64                       `json:"fisher_exact_p"`
	NNT                     NNT                           `json:"nnt"`
	AttributableRiskExposed core.Optional[float64]        `json:"attributable_risk_exposed"`
	Significant             bool                          `json:"significant"`
}

// TwoByTwo computes risks, risk difference, odds ratio (Woolf CI), relative
// risk (Katz CI), the Yates chi-square and Fisher exact tests, NNT/NNH and
// the attributable risk in the exposed. Ratios that would divide by a zero
// cell are reported as absent. An exposure row without subjects has risk 0
// and leaves the ratios, NNT, attributable risk and chi-square absent.
func TwoByTwo(in Table2x2Input) (*TwoByTwoResult, error) {
	t := in.Table
	if t.A < 0 || t.B < 0 || t.C < 0 || t.D < 0 {
		return nil, errors.ValidationError("cell counts must be non-negative")
	}
	if t.N() == 0 {
		return nil, errors.ValidationError("table must contain at least one observation")
	}

	a, b, c, d := float64(t.A), float64(t.B), float64(t.C), float64(t.D)
	exposedN, unexposedN := a+b, c+d
	// an empty exposure row has risk 0 and no between-group comparison
	bothRows := exposedN > 0 && unexposedN > 0

	result := &TwoByTwoResult{
		Type:         "two_by_two",
		Table:        t,
		N:            t.N(),
		ExposureName: orDefault(in.ExposureName, "Exposure"),
		OutcomeName:  orDefault(in.OutcomeName, "Outcome"),
	}

	p1, p0 := risk(a, exposedN), risk(c, unexposedN)
	rd := p1 - p0
	rdSE := 0.0
	if bothRows {
		rdSE = math.Sqrt(p1*(1-p1)/exposedN + p0*(1-p0)/unexposedN)
	}
	rdP := 1.0
	if rdSE > 0 {
		rdP = dist.TwoSidedNormalP(rd / rdSE)
	}
	result.Risks = Risks{
		Exposed:      p1,
		Unexposed:    p0,
		Difference:   rd,
		DifferenceSE: rdSE,
		DifferenceCI: core.Symmetric(rd, dist.Z975*rdSE),
		DifferenceP:  rdP,
	}

	result.OddsRatio = oddsRatio(a, b, c, d)
	result.RelativeRisk = relativeRisk(a, b, c, d)

	if bothRows && t.A+t.C > 0 && t.B+t.D > 0 {
		chi, err := clinical.ChiSquare(clinical.ChiSquareInput{
			Observed: [][]int{{t.A, t.B}, {t.C, t.D}},
			Yates:    true,
		})
		if err != nil {
			return nil, err
		}
		result.ChiSquare = core.Some(TableChiSquare{Value: chi.Chi2, DF: chi.DF, PValue: chi.PValue})
		result.Significant = chi.Significant
	}

	fisher, err := clinical.FisherExact(t.A, t.B, t.C, t.D)
	if err != nil {
		return nil, err
	}
	result.FisherExactP = fisher.PValue

	result.NNT = NNT{Type: "N/A"}
	if bothRows {
		result.NNT = numberNeeded(rd)
	}
	if bothRows && p1 > 0 {
		result.AttributableRiskExposed = core.Some((p1 - p0) / p1)
	}
	return result, nil
}

func risk(events, total float64) float64 {
	if total == 0 {
		return 0
	}
	return events / total
}

// oddsRatio is ad/bc with the Woolf interval; the interval needs every
// cell to be non-zero.
func oddsRatio(a, b, c, d float64) Ratio {
	var r Ratio
	if b == 0 || c == 0 {
		return r
	}
	or := a * d / (b * c)
	r.Value = core.Some(or)
	if a > 0 && d > 0 {
		se := math.Sqrt(1/a + 1/b + 1/c + 1/d)
		r.CI = core.Some(core.Symmetric(math.Log(or), dist.Z975*se).Exp())
	}
	return r
}

// relativeRisk is p1/p0 with the Katz interval
func relativeRisk(a, b, c, d float64) Ratio {
	var r Ratio
	if a == 0 || c == 0 {
		return r
	}
	p1, p0 := a/(a+b), c/(c+d)
	rr := p1 / p0
	se := math.Sqrt(b/(a*(a+b)) + d/(c*(c+d)))
	r.Value = core.Some(rr)
	r.CI = core.Some(core.Symmetric(math.Log(rr), dist.Z975*se).Exp())
	return r
}

func numberNeeded(rd float64) NNT {
	switch {
	case math.Abs(rd) <= nntEpsilon:
		return NNT{Type: "N/A"}
	case rd < 0:
		return NNT{Value: core.Some(1 / math.Abs(rd)), Type: "NNT (benefit)"}
	default:
		return NNT{Value: core.Some(1 / rd), Type: "NNH (harm)"}
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
