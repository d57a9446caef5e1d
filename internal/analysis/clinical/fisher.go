package clinical

import (
	"math"

	"medstat/domain/core"
	"medstat/internal/errors"
)

// fisherRelTol absorbs rounding when comparing table probabilities
// against the observed one.
const fisherRelTol = 1e-7

// FisherResult is Fisher's exact test on a 2×2 table
type FisherResult struct {
	OddsRatio core.Optional[float64] `json:"odds_ratio"`
	PValue    float64                `json:"p_value"`
}

// FisherExact runs the two-sided Fisher exact test on the table
//
//	| a b |
//	| c d |
//
// The p-value sums the hypergeometric probabilities of every table with the
// observed margins that is no more likely than the observed table. The
// sample odds ratio ad/bc is absent when b·c is zero.
func FisherExact(a, b, c, d int) (FisherResult, error) {
	if a < 0 || b < 0 || c < 0 || d < 0 {
		return FisherResult{}, errors.ValidationError("cell counts must be non-negative")
	}
	n := a + b + c + d
	if n == 0 {
		return FisherResult{}, errors.ValidationError("table must contain at least one observation")
	}

	row1, row2, col1 := a+b, c+d, a+c
	lo := max(0, col1-row2)
	hi := min(row1, col1)

	logDenom := logChoose(n, col1)
	prob := func(x int) float64 {
		return math.Exp(logChoose(row1, x) + logChoose(row2, col1-x) - logDenom)
	}

	observed := prob(a)
	p := 0.0
	for x := lo; x <= hi; x++ {
		if px := prob(x); px <= observed*(1+fisherRelTol) {
			p += px
		}
	}

	res := FisherResult{PValue: math.Min(1, p)}
	if b*c != 0 {
		res.OddsRatio = core.Some(float64(a) * float64(d) / (float64(b) * float64(c)))
	}
	return res, nil
}

func logChoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	return lgamma(n+1) - lgamma(k+1) - lgamma(n-k+1)
}

func lgamma(x int) float64 {
	v, _ := math.Lgamma(float64(x))
	return v
}
