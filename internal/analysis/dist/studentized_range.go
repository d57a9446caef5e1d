package dist

import (
	"math"

	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// Outer (scale) and inner (location) integrals are split into panels,
	// each integrated with a fixed Gauss-Legendre rule.
	rangeScalePanels    = 24
	rangeLocationPanels = 16
	rangeNodes          = 12

	// Beyond this many degrees of freedom the scale factor is treated as 1.
	rangeLargeDF = 25000

	rangeTailProb = 1e-12
	rangeZBound   = 8.5
)

// StudentizedRangeCDF computes P(Q <= q) for the studentized range of k
// means with df error degrees of freedom, by integrating the range
// distribution of k standard normals over the scaled chi distribution.
// ok is false when the arguments are outside the supported domain or the
// quadrature does not yield a probability; callers should then fall back
// to a Bonferroni-corrected pairwise t-test.
func StudentizedRangeCDF(q float64, k int, df float64) (p float64, ok bool) {
	if k < 2 || df < 1 || math.IsNaN(q) || math.IsNaN(df) {
		return math.NaN(), false
	}
	if q <= 0 {
		return 0, true
	}
	if math.IsInf(q, 1) {
		return 1, true
	}

	if df > rangeLargeDF || math.IsInf(df, 1) {
		p = normalRangeCDF(q, k)
	} else {
		p = scaledRangeCDF(q, k, df)
	}

	if math.IsNaN(p) || math.IsInf(p, 0) || p < -1e-6 || p > 1+1e-6 {
		return math.NaN(), false
	}
	return math.Max(0, math.Min(1, p)), true
}

// StudentizedRangeQuantile inverts StudentizedRangeCDF by bisection
func StudentizedRangeQuantile(p float64, k int, df float64) (q float64, ok bool) {
	if p <= 0 || p >= 1 || k < 2 || df < 1 {
		return math.NaN(), false
	}

	lo, hi := 0.0, 4.0
	for {
		cdf, ok := StudentizedRangeCDF(hi, k, df)
		if !ok {
			return math.NaN(), false
		}
		if cdf >= p {
			break
		}
		lo = hi
		hi *= 2
		if hi > 1e4 {
			return math.NaN(), false
		}
	}

	for i := 0; i < 60 && hi-lo > 1e-7; i++ {
		mid := (lo + hi) / 2
		cdf, ok := StudentizedRangeCDF(mid, k, df)
		if !ok {
			return math.NaN(), false
		}
		if cdf < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, true
}

// normalRangeCDF is P(range of k iid N(0,1) <= w):
// k ∫ φ(z) [Φ(z) - Φ(z-w)]^(k-1) dz
func normalRangeCDF(w float64, k int) float64 {
	if w <= 0 {
		return 0
	}
	km1 := float64(k - 1)
	integrand := func(z float64) float64 {
		inner := distuv.UnitNormal.CDF(z) - distuv.UnitNormal.CDF(z-w)
		if inner <= 0 {
			return 0
		}
		return distuv.UnitNormal.Prob(z) * math.Pow(inner, km1)
	}
	return float64(k) * panelIntegral(integrand, -rangeZBound, rangeZBound, rangeLocationPanels)
}

// scaledRangeCDF integrates normalRangeCDF(q·s) against the density of
// s = sqrt(χ²_df / df).
func scaledRangeCDF(q float64, k int, df float64) float64 {
	chi := distuv.ChiSquared{K: df}
	sLo := math.Sqrt(chi.Quantile(rangeTailProb) / df)
	sHi := math.Sqrt(chi.Quantile(1-rangeTailProb) / df)

	integrand := func(s float64) float64 {
		if s <= 0 {
			return 0
		}
		density := 2 * df * s * chi.Prob(df*s*s)
		if density == 0 {
			return 0
		}
		return density * normalRangeCDF(q*s, k)
	}
	return panelIntegral(integrand, sLo, sHi, rangeScalePanels)
}

func panelIntegral(f func(float64) float64, a, b float64, panels int) float64 {
	width := (b - a) / float64(panels)
	total := 0.0
	for i := 0; i < panels; i++ {
		lo := a + float64(i)*width
		total += quad.Fixed(f, lo, lo+width, rangeNodes, nil, 0)
	}
	return total
}
