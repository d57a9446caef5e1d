// Package dist provides the probability distributions used by the analysis
// modules: standard normal, chi-square, Student's t, F and the studentized
// range. Every function is pure and returns finite values at the edges of
// its domain.
package dist

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ConfidenceLevel is the coverage of every interval built by the analysis modules
const ConfidenceLevel = 0.95

// Z975 is the two-sided 95% standard normal critical value (≈1.959964)
var Z975 = NormalQuantile(1 - (1-ConfidenceLevel)/2)

// Probabilities closer to 0 or 1 than this are clamped before inversion so
// quantiles stay finite.
const edgeEpsilon = 1e-300

// NormalCDF computes the cumulative distribution function of the standard normal
func NormalCDF(z float64) float64 {
	if math.IsNaN(z) {
		return math.NaN()
	}
	return distuv.UnitNormal.CDF(z)
}

// NormalSurvival computes the upper tail 1 - Φ(z) without cancellation
func NormalSurvival(z float64) float64 {
	return distuv.UnitNormal.Survival(z)
}

// NormalQuantile computes the inverse CDF of the standard normal
func NormalQuantile(p float64) float64 {
	return distuv.UnitNormal.Quantile(clampProbability(p))
}

// TwoSidedNormalP computes the two-sided p-value of a Wald z statistic
func TwoSidedNormalP(z float64) float64 {
	if math.IsNaN(z) {
		return 1.0
	}
	return math.Min(1.0, 2*NormalSurvival(math.Abs(z)))
}

// ChiSquareCDF computes the cumulative distribution function of chi-square(df)
func ChiSquareCDF(x, df float64) float64 {
	if df <= 0 || x <= 0 {
		return 0
	}
	return distuv.ChiSquared{K: df}.CDF(x)
}

// ChiSquarePValue computes the upper-tail p-value of a chi-square statistic
func ChiSquarePValue(x, df float64) float64 {
	if df <= 0 || x <= 0 || math.IsNaN(x) {
		return 1.0
	}
	return distuv.ChiSquared{K: df}.Survival(x)
}

// ChiSquareQuantile computes the inverse CDF of chi-square(df)
func ChiSquareQuantile(p, df float64) float64 {
	if df <= 0 || p <= 0 {
		return 0
	}
	return distuv.ChiSquared{K: df}.Quantile(clampProbability(p))
}

// TCDF computes the cumulative distribution function of Student's t
func TCDF(t, df float64) float64 {
	if df <= 0 {
		return NormalCDF(t)
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.CDF(t)
}

// TQuantile computes the inverse CDF of Student's t
func TQuantile(p, df float64) float64 {
	if df <= 0 || math.IsInf(df, 1) {
		return NormalQuantile(p)
	}
	return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Quantile(clampProbability(p))
}

// TCritical returns the two-sided 95% critical value t(0.975, df)
func TCritical(df float64) float64 {
	return TQuantile(1-(1-ConfidenceLevel)/2, df)
}

// TTestPValue computes the two-sided p-value for a t statistic
func TTestPValue(t, df float64) float64 {
	if df <= 0 || math.IsNaN(t) {
		return 1.0
	}
	return math.Min(1.0, 2*distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(math.Abs(t)))
}

// FTestPValue computes the upper-tail p-value 1 - F_cdf(f; df1, df2) (ANOVA, regression)
func FTestPValue(f, df1, df2 float64) float64 {
	if df1 <= 0 || df2 <= 0 || f <= 0 || math.IsNaN(f) {
		return 1.0
	}
	return distuv.F{D1: df1, D2: df2}.Survival(f)
}

func clampProbability(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0.5
	case p < edgeEpsilon:
		return edgeEpsilon
	case p > 1-1e-16:
		return 1 - 1e-16
	}
	return p
}
