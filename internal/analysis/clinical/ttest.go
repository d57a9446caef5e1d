// Package clinical implements the clinical-trial comparison tests: two-sample
// t-tests, one-way ANOVA with Tukey HSD, chi-square and Fisher's exact tests
// on contingency tables, and sample-size calculation.
package clinical

import (
	"math"

	"medstat/domain/core"
	"medstat/internal/analysis/dist"
	"medstat/internal/errors"

	"github.com/montanaflynn/stats"
)

// MinGroupSize is the smallest group a t-test or ANOVA accepts
const MinGroupSize = 2

// TTestInput holds two samples to compare
type TTestInput struct {
	Group1   []float64
	Group2   []float64
	Paired   bool
	EqualVar bool
}

// TTestResult is the outcome of a two-sample or paired t-test
type TTestResult struct {
	Type            string              `json:"type"`
	Method          string              `json:"method"`
	Paired          bool                `json:"paired"`
	EqualVar        bool                `json:"equal_var"`
	N1              int                 `json:"n1"`
	N2              int                 `json:"n2"`
	Mean1           float64             `json:"mean1"`
	Mean2           float64             `json:"mean2"`
	SD1             float64             `json:"sd1"`
	SD2             float64             `json:"sd2"`
	MeanDiff        core.EffectEstimate `json:"mean_diff"`
	DF              float64             `json:"df"`
	CohensD         float64             `json:"cohens_d"`
	EffectSizeLabel string              `json:"effect_size_label"`
}

// TTest compares the means of two samples. Paired mode runs a one-sample
// test on the differences; independent mode uses the Welch–Satterthwaite
// correction unless EqualVar is set.
func TTest(in TTestInput) (*TTestResult, error) {
	if len(in.Group1) < MinGroupSize || len(in.Group2) < MinGroupSize {
		return nil, errors.Validationf("each group must have at least %d observations", MinGroupSize)
	}
	if err := requireFinite(in.Group1, "group1"); err != nil {
		return nil, err
	}
	if err := requireFinite(in.Group2, "group2"); err != nil {
		return nil, err
	}

	mean1, var1 := describe(in.Group1)
	mean2, var2 := describe(in.Group2)

	result := &TTestResult{
		Type:     "ttest",
		Paired:   in.Paired,
		EqualVar: in.EqualVar,
		N1:       len(in.Group1),
		N2:       len(in.Group2),
		Mean1:    mean1,
		Mean2:    mean2,
		SD1:      math.Sqrt(var1),
		SD2:      math.Sqrt(var2),
	}

	var diff, se, df float64
	if in.Paired {
		if len(in.Group1) != len(in.Group2) {
			return nil, errors.ValidationError("paired t-test requires equal group sizes")
		}
		diffs := make([]float64, len(in.Group1))
		for i := range diffs {
			diffs[i] = in.Group1[i] - in.Group2[i]
		}
		meanDiff, varDiff := describe(diffs)
		sdDiff := math.Sqrt(varDiff)
		n := float64(len(diffs))

		diff = meanDiff
		se = sdDiff / math.Sqrt(n)
		df = n - 1
		result.Method = "paired"
		if sdDiff > 0 {
			result.CohensD = meanDiff / sdDiff
		}
	} else {
		n1, n2 := float64(result.N1), float64(result.N2)
		pooledVar := ((n1-1)*var1 + (n2-1)*var2) / (n1 + n2 - 2)

		diff = mean1 - mean2
		if in.EqualVar {
			se = math.Sqrt(pooledVar * (1/n1 + 1/n2))
			df = n1 + n2 - 2
			result.Method = "student"
		} else {
			a, b := var1/n1, var2/n2
			se = math.Sqrt(a + b)
			df = WelchDF(var1, n1, var2, n2)
			result.Method = "welch"
		}
		// Cohen's d always uses the pooled SD, whichever test was run
		if pooledSD := math.Sqrt(pooledVar); pooledSD > 0 {
			result.CohensD = diff / pooledSD
		}
	}

	if se == 0 || math.IsNaN(se) {
		if in.Paired {
			return nil, errors.ValidationError("differences group1 - group2 have zero variance; the t statistic is undefined")
		}
		return nil, errors.ValidationError("group1 and group2 both have zero variance; the t statistic is undefined")
	}

	t := diff / se
	ci := core.Symmetric(diff, dist.TCritical(df)*se)
	result.MeanDiff = core.NewEffectEstimate(diff, se, ci, t, dist.TTestPValue(t, df))
	result.DF = df
	result.EffectSizeLabel = InterpretCohensD(math.Abs(result.CohensD))
	return result, nil
}

// WelchDF is the Welch–Satterthwaite approximation to the degrees of freedom
// of an unpooled two-sample t statistic, given sample variances.
func WelchDF(var1, n1, var2, n2 float64) float64 {
	a, b := var1/n1, var2/n2
	den := a*a/(n1-1) + b*b/(n2-1)
	if den == 0 {
		return n1 + n2 - 2
	}
	return (a + b) * (a + b) / den
}

// InterpretCohensD labels an absolute standardized mean difference
func InterpretCohensD(d float64) string {
	switch {
	case d < 0.2:
		return "negligible"
	case d < 0.5:
		return "small"
	case d < 0.8:
		return "medium"
	default:
		return "large"
	}
}

// describe returns the mean and sample (n-1) variance
func describe(sample []float64) (mean, variance float64) {
	mean, _ = stats.Mean(sample)
	if len(sample) < 2 {
		return mean, 0
	}
	variance, _ = stats.SampleVariance(sample)
	return mean, variance
}

func requireFinite(sample []float64, field string) error {
	for i, v := range sample {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Validationf("%s[%d] is not a finite number", field, i)
		}
	}
	return nil
}
