package clinical

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"medstat/domain/core"
	"medstat/internal/analysis/dist"
	"medstat/internal/errors"
)

// Post-hoc methods reported on pairwise comparisons
const (
	PostHocTukey      = "tukey_hsd"
	PostHocBonferroni = "bonferroni_t"
)

// ANOVAInput holds k independent groups
type ANOVAInput struct {
	Groups     [][]float64
	GroupNames []string
}

// GroupStats describes one group
type GroupStats struct {
	Name string        `json:"name"`
	N    int           `json:"n"`
	Mean float64       `json:"mean"`
	SD   float64       `json:"sd"`
	SE   float64       `json:"se"`
	CI   core.Interval `json:"ci_95"`
}

// ANOVATable is the classic one-way decomposition
type ANOVATable struct {
	SSBetween float64 `json:"ss_between"`
	SSWithin  float64 `json:"ss_within"`
	DFBetween int     `json:"df_between"`
	DFWithin  int     `json:"df_within"`
	MSBetween float64 `json:"ms_between"`
	MSWithin  float64 `json:"ms_within"`
	F         float64 `json:"f_stat"`
	PValue    float64 `json:"p_value"`
}

// PairwiseComparison is one post-hoc contrast
type PairwiseComparison struct {
	Group1      string                       `json:"group1"`
	Group2      string                       `json:"group2"`
	MeanDiff    float64                      `json:"mean_diff"`
	Q           core.Optional[float64]       `json:"q_stat"`
	CI          core.Optional[core.Interval] `json:"ci_95"`
	PAdjusted   float64                      `json:"p_adjusted"`
	Significant bool                         `json:"significant"`
	Method      string                       `json:"method"`
}

// ANOVAResult is the outcome of a one-way ANOVA
type ANOVAResult struct {
	Type          string               `json:"type"`
	K             int                  `json:"k"`
	NTotal        int                  `json:"n_total"`
	GroupStats    []GroupStats         `json:"group_stats"`
	Table         ANOVATable           `json:"anova_table"`
	EtaSquared    float64              `json:"eta_squared"`
	Significant   bool                 `json:"significant"`
	PostHocMethod string               `json:"posthoc_method,omitempty"`
	PostHoc       []PairwiseComparison `json:"posthoc_tukey"`
}

type rangeCDF func(q float64, k int, df float64) (float64, bool)

// ANOVA runs a one-way analysis of variance. When the F test is significant
// and there are more than two groups, every pair is compared with Tukey's
// HSD; if the studentized range cannot be evaluated the comparisons fall
// back to Bonferroni-corrected pooled t-tests and say so in Method.
func ANOVA(in ANOVAInput) (*ANOVAResult, error) {
	return anovaWith(in, dist.StudentizedRangeCDF)
}

func anovaWith(in ANOVAInput, cdf rangeCDF) (*ANOVAResult, error) {
	k := len(in.Groups)
	if k < 2 {
		return nil, errors.ValidationError("at least 2 groups are required")
	}
	names := in.GroupNames
	if len(names) == 0 {
		names = make([]string, k)
		for i := range names {
			names[i] = fmt.Sprintf("Group %d", i+1)
		}
	} else if len(names) != k {
		return nil, errors.Validationf("got %d group names for %d groups", len(names), k)
	}

	means := make([]float64, k)
	total, nTotal := 0.0, 0
	for i, g := range in.Groups {
		if len(g) < MinGroupSize {
			return nil, errors.Validationf("group %q must have at least %d observations", names[i], MinGroupSize)
		}
		if err := requireFinite(g, names[i]); err != nil {
			return nil, err
		}
		for _, v := range g {
			total += v
		}
		nTotal += len(g)
	}
	grandMean := total / float64(nTotal)

	result := &ANOVAResult{
		Type:       "anova",
		K:          k,
		NTotal:     nTotal,
		GroupStats: make([]GroupStats, k),
		PostHoc:    []PairwiseComparison{},
	}

	ssBetween, ssWithin := 0.0, 0.0
	for i, g := range in.Groups {
		mean, variance := describe(g)
		means[i] = mean
		n := float64(len(g))
		ssBetween += n * (mean - grandMean) * (mean - grandMean)
		ssWithin += (n - 1) * variance

		sd := math.Sqrt(variance)
		se := sd / math.Sqrt(n)
		result.GroupStats[i] = GroupStats{
			Name: names[i],
			N:    len(g),
			Mean: mean,
			SD:   sd,
			SE:   se,
			CI:   core.Symmetric(mean, dist.TCritical(n-1)*se),
		}
	}

	dfBetween := k - 1
	dfWithin := nTotal - k
	msBetween := ssBetween / float64(dfBetween)
	msWithin := ssWithin / float64(dfWithin)
	if msWithin <= 0 {
		return nil, errors.Validationf("groups %s all have zero variance; the F statistic is undefined", quoteAll(names))
	}

	f := msBetween / msWithin
	p := dist.FTestPValue(f, float64(dfBetween), float64(dfWithin))

	result.Table = ANOVATable{
		SSBetween: ssBetween,
		SSWithin:  ssWithin,
		DFBetween: dfBetween,
		DFWithin:  dfWithin,
		MSBetween: msBetween,
		MSWithin:  msWithin,
		F:         f,
		PValue:    p,
	}
	if ssBetween+ssWithin > 0 {
		result.EtaSquared = ssBetween / (ssBetween + ssWithin)
	}
	result.Significant = core.IsSignificant(p)

	if result.Significant && k > 2 {
		result.PostHoc, result.PostHocMethod = tukeyHSD(in.Groups, names, means, msWithin, dfWithin, cdf)
	}
	return result, nil
}

// tukeyHSD compares every pair of groups using the Tukey–Kramer statistic
// q = |diff| / sqrt(MSW/2 · (1/ni + 1/nj)).
func tukeyHSD(groups [][]float64, names []string, means []float64, msWithin float64, dfWithin int, cdf rangeCDF) ([]PairwiseComparison, string) {
	k := len(groups)
	df := float64(dfWithin)

	comparisons := make([]PairwiseComparison, 0, k*(k-1)/2)
	qCrit, critOK := studentizedRangeCritical(k, df, cdf)
	method := PostHocTukey

	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			diff := means[i] - means[j]
			qSE := math.Sqrt(msWithin / 2 * (1/float64(len(groups[i])) + 1/float64(len(groups[j]))))
			q := 0.0
			if qSE > 0 {
				q = math.Abs(diff) / qSE
			}

			cmp := PairwiseComparison{
				Group1:   names[i],
				Group2:   names[j],
				MeanDiff: diff,
				Q:        core.Some(q),
			}

			if cdfValue, ok := cdf(q, k, df); ok {
				cmp.PAdjusted = math.Max(0, 1-cdfValue)
				cmp.Method = PostHocTukey
				if critOK {
					cmp.CI = core.Some(core.Symmetric(diff, qCrit*qSE))
				}
			} else {
				cmp.PAdjusted = bonferroniT(groups[i], groups[j], k)
				cmp.Method = PostHocBonferroni
				method = PostHocBonferroni
			}
			cmp.Significant = core.IsSignificant(cmp.PAdjusted)
			comparisons = append(comparisons, cmp)
		}
	}
	return comparisons, method
}

// studentizedRangeCritical inverts cdf at the 95% level by bisection
func studentizedRangeCritical(k int, df float64, cdf rangeCDF) (float64, bool) {
	target := dist.ConfidenceLevel
	lo, hi := 0.0, 4.0
	for {
		p, ok := cdf(hi, k, df)
		if !ok {
			return 0, false
		}
		if p >= target {
			break
		}
		lo, hi = hi, hi*2
		if hi > 1e4 {
			return 0, false
		}
	}
	for i := 0; i < 50 && hi-lo > 1e-6; i++ {
		mid := (lo + hi) / 2
		p, ok := cdf(mid, k, df)
		if !ok {
			return 0, false
		}
		if p < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, true
}

// bonferroniT is the pooled two-sample t-test p-value of one pair,
// multiplied by the number of pairs and capped at 1.
func bonferroniT(a, b []float64, k int) float64 {
	meanA, varA := describe(a)
	meanB, varB := describe(b)
	na, nb := float64(len(a)), float64(len(b))
	df := na + nb - 2
	pooled := ((na-1)*varA + (nb-1)*varB) / df
	se := math.Sqrt(pooled * (1/na + 1/nb))

	raw := 1.0
	if se > 0 {
		raw = dist.TTestPValue((meanA-meanB)/se, df)
	}
	return math.Min(1, raw*float64(k*(k-1))/2)
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = strconv.Quote(n)
	}
	return strings.Join(quoted, ", ")
}
