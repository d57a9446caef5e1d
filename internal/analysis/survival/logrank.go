package survival

import (
	"fmt"
	"sort"

	"medstat/domain/core"
	"medstat/internal/analysis/dist"
)

// minVariance is the log-rank variance below which the groups share no
// informative events
const minVariance = 1e-10

// GroupCounts is the observed and expected number of events in one group
type GroupCounts struct {
	Label    string  `json:"label"`
	Observed float64 `json:"observed"`
	Expected float64 `json:"expected"`
}

// LogRankResult is the two-group log-rank test
type LogRankResult struct {
	Chi2           float64        `json:"chi2"`
	PValue         float64        `json:"p_value"`
	Group1         string         `json:"group1"`
	Group2         string         `json:"group2"`
	Counts         [2]GroupCounts `json:"counts"`
	Significant    bool           `json:"significant"`
	Interpretation string         `json:"interpretation"`
}

// LogRank compares the survival of groups g1 and g2 in the input. At every
// distinct event time the deaths in g1 are compared with their
// hypergeometric expectation; χ² = (O−E)²/V on one degree of freedom.
// When V is negligible the test reports χ² = 0 and p = 1.
func LogRank(in Input, g1, g2 string) LogRankResult {
	var eventTimes []float64
	for i, t := range in.Time {
		if in.Event[i] == 1 && (in.Groups[i] == g1 || in.Groups[i] == g2) {
			eventTimes = append(eventTimes, t)
		}
	}
	eventTimes = uniqueFloats(eventTimes)

	var o1, e1, v, dTotal float64
	for _, et := range eventTimes {
		var n1, n2, d1, d2 float64
		for i, t := range in.Time {
			in1, in2 := in.Groups[i] == g1, in.Groups[i] == g2
			if !in1 && !in2 || t < et {
				continue
			}
			death := t == et && in.Event[i] == 1
			if in1 {
				n1++
				if death {
					d1++
				}
			} else {
				n2++
				if death {
					d2++
				}
			}
		}
		n, d := n1+n2, d1+d2
		if n == 0 {
			continue
		}
		o1 += d1
		e1 += n1 * d / n
		dTotal += d
		if n > 1 {
			v += n1 * n2 * d * (n - d) / (n * n * (n - 1))
		}
	}

	res := LogRankResult{
		Group1: g1,
		Group2: g2,
		Counts: [2]GroupCounts{
			{Label: g1, Observed: o1, Expected: e1},
			{Label: g2, Observed: dTotal - o1, Expected: dTotal - e1},
		},
	}
	if v < minVariance {
		res.PValue = 1
		res.Interpretation = InterpretP(1)
		return res
	}

	res.Chi2 = (o1 - e1) * (o1 - e1) / v
	res.PValue = dist.ChiSquarePValue(res.Chi2, 1)
	res.Significant = core.IsSignificant(res.PValue)
	res.Interpretation = InterpretP(res.PValue)
	return res
}

// InterpretP renders a p-value for display
func InterpretP(p float64) string {
	switch {
	case p < 0.001:
		return "p < 0.001 (highly significant)"
	case p < 0.05:
		return fmt.Sprintf("p = %.4f (significant)", p)
	default:
		return fmt.Sprintf("p = %.4f (not significant)", p)
	}
}

func uniqueFloats(values []float64) []float64 {
	if len(values) == 0 {
		return values
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	out := sorted[:1]
	for _, v := range sorted[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
