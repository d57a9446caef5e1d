// Package survival implements the Kaplan–Meier estimator with log-log
// confidence bands and the two-group log-rank test.
package survival

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"medstat/domain/core"
	"medstat/internal/analysis/dist"
	"medstat/internal/errors"

	"gonum.org/v1/gonum/floats"
)

// OverallLabel names the curve of an ungrouped analysis
const OverallLabel = "Overall"

// Input holds one observation per subject. Groups is optional; when set it
// must have the same length as Time.
type Input struct {
	Time   []float64
	Event  []int
	Groups []string
}

// Curve is a Kaplan–Meier step function. Times, Survival and the CI bounds
// start with the (0, 1) step; AtRisk and Events align with the event
// times that follow it.
type Curve struct {
	Label          string                 `json:"label"`
	N              int                    `json:"n"`
	Times          []float64              `json:"times"`
	Survival       []float64              `json:"survival"`
	LowerCI        []float64              `json:"lower_ci"`
	UpperCI        []float64              `json:"upper_ci"`
	AtRisk         []int                  `json:"n_at_risk"`
	Events         []int                  `json:"n_events"`
	MedianSurvival core.Optional[float64] `json:"median_survival"`
	TotalEvents    int                    `json:"n_total_events"`
}

// Result carries one curve per group, sorted by label, and the log-rank
// test when there are exactly two groups
type Result struct {
	Type    string         `json:"type"`
	Curves  []Curve        `json:"curves"`
	LogRank *LogRankResult `json:"logrank"`
}

// KaplanMeier estimates survival per group, or overall when no groups are
// given
func KaplanMeier(in Input) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	result := &Result{Type: "survival"}
	if in.Groups == nil {
		result.Curves = []Curve{estimate(OverallLabel, in.Time, in.Event)}
		return result, nil
	}

	labels := uniqueSorted(in.Groups)
	for _, label := range labels {
		t, e := subset(in, label)
		result.Curves = append(result.Curves, estimate(label, t, e))
	}
	if len(labels) == 2 {
		lr := LogRank(in, labels[0], labels[1])
		result.LogRank = &lr
	}
	return result, nil
}

func (in Input) validate() error {
	n := len(in.Time)
	if n == 0 {
		return errors.ValidationError("at least one observation is required")
	}
	if len(in.Event) != n {
		return errors.Validationf("time has %d values, event has %d", n, len(in.Event))
	}
	if in.Groups != nil && len(in.Groups) != n {
		return errors.Validationf("time has %d values, groups has %d", n, len(in.Groups))
	}
	for i, t := range in.Time {
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			return errors.Validationf("time[%d] must be a non-negative finite number", i)
		}
		if e := in.Event[i]; e != 0 && e != 1 {
			return errors.Validationf("event[%d] must be 0 or 1, got %d", i, e)
		}
	}
	return nil
}

// estimate computes the product-limit curve of one sample
func estimate(label string, time []float64, event []int) Curve {
	t := make([]float64, len(time))
	copy(t, time)
	order := make([]int, len(t))
	floats.Argsort(t, order)
	e := make([]int, len(order))
	for i, idx := range order {
		e[i] = event[idx]
	}

	curve := Curve{
		Label:    label,
		N:        len(t),
		Times:    []float64{0},
		Survival: []float64{1},
		LowerCI:  []float64{1},
		UpperCI:  []float64{1},
		AtRisk:   []int{},
		Events:   []int{},
	}

	s, greenwood := 1.0, 0.0
	for i := 0; i < len(t); {
		// group tied times; the at-risk set is everyone from i onwards
		j, deaths := i, 0
		for j < len(t) && t[j] == t[i] {
			deaths += e[j]
			j++
		}
		atRisk := len(t) - i
		if deaths > 0 {
			s *= float64(atRisk-deaths) / float64(atRisk)
			if atRisk > deaths {
				greenwood += float64(deaths) / float64(atRisk*(atRisk-deaths))
			}
			lo, hi := logLogCI(s, greenwood)

			curve.Times = append(curve.Times, t[i])
			curve.Survival = append(curve.Survival, clamp01(s))
			curve.LowerCI = append(curve.LowerCI, clamp01(lo))
			curve.UpperCI = append(curve.UpperCI, clamp01(hi))
			curve.AtRisk = append(curve.AtRisk, atRisk)
			curve.Events = append(curve.Events, deaths)
			curve.TotalEvents += deaths
		}
		i = j
	}

	for i, sv := range curve.Survival {
		if sv <= 0.5 {
			curve.MedianSurvival = core.Some(curve.Times[i])
			break
		}
	}
	return curve
}

// logLogCI is the Kalbfleisch–Prentice interval; it collapses to the point
// estimate at the 0 and 1 boundaries
func logLogCI(s, greenwood float64) (lo, hi float64) {
	if s <= 0 || s >= 1 || greenwood <= 0 {
		return s, s
	}
	c := math.Exp(dist.Z975 * math.Sqrt(greenwood) / math.Abs(math.Log(s)))
	return math.Pow(s, c), math.Pow(s, 1/c)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// uniqueSorted returns the distinct labels, in numeric order when every
// label is a number and in string order otherwise
func uniqueSorted(values []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	nums := make(map[string]float64, len(out))
	for _, v := range out {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			sort.Strings(out)
			return out
		}
		nums[v] = f
	}
	sort.Slice(out, func(i, j int) bool {
		if nums[out[i]] != nums[out[j]] {
			return nums[out[i]] < nums[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

func subset(in Input, label string) ([]float64, []int) {
	var t []float64
	var e []int
	for i, g := range in.Groups {
		if g == label {
			t = append(t, in.Time[i])
			e = append(e, in.Event[i])
		}
	}
	return t, e
}
