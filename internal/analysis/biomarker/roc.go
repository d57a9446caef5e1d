// Package biomarker evaluates a continuous marker as a diagnostic test for a
// binary outcome: ROC curve, AUC with Hanley–McNeil standard error, the
// Youden-optimal threshold and confusion-matrix panels.
package biomarker

import (
	"math"
	"sort"

	"medstat/domain/core"
	"medstat/internal/analysis/dist"
	"medstat/internal/errors"

	"gonum.org/v1/gonum/integrate"
)

// Direction selects which tail of the marker counts as a positive test
type Direction string

const (
	DirectionHigh Direction = "high"
	DirectionLow  Direction = "low"
)

const (
	// MinObservations is the smallest sample ROC analysis accepts
	MinObservations = 5
	// DefaultMaxCurvePoints bounds the curve returned to callers
	DefaultMaxCurvePoints = 300
)

// ROCInput holds paired marker values and 0/1 outcomes
type ROCInput struct {
	Marker     []float64
	Outcome    []int
	MarkerName string
	// Threshold, when set, gets its own performance panel
	Threshold      *float64
	Direction      Direction
	MaxCurvePoints int
}

// Curve is the (downsampled) ROC curve
type Curve struct {
	FPR []float64 `json:"fpr"`
	TPR []float64 `json:"tpr"`
}

// ThresholdPerformance is the confusion-matrix panel at one threshold
type ThresholdPerformance struct {
	Threshold   float64               `json:"threshold"`
	TP          int                   `json:"tp"`
	FP          int                   `json:"fp"`
	TN          int                   `json:"tn"`
	FN          int                   `json:"fn"`
	Sensitivity float64               `json:"sensitivity"`
	Specificity float64               `json:"specificity"`
	PPV         float64               `json:"ppv"`
	NPV         float64               `json:"npv"`
	Accuracy    float64               `json:"accuracy"`
	PositiveLR  core.Optional[float64] `json:"positive_lr"`
	NegativeLR  core.Optional[float64] `json:"negative_lr"`
}

// OptimalThreshold is the Youden-optimal operating point
type OptimalThreshold struct {
	Value       float64 `json:"value"`
	YoudenIndex float64 `json:"youden_index"`
	ThresholdPerformance
}

// ROCResult is the full biomarker analysis
type ROCResult struct {
	Type              string                `json:"type"`
	MarkerName        string                `json:"marker_name"`
	Direction         Direction             `json:"direction"`
	N                 int                   `json:"n"`
	NPositive         int                   `json:"n_positive"`
	NNegative         int                   `json:"n_negative"`
	Prevalence        float64               `json:"prevalence"`
	AUC               core.EffectEstimate   `json:"auc"`
	AUCInterpretation string                `json:"auc_interpretation"`
	Curve             Curve                 `json:"roc_curve"`
	CurvePoints       int                   `json:"curve_points_full"`
	Optimal           OptimalThreshold      `json:"optimal_threshold"`
	Selected          *ThresholdPerformance `json:"selected_threshold"`
	SensSpecTable     []ThresholdPerformance `json:"sens_spec_table"`
}

// rocPoints is the full-resolution curve; thresholds[0] is the +Inf sentinel
type rocPoints struct {
	fpr, tpr, thresholds []float64
}

// ROC runs the biomarker analysis
func ROC(in ROCInput) (*ROCResult, error) {
	if err := validateROCInput(in); err != nil {
		return nil, err
	}

	direction := in.Direction
	if direction == "" {
		direction = DirectionHigh
	}
	maxPoints := in.MaxCurvePoints
	if maxPoints <= 0 {
		maxPoints = DefaultMaxCurvePoints
	}
	name := in.MarkerName
	if name == "" {
		name = "Marker"
	}

	// Evaluate with "higher = positive" uniformly
	scores := make([]float64, len(in.Marker))
	for i, v := range in.Marker {
		if direction == DirectionLow {
			scores[i] = -v
		} else {
			scores[i] = v
		}
	}

	nPos, nNeg := countClasses(in.Outcome)
	curve := buildCurve(scores, in.Outcome, nPos, nNeg)

	auc := integrate.Trapezoidal(curve.fpr, curve.tpr)
	auc = math.Max(0, math.Min(1, auc))
	aucEstimate := aucEffect(auc, nPos, nNeg)

	best := youdenIndex(curve)
	optEval := curve.thresholds[best]
	optValue := fromEvalScale(optEval, direction)

	result := &ROCResult{
		Type:              "roc",
		MarkerName:        name,
		Direction:         direction,
		N:                 len(in.Outcome),
		NPositive:         nPos,
		NNegative:         nNeg,
		Prevalence:        float64(nPos) / float64(len(in.Outcome)),
		AUC:               aucEstimate,
		AUCInterpretation: InterpretAUC(auc),
		CurvePoints:       len(curve.fpr),
		Optimal: OptimalThreshold{
			Value:                optValue,
			YoudenIndex:          curve.tpr[best] - curve.fpr[best],
			ThresholdPerformance: Performance(in.Marker, in.Outcome, optValue, direction),
		},
		SensSpecTable: decileTable(in.Marker, in.Outcome, scores, direction),
	}

	if in.Threshold != nil {
		perf := Performance(in.Marker, in.Outcome, *in.Threshold, direction)
		result.Selected = &perf
	}

	// Downsampling happens after AUC and CI are fixed
	result.Curve = downsample(curve, maxPoints)
	return result, nil
}

func validateROCInput(in ROCInput) error {
	if len(in.Marker) != len(in.Outcome) {
		return errors.Validationf("marker and outcome must have the same length (%d vs %d)", len(in.Marker), len(in.Outcome))
	}
	if len(in.Marker) < MinObservations {
		return errors.Validationf("at least %d observations are required", MinObservations)
	}
	switch in.Direction {
	case "", DirectionHigh, DirectionLow:
	default:
		return errors.Validationf("unsupported direction %q (use high or low)", in.Direction)
	}
	for i, v := range in.Marker {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Validationf("marker value %d is not finite", i)
		}
	}
	for _, y := range in.Outcome {
		if y != 0 && y != 1 {
			return errors.ValidationError("outcome must be binary (0/1)")
		}
	}
	nPos, nNeg := countClasses(in.Outcome)
	if nPos == 0 || nNeg == 0 {
		return errors.ValidationError("outcome must have both positive and negative cases")
	}
	if in.Threshold != nil && (math.IsNaN(*in.Threshold) || math.IsInf(*in.Threshold, 0)) {
		return errors.ValidationError("threshold must be finite")
	}
	return nil
}

func countClasses(outcome []int) (nPos, nNeg int) {
	for _, y := range outcome {
		if y == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	return nPos, nNeg
}

// buildCurve walks every distinct score from the highest down, emitting one
// (FPR, TPR) point after all observations tied at that score are consumed.
func buildCurve(scores []float64, outcome []int, nPos, nNeg int) rocPoints {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	curve := rocPoints{
		fpr:        []float64{0},
		tpr:        []float64{0},
		thresholds: []float64{math.Inf(1)},
	}

	tp, fp := 0, 0
	for i, idx := range order {
		if outcome[idx] == 1 {
			tp++
		} else {
			fp++
		}
		if i+1 < len(order) && scores[order[i+1]] == scores[idx] {
			continue
		}
		curve.fpr = append(curve.fpr, float64(fp)/float64(nNeg))
		curve.tpr = append(curve.tpr, float64(tp)/float64(nPos))
		curve.thresholds = append(curve.thresholds, scores[idx])
	}
	return curve
}

// youdenIndex returns the first point maximising TPR - FPR, skipping the
// +Inf sentinel so the chosen threshold is always an observed marker value.
func youdenIndex(curve rocPoints) int {
	best := 1
	bestJ := curve.tpr[1] - curve.fpr[1]
	for i := 2; i < len(curve.fpr); i++ {
		if j := curve.tpr[i] - curve.fpr[i]; j > bestJ {
			best, bestJ = i, j
		}
	}
	return best
}

// aucEffect applies the Hanley–McNeil (1982) standard error and a Wald test
// against AUC = 0.5.
func aucEffect(auc float64, nPos, nNeg int) core.EffectEstimate {
	se := HanleyMcNeilSE(auc, nPos, nNeg)
	z := 0.0
	if se > 0 {
		z = (auc - 0.5) / se
	}
	ci := core.Symmetric(auc, dist.Z975*se).Clip(0, 1)
	return core.NewEffectEstimate(auc, se, ci, z, dist.TwoSidedNormalP(z))
}

// HanleyMcNeilSE is the closed-form standard error of an AUC estimate
func HanleyMcNeilSE(auc float64, nPos, nNeg int) float64 {
	if nPos == 0 || nNeg == 0 {
		return 0
	}
	q1 := auc / (2 - auc)
	q2 := 2 * auc * auc / (1 + auc)
	n1, n0 := float64(nPos), float64(nNeg)
	variance := (auc*(1-auc) + (n1-1)*(q1-auc*auc) + (n0-1)*(q2-auc*auc)) / (n1 * n0)
	return math.Sqrt(math.Max(variance, 0))
}

// Performance computes the confusion-matrix panel for one threshold on the
// original marker scale.
func Performance(marker []float64, outcome []int, threshold float64, direction Direction) ThresholdPerformance {
	perf := ThresholdPerformance{Threshold: threshold}
	for i, m := range marker {
		positive := m >= threshold
		if direction == DirectionLow {
			positive = m <= threshold
		}
		switch {
		case positive && outcome[i] == 1:
			perf.TP++
		case positive:
			perf.FP++
		case outcome[i] == 0:
			perf.TN++
		default:
			perf.FN++
		}
	}

	perf.Sensitivity = ratio(perf.TP, perf.TP+perf.FN)
	perf.Specificity = ratio(perf.TN, perf.TN+perf.FP)
	perf.PPV = ratio(perf.TP, perf.TP+perf.FP)
	perf.NPV = ratio(perf.TN, perf.TN+perf.FN)
	perf.Accuracy = ratio(perf.TP+perf.TN, len(marker))

	if perf.Specificity < 1 {
		perf.PositiveLR = core.Some(perf.Sensitivity / (1 - perf.Specificity))
	}
	if perf.Specificity > 0 {
		perf.NegativeLR = core.Some((1 - perf.Sensitivity) / perf.Specificity)
	}
	return perf
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func fromEvalScale(v float64, direction Direction) float64 {
	if direction == DirectionLow {
		return -v
	}
	return v
}

func downsample(curve rocPoints, maxPoints int) Curve {
	n := len(curve.fpr)
	points := n
	if points > maxPoints {
		points = maxPoints
	}

	out := Curve{FPR: make([]float64, points), TPR: make([]float64, points)}
	for i := 0; i < points; i++ {
		idx := 0
		if points > 1 {
			idx = int(math.RoundToEven(float64(i) * float64(n-1) / float64(points-1)))
		}
		out.FPR[i] = curve.fpr[idx]
		out.TPR[i] = curve.tpr[idx]
	}
	return out
}

// InterpretAUC maps an AUC onto the conventional qualitative buckets
func InterpretAUC(auc float64) string {
	switch {
	case auc >= 0.90:
		return "Excellent (AUC ≥ 0.90)"
	case auc >= 0.80:
		return "Good (AUC 0.80–0.89)"
	case auc >= 0.70:
		return "Fair (AUC 0.70–0.79)"
	case auc >= 0.60:
		return "Poor (AUC 0.60–0.69)"
	default:
		return "Fail (AUC < 0.60)"
	}
}
