package app

import (
	"encoding/json"

	"medstat/internal/analysis/biomarker"
	"medstat/internal/analysis/clinical"
	"medstat/internal/analysis/epi"
	"medstat/internal/analysis/meta"
	"medstat/internal/analysis/survival"
	"medstat/internal/errors"

	"github.com/tidwall/gjson"
)

// Options carries the configured numerical limits into request conversion
type Options struct {
	LogisticMaxIter   int
	LogisticTolerance float64
	ROCMaxPoints      int
}

// ROCRequest is the body of a biomarker ROC analysis
type ROCRequest struct {
	Marker            []float64 `json:"marker" validate:"required"`
	Outcome           []int     `json:"outcome" validate:"required,dive,binary"`
	MarkerName        string    `json:"marker_name"`
	Threshold         *float64  `json:"threshold"`
	PositiveDirection string    `json:"positive_direction" validate:"omitempty,oneof=high low"`
}

func (r ROCRequest) input(opts Options) (biomarker.ROCInput, error) {
	return biomarker.ROCInput{
		Marker:         r.Marker,
		Outcome:        r.Outcome,
		MarkerName:     r.MarkerName,
		Threshold:      r.Threshold,
		Direction:      biomarker.Direction(r.PositiveDirection),
		MaxCurvePoints: opts.ROCMaxPoints,
	}, nil
}

// TTestRequest is the body of a two-sample or paired t-test
type TTestRequest struct {
	Group1   []float64 `json:"group1" validate:"required"`
	Group2   []float64 `json:"group2" validate:"required"`
	Paired   bool      `json:"paired"`
	EqualVar bool      `json:"equal_var"`
}

func (r TTestRequest) input(Options) (clinical.TTestInput, error) {
	return clinical.TTestInput{Group1: r.Group1, Group2: r.Group2, Paired: r.Paired, EqualVar: r.EqualVar}, nil
}

// ANOVARequest is the body of a one-way ANOVA
type ANOVARequest struct {
	Groups     [][]float64 `json:"groups" validate:"required"`
	GroupNames []string    `json:"group_names"`
}

func (r ANOVARequest) input(Options) (clinical.ANOVAInput, error) {
	return clinical.ANOVAInput{Groups: r.Groups, GroupNames: r.GroupNames}, nil
}

// ChiSquareRequest is the body of a chi-square test of independence
type ChiSquareRequest struct {
	Observed        [][]int  `json:"observed" validate:"required"`
	RowNames        []string `json:"row_names"`
	ColNames        []string `json:"col_names"`
	YatesCorrection *bool    `json:"yates_correction"`
}

func (r ChiSquareRequest) input(Options) (clinical.ChiSquareInput, error) {
	yates := true
	if r.YatesCorrection != nil {
		yates = *r.YatesCorrection
	}
	return clinical.ChiSquareInput{Observed: r.Observed, RowNames: r.RowNames, ColNames: r.ColNames, Yates: yates}, nil
}

// SampleSizeRequest is the body of a sample size calculation. Omitted
// alpha, power and ratio take the conventional defaults.
type SampleSizeRequest struct {
	Test       string   `json:"test" validate:"omitempty,oneof=ttest_2samp proportion_2samp"`
	Alpha      *float64 `json:"alpha" validate:"omitempty,gt=0,lt=1"`
	Power      *float64 `json:"power" validate:"omitempty,gt=0,lt=1"`
	Ratio      *float64 `json:"ratio" validate:"omitempty,gt=0"`
	EffectSize *float64 `json:"effect_size"`
	Mean1      *float64 `json:"mean1"`
	Mean2      *float64 `json:"mean2"`
	SD         *float64 `json:"sd"`
	P1         *float64 `json:"p1"`
	P2         *float64 `json:"p2"`
}

func (r SampleSizeRequest) input(Options) (clinical.SampleSizeInput, error) {
	deref := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	return clinical.SampleSizeInput{
		Mode:       r.Test,
		Alpha:      deref(r.Alpha),
		Power:      deref(r.Power),
		Ratio:      deref(r.Ratio),
		EffectSize: r.EffectSize,
		Mean1:      r.Mean1,
		Mean2:      r.Mean2,
		SD:         r.SD,
		P1:         r.P1,
		P2:         r.P2,
	}, nil
}

// TwoByTwoRequest is the body of a 2×2 epidemiological table analysis
type TwoByTwoRequest struct {
	A            int    `json:"a" validate:"gte=0"`
	B            int    `json:"b" validate:"gte=0"`
	C            int    `json:"c" validate:"gte=0"`
	D            int    `json:"d" validate:"gte=0"`
	ExposureName string `json:"exposure_name"`
	OutcomeName  string `json:"outcome_name"`
}

func (r TwoByTwoRequest) input(Options) (epi.Table2x2Input, error) {
	return epi.Table2x2Input{
		Table:        epi.Table2x2{A: r.A, B: r.B, C: r.C, D: r.D},
		ExposureName: r.ExposureName,
		OutcomeName:  r.OutcomeName,
	}, nil
}

// LogisticRequest is the body of a logistic regression. Predictors is a
// JSON object of equal-length columns; its key order is kept as the term
// order. A column without a declared type is continuous when every value
// is a number and categorical otherwise.
type LogisticRequest struct {
	Outcome        []int             `json:"outcome" validate:"required,dive,binary"`
	Predictors     json.RawMessage   `json:"predictors" validate:"required"`
	PredictorTypes map[string]string `json:"predictor_types" validate:"omitempty,dive,oneof=continuous categorical"`
}

func (r LogisticRequest) input(opts Options) (epi.LogisticInput, error) {
	doc := gjson.ParseBytes(r.Predictors)
	if !doc.IsObject() {
		return epi.LogisticInput{}, errors.ValidationError("predictors must be an object of columns")
	}

	var (
		table epi.PredictorTable
		err   error
	)
	seen := make(map[string]bool)
	doc.ForEach(func(key, column gjson.Result) bool {
		var col epi.Column
		col, err = predictorColumn(key.String(), column, r.PredictorTypes[key.String()])
		if err != nil {
			return false
		}
		seen[col.Name] = true
		table.Columns = append(table.Columns, col)
		return true
	})
	if err != nil {
		return epi.LogisticInput{}, err
	}
	for name := range r.PredictorTypes {
		if !seen[name] {
			return epi.LogisticInput{}, errors.Validationf("predictor_types names unknown predictor %q", name)
		}
	}

	return epi.LogisticInput{
		Outcome:    r.Outcome,
		Predictors: table,
		MaxIter:    opts.LogisticMaxIter,
		Tolerance:  opts.LogisticTolerance,
	}, nil
}

func predictorColumn(name string, column gjson.Result, declared string) (epi.Column, error) {
	if !column.IsArray() {
		return epi.Column{}, errors.Validationf("predictor %q must be an array", name)
	}
	values := column.Array()

	kind := epi.ColumnKind(declared)
	if kind == "" {
		kind = epi.Continuous
		for _, v := range values {
			if v.Type != gjson.Number {
				kind = epi.Categorical
				break
			}
		}
	}

	switch kind {
	case epi.Continuous:
		nums := make([]float64, len(values))
		for i, v := range values {
			if v.Type != gjson.Number {
				return epi.Column{}, errors.Validationf("predictor %q is continuous but value %d is %s", name, i, v.Type)
			}
			nums[i] = v.Float()
		}
		return epi.ContinuousColumn(name, nums), nil
	default:
		levels := make([]string, len(values))
		for i, v := range values {
			if v.Type == gjson.Null {
				return epi.Column{}, errors.Validationf("predictor %q has a missing value at %d", name, i)
			}
			levels[i] = v.String()
		}
		return epi.CategoricalColumn(name, levels), nil
	}
}

// IncidenceRequest is the body of an incidence rate analysis. The
// comparison arm is used when both of its fields are present.
type IncidenceRequest struct {
	Events               int      `json:"events" validate:"gte=0"`
	PersonTime           float64  `json:"person_time" validate:"gt=0"`
	ComparisonEvents     *int     `json:"comparison_events" validate:"required_with=ComparisonPersonTime"`
	ComparisonPersonTime *float64 `json:"comparison_person_time" validate:"required_with=ComparisonEvents"`
	TimeUnit             string   `json:"time_unit"`
}

func (r IncidenceRequest) input(Options) (epi.IncidenceInput, error) {
	in := epi.IncidenceInput{
		Arm:      epi.Arm{Events: r.Events, PersonTime: r.PersonTime},
		TimeUnit: r.TimeUnit,
	}
	if r.ComparisonEvents != nil && r.ComparisonPersonTime != nil {
		in.Comparison = &epi.Arm{Events: *r.ComparisonEvents, PersonTime: *r.ComparisonPersonTime}
	}
	return in, nil
}

// Study kinds accepted in MetaRequest.Studies
const (
	StudyKindLogEffect   = "log_effect"
	StudyKindEffectCI    = "effect_ci"
	StudyKindEventCounts = "event_counts"
)

// MetaRequest is the body of a meta-analysis. Each study names its shape
// with "kind" or is recognised by its fields: yi/sei, effect/lower_ci/
// upper_ci, or events_1/n_1/events_2/n_2.
type MetaRequest struct {
	Studies []json.RawMessage `json:"studies" validate:"required"`
	Measure string            `json:"measure" validate:"omitempty,oneof=OR RR MD SMD"`
	Model   string            `json:"model" validate:"omitempty,oneof=fixed random"`
}

type studyFields struct {
	Name    string   `json:"-"`
	Yi      *float64 `json:"yi"`
	SEi     *float64 `json:"sei"`
	Effect  *float64 `json:"effect"`
	LowerCI *float64 `json:"lower_ci"`
	UpperCI *float64 `json:"upper_ci"`
	Events1 *int     `json:"events_1"`
	N1      *int     `json:"n_1"`
	Events2 *int     `json:"events_2"`
	N2      *int     `json:"n_2"`
}

func (r MetaRequest) input(Options) (meta.Input, error) {
	studies := make([]meta.StudyInput, len(r.Studies))
	for i, raw := range r.Studies {
		s, err := decodeStudy(raw)
		if err != nil {
			return meta.Input{}, errors.Wrapf(err, "study %d", i+1)
		}
		studies[i] = s
	}
	return meta.Input{Studies: studies, Measure: meta.Measure(r.Measure), Model: meta.Model(r.Model)}, nil
}

func decodeStudy(raw json.RawMessage) (meta.StudyInput, error) {
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, errors.ValidationError("study must be an object")
	}
	var f studyFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Validationf("invalid study: %v", err)
	}
	if name := doc.Get("name"); name.Exists() && name.Type != gjson.Null {
		f.Name = name.String()
	}

	kind := doc.Get("kind").String()
	if kind == "" {
		switch {
		case f.Yi != nil && f.SEi != nil:
			kind = StudyKindLogEffect
		case f.Effect != nil && f.LowerCI != nil && f.UpperCI != nil:
			kind = StudyKindEffectCI
		case f.Events1 != nil && f.N1 != nil && f.Events2 != nil && f.N2 != nil:
			kind = StudyKindEventCounts
		default:
			return nil, errors.ValidationError("study must provide yi/sei, effect/lower_ci/upper_ci, or events_1/n_1/events_2/n_2")
		}
	}

	switch kind {
	case StudyKindLogEffect:
		if f.Yi == nil || f.SEi == nil {
			return nil, errors.ValidationError("log_effect study needs yi and sei")
		}
		return meta.LogEffect{Name: f.Name, Yi: *f.Yi, SEi: *f.SEi}, nil
	case StudyKindEffectCI:
		if f.Effect == nil || f.LowerCI == nil || f.UpperCI == nil {
			return nil, errors.ValidationError("effect_ci study needs effect, lower_ci and upper_ci")
		}
		return meta.EffectCI{Name: f.Name, Effect: *f.Effect, Lower: *f.LowerCI, Upper: *f.UpperCI}, nil
	case StudyKindEventCounts:
		if f.Events1 == nil || f.N1 == nil || f.Events2 == nil || f.N2 == nil {
			return nil, errors.ValidationError("event_counts study needs events_1, n_1, events_2 and n_2")
		}
		return meta.EventCounts{Name: f.Name, Events1: *f.Events1, N1: *f.N1, Events2: *f.Events2, N2: *f.N2}, nil
	default:
		return nil, errors.Validationf("unknown study kind %q", kind)
	}
}

// SurvivalRequest is the body of a Kaplan–Meier analysis. Group labels may
// be strings or numbers.
type SurvivalRequest struct {
	Time   []float64       `json:"time" validate:"required"`
	Event  []int           `json:"event" validate:"required,dive,binary"`
	Groups json.RawMessage `json:"groups"`
}

func (r SurvivalRequest) input(Options) (survival.Input, error) {
	in := survival.Input{Time: r.Time, Event: r.Event}
	groups := gjson.ParseBytes(r.Groups)
	switch {
	case len(r.Groups) == 0 || groups.Type == gjson.Null:
	case groups.IsArray():
		for i, g := range groups.Array() {
			if g.Type == gjson.Null {
				return survival.Input{}, errors.Validationf("groups[%d] is missing", i)
			}
			in.Groups = append(in.Groups, g.String())
		}
	default:
		return survival.Input{}, errors.Validationf("groups must be an array, got %s", groups.Type)
	}
	return in, nil
}
