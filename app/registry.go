package app

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"medstat/internal/analysis/biomarker"
	"medstat/internal/analysis/clinical"
	"medstat/internal/analysis/epi"
	"medstat/internal/analysis/meta"
	"medstat/internal/analysis/survival"
	"medstat/internal/errors"

	"github.com/go-playground/validator/v10"
)

// Analysis names, used by the batch endpoint, the CLI and the run ledger
const (
	AnalysisROC        = "roc"
	AnalysisTTest      = "ttest"
	AnalysisANOVA      = "anova"
	AnalysisChiSquare  = "chi_square"
	AnalysisSampleSize = "sample_size"
	AnalysisTwoByTwo   = "two_by_two"
	AnalysisLogistic   = "logistic"
	AnalysisIncidence  = "incidence_rate"
	AnalysisMeta       = "meta"
	AnalysisSurvival   = "survival"
)

// Definition describes one registered analysis
type Definition struct {
	Name    string `json:"name"`
	Route   string `json:"route"`
	Summary string `json:"summary"`
	// Cost weighs the analysis against batch capacity
	Cost int64 `json:"cost"`

	run func(raw []byte, v *validator.Validate, opts Options) (interface{}, error)
}

// Registry maps analysis names to their request decoding and computation
type Registry struct {
	defs     map[string]Definition
	validate *validator.Validate
	opts     Options
}

// request is satisfied by every request DTO
type request[I any] interface {
	input(Options) (I, error)
}

// bind decodes, validates and converts a request, then runs the analysis
func bind[R request[I], I any, O any](compute func(I) (O, error)) func([]byte, *validator.Validate, Options) (interface{}, error) {
	return func(raw []byte, v *validator.Validate, opts Options) (interface{}, error) {
		var req R
		if err := decodeJSON(raw, &req); err != nil {
			return nil, err
		}
		if err := v.Struct(req); err != nil {
			return nil, validationError(err)
		}
		in, err := req.input(opts)
		if err != nil {
			return nil, err
		}
		out, err := compute(in)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

func decodeJSON(raw []byte, dst interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errors.ValidationError("request body is required")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Validationf("invalid request body: %v", err)
	}
	return nil
}

// NewRegistry registers every analysis
func NewRegistry(opts Options) *Registry {
	r := &Registry{defs: make(map[string]Definition), validate: NewValidator(), opts: opts}

	r.register(Definition{Name: AnalysisROC, Route: "/api/biomarker/roc", Cost: 2,
		Summary: "ROC curve, AUC and optimal threshold for a diagnostic marker",
		run:     bind[ROCRequest](biomarker.ROC)})
	r.register(Definition{Name: AnalysisTTest, Route: "/api/clinical/ttest", Cost: 1,
		Summary: "Paired, Welch or pooled two-sample t-test with Cohen's d",
		run:     bind[TTestRequest](clinical.TTest)})
	r.register(Definition{Name: AnalysisANOVA, Route: "/api/clinical/anova", Cost: 2,
		Summary: "One-way ANOVA with Tukey HSD post-hoc comparisons",
		run:     bind[ANOVARequest](clinical.ANOVA)})
	r.register(Definition{Name: AnalysisChiSquare, Route: "/api/clinical/chi_square", Cost: 1,
		Summary: "Chi-square test of independence, Cramér's V and Fisher exact for 2x2",
		run:     bind[ChiSquareRequest](clinical.ChiSquare)})
	r.register(Definition{Name: AnalysisSampleSize, Route: "/api/clinical/sample_size", Cost: 1,
		Summary: "Per-arm sample size for two means or two proportions",
		run:     bind[SampleSizeRequest](clinical.SampleSize)})
	r.register(Definition{Name: AnalysisTwoByTwo, Route: "/api/epi/two_by_two", Cost: 1,
		Summary: "Risks, odds ratio, relative risk and NNT from a 2x2 table",
		run:     bind[TwoByTwoRequest](epi.TwoByTwo)})
	r.register(Definition{Name: AnalysisLogistic, Route: "/api/epi/logistic", Cost: 3,
		Summary: "Multivariable logistic regression with odds ratios",
		run:     bind[LogisticRequest](epi.Logistic)})
	r.register(Definition{Name: AnalysisIncidence, Route: "/api/epi/incidence_rate", Cost: 1,
		Summary: "Incidence rate with exact Poisson CI and rate ratio",
		run:     bind[IncidenceRequest](epi.IncidenceRate)})
	r.register(Definition{Name: AnalysisMeta, Route: "/api/meta/analyze", Cost: 1,
		Summary: "Fixed and random effects meta-analysis with heterogeneity",
		run:     bind[MetaRequest](meta.Analyze)})
	r.register(Definition{Name: AnalysisSurvival, Route: "/api/survival/analyze", Cost: 2,
		Summary: "Kaplan-Meier curves with log-rank comparison",
		run:     bind[SurvivalRequest](survival.KaplanMeier)})

	return r
}

func (r *Registry) register(d Definition) {
	r.defs[d.Name] = d
}

// Lookup finds a definition by name
func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.defs[strings.TrimSpace(name)]
	return d, ok
}

// Definitions lists every analysis sorted by name
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Cost returns the batch weight of an analysis, 1 when unknown
func (r *Registry) Cost(name string) int64 {
	if d, ok := r.Lookup(name); ok && d.Cost > 0 {
		return d.Cost
	}
	return 1
}

// Run decodes raw as the named analysis request and computes the result
func (r *Registry) Run(name string, raw []byte) (interface{}, error) {
	d, ok := r.Lookup(name)
	if !ok {
		return nil, errors.NotFound("analysis " + name)
	}
	return d.run(raw, r.validate, r.opts)
}
