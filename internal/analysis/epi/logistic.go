package epi

import (
	"fmt"
	"math"

	"medstat/domain/core"
	"medstat/internal/analysis/dist"
	"medstat/internal/errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	// MinLogisticObservations is the smallest sample the fit accepts
	MinLogisticObservations = 10
	// DefaultMaxIterations caps the Newton iterations
	DefaultMaxIterations = 200
	// DefaultTolerance is the convergence threshold on the largest step
	DefaultTolerance = 1e-8

	maxConditionNumber = 1e12
	perfectPrediction  = 1e-8

	// divergentCoef bounds a coefficient per standard deviation of its
	// predictor; beyond it a saturated fit is treated as separated
	divergentCoef = 25
)

// Failure kinds carried by a degraded logistic result
const (
	FailureConstantOutcome = "constant_outcome"
	FailureSeparation      = "perfect_separation"
	FailureSingular        = "singular_information"
	FailureNotConverged    = "not_converged"
)

// LogisticInput is a binary outcome with its predictor table
type LogisticInput struct {
	Outcome    []int
	Predictors PredictorTable
	MaxIter    int
	Tolerance  float64
}

// Coefficient is one fitted model term
type Coefficient struct {
	Variable    string                       `json:"variable"`
	Coef        float64                      `json:"coef"`
	SE          float64                      `json:"se"`
	Z           float64                      `json:"z"`
	PValue      float64                      `json:"p_value"`
	CI          core.Interval                `json:"ci_95"`
	OddsRatio   core.Optional[float64]       `json:"odds_ratio"`
	OddsRatioCI core.Optional[core.Interval] `json:"or_ci_95"`
	Significant bool                         `json:"significant"`
}

// LogisticFit holds the estimates of a converged model
type LogisticFit struct {
	Converged         bool          `json:"converged"`
	Iterations        int           `json:"iterations"`
	LogLikelihood     float64       `json:"log_likelihood"`
	NullLogLikelihood float64       `json:"null_log_likelihood"`
	AIC               float64       `json:"aic"`
	BIC               float64       `json:"bic"`
	McFaddenR2        float64       `json:"mcfadden_r2"`
	Coefficients      []Coefficient `json:"coefficients"`
}

// FitFailure describes why a model could not be estimated
type FitFailure struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// LogisticResult is either a fitted model or a degraded result carrying the
// sample size and a failure. Exactly one of LogisticFit and Failure is set.
type LogisticResult struct {
	Type    string `json:"type"`
	N       int    `json:"n"`
	NEvents int    `json:"n_events"`
	*LogisticFit
	Failure *FitFailure `json:"failure,omitempty"`
}

// Failed reports whether the fit was degraded
func (r *LogisticResult) Failed() bool {
	return r.Failure != nil
}

// Logistic fits a logistic regression by iteratively reweighted least
// squares. Malformed input is a validation error; a model that cannot be
// estimated (constant outcome, separation, singular information, no
// convergence within MaxIter) is returned as a degraded result, not an
// error.
func Logistic(in LogisticInput) (*LogisticResult, error) {
	n := len(in.Outcome)
	if n < MinLogisticObservations {
		return nil, errors.Validationf("logistic regression needs at least %d observations, got %d", MinLogisticObservations, n)
	}
	y := make([]float64, n)
	events := 0
	for i, v := range in.Outcome {
		if v != 0 && v != 1 {
			return nil, errors.Validationf("outcome[%d] must be 0 or 1, got %d", i, v)
		}
		y[i] = float64(v)
		events += v
	}
	if err := in.Predictors.validate(n); err != nil {
		return nil, err
	}

	maxIter := in.MaxIter
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	tol := in.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}

	result := &LogisticResult{Type: "logistic_regression", N: n, NEvents: events}
	if events == 0 || events == n {
		result.Failure = &FitFailure{
			Kind:   FailureConstantOutcome,
			Reason: "outcome has a single class; the likelihood has no maximum",
		}
		return result, nil
	}

	dm := in.Predictors.design(n)
	fit, failure := irls(dm, y, maxIter, tol)
	if failure != nil {
		result.Failure = failure
		return result, nil
	}
	result.LogisticFit = fit
	return result, nil
}

func irls(dm designMatrix, y []float64, maxIter int, tol float64) (*LogisticFit, *FitFailure) {
	n, p := len(dm.rows), len(dm.names)
	x, sc, failure := standardize(dm)
	if failure != nil {
		return nil, failure
	}
	yv := mat.NewVecDense(n, y)

	// gamma is the coefficient vector on the standardized design
	gamma := mat.NewVecDense(p, nil)
	mu := mat.NewVecDense(n, nil)
	resid := mat.NewVecDense(n, nil)
	score := mat.NewVecDense(p, nil)
	var step mat.VecDense

	converged := false
	iter := 0
	for iter < maxIter {
		iter++
		fitted(x, gamma, mu)
		if predictsPerfectly(mu, yv) {
			return nil, separation()
		}

		chol, failure := information(x, mu)
		if failure != nil {
			if saturated(mu, yv) {
				return nil, separation()
			}
			return nil, failure
		}
		resid.SubVec(yv, mu)
		score.MulVec(x.T(), resid)
		if err := chol.SolveVecTo(&step, score); err != nil {
			return nil, singular(err.Error())
		}
		gamma.AddVec(gamma, &step)

		if hasNaN(gamma) {
			return nil, separation()
		}
		if mat.Norm(gamma, math.Inf(1)) > divergentCoef {
			fitted(x, gamma, mu)
			if saturated(mu, yv) {
				return nil, separation()
			}
		}
		if mat.Norm(&step, math.Inf(1)) < tol {
			converged = true
			break
		}
	}
	if !converged {
		return nil, &FitFailure{
			Kind:   FailureNotConverged,
			Reason: fmt.Sprintf("maximum likelihood did not converge within %d iterations", maxIter),
		}
	}

	fitted(x, gamma, mu)
	chol, failure := information(x, mu)
	if failure != nil {
		return nil, failure
	}
	var covStd mat.SymDense
	if err := chol.InverseTo(&covStd); err != nil {
		return nil, singular(err.Error())
	}
	beta, cov := sc.original(gamma, &covStd)

	ll := logLikelihood(mu, y)
	ll0 := nullLogLikelihood(y)
	k := float64(p)
	fit := &LogisticFit{
		Converged:         true,
		Iterations:        iter,
		LogLikelihood:     ll,
		NullLogLikelihood: ll0,
		AIC:               -2*ll + 2*k,
		BIC:               -2*ll + k*math.Log(float64(n)),
		Coefficients:      make([]Coefficient, p),
	}
	if ll0 != 0 {
		fit.McFaddenR2 = 1 - ll/ll0
	}

	for j, name := range dm.names {
		coef := beta.AtVec(j)
		se := math.Sqrt(cov.At(j, j))
		z := coef / se
		pValue := dist.TwoSidedNormalP(z)
		ci := core.Symmetric(coef, dist.Z975*se)
		c := Coefficient{
			Variable:    name,
			Coef:        coef,
			SE:          se,
			Z:           z,
			PValue:      pValue,
			CI:          ci,
			Significant: core.IsSignificant(pValue),
		}
		if j > 0 {
			c.OddsRatio = core.Some(math.Exp(coef))
			c.OddsRatioCI = core.Some(ci.Exp())
		}
		fit.Coefficients[j] = c
	}
	return fit, nil
}

// scaling records the centre and spread of each non-intercept design
// column. Column 0 is the intercept and is left as is.
type scaling struct {
	center []float64
	scale  []float64
}

// standardize centres and scales every non-intercept column, so the Newton
// iterations, the separation check and the conditioning check do not
// depend on the units of the predictors
func standardize(dm designMatrix) (*mat.Dense, scaling, *FitFailure) {
	n, p := len(dm.rows), len(dm.names)
	sc := scaling{center: make([]float64, p), scale: make([]float64, p)}
	sc.scale[0] = 1

	x := mat.NewDense(n, p, nil)
	col := make([]float64, n)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
	}
	for j := 1; j < p; j++ {
		for i, row := range dm.rows {
			col[i] = row[j]
		}
		mean, sd := stat.MeanStdDev(col, nil)
		if !(sd > 0) || math.IsInf(sd, 0) {
			return nil, sc, singular(fmt.Sprintf("predictor %s is constant", dm.names[j]))
		}
		sc.center[j], sc.scale[j] = mean, sd
		for i, v := range col {
			x.Set(i, j, (v-mean)/sd)
		}
	}
	return x, sc, nil
}

// original maps standardized coefficients and their covariance back to the
// predictors' own units: beta = T·gamma and cov = T·covStd·Tᵀ
func (sc scaling) original(gamma *mat.VecDense, covStd *mat.SymDense) (*mat.VecDense, *mat.Dense) {
	p := gamma.Len()
	t := mat.NewDense(p, p, nil)
	t.Set(0, 0, 1)
	for j := 1; j < p; j++ {
		t.Set(0, j, -sc.center[j]/sc.scale[j])
		t.Set(j, j, 1/sc.scale[j])
	}

	beta := mat.NewVecDense(p, nil)
	beta.MulVec(t, gamma)

	var cov mat.Dense
	cov.Product(t, covStd, t.T())
	return beta, &cov
}

// fitted sets mu to the logistic transform of x·beta
func fitted(x *mat.Dense, beta, mu *mat.VecDense) {
	mu.MulVec(x, beta)
	for i := 0; i < mu.Len(); i++ {
		mu.SetVec(i, 1/(1+math.Exp(-mu.AtVec(i))))
	}
}

// information factorises the Fisher information XᵀWX, W = diag(mu(1-mu))
func information(x *mat.Dense, mu *mat.VecDense) (*mat.Cholesky, *FitFailure) {
	n, p := x.Dims()
	info := mat.NewSymDense(p, nil)
	for i := 0; i < n; i++ {
		m := mu.AtVec(i)
		w := m * (1 - m)
		for a := 0; a < p; a++ {
			xa := x.At(i, a) * w
			for b := a; b < p; b++ {
				info.SetSym(a, b, info.At(a, b)+xa*x.At(i, b))
			}
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(info); !ok {
		return nil, singular("information matrix is not positive definite")
	}
	if cond := chol.Cond(); cond > maxConditionNumber || math.IsInf(cond, 0) || math.IsNaN(cond) {
		return nil, singular(fmt.Sprintf("information matrix is ill-conditioned (condition number %.3g)", cond))
	}
	return &chol, nil
}

// saturated reports whether some observation is fitted with certainty at
// its observed outcome, the footprint of quasi-complete separation
func saturated(mu, y *mat.VecDense) bool {
	for i := 0; i < y.Len(); i++ {
		if math.Abs(mu.AtVec(i)-y.AtVec(i)) < perfectPrediction {
			return true
		}
	}
	return false
}

func predictsPerfectly(mu, y *mat.VecDense) bool {
	for i := 0; i < y.Len(); i++ {
		if math.Abs(mu.AtVec(i)-y.AtVec(i)) > perfectPrediction {
			return false
		}
	}
	return true
}

func logLikelihood(mu *mat.VecDense, y []float64) float64 {
	ll := 0.0
	for i, yi := range y {
		m := math.Min(math.Max(mu.AtVec(i), 1e-300), 1-1e-16)
		ll += yi*math.Log(m) + (1-yi)*math.Log(1-m)
	}
	return ll
}

// nullLogLikelihood is the log-likelihood of the intercept-only model
func nullLogLikelihood(y []float64) float64 {
	pBar := stat.Mean(y, nil)
	n := float64(len(y))
	return n * (pBar*math.Log(pBar) + (1-pBar)*math.Log(1-pBar))
}

func hasNaN(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if math.IsNaN(v.AtVec(i)) {
			return true
		}
	}
	return false
}

func separation() *FitFailure {
	return &FitFailure{
		Kind:   FailureSeparation,
		Reason: "predictors separate the outcome perfectly; maximum likelihood estimates do not exist",
	}
}

func singular(reason string) *FitFailure {
	return &FitFailure{Kind: FailureSingular, Reason: reason}
}
