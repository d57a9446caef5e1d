package clinical

import (
	"fmt"
	"math"

	"medstat/domain/core"
	"medstat/internal/analysis/dist"
	"medstat/internal/errors"
)

// ChiSquareInput is an r×c table of observed counts
type ChiSquareInput struct {
	Observed [][]int
	RowNames []string
	ColNames []string
	// Yates applies the continuity correction; it only affects 2×2 tables.
	Yates bool
}

// ChiSquareResult is the Pearson test of independence on a contingency table
type ChiSquareResult struct {
	Type        string        `json:"type"`
	Observed    [][]int       `json:"observed"`
	Expected    [][]float64   `json:"expected"`
	RowNames    []string      `json:"row_names"`
	ColNames    []string      `json:"col_names"`
	Chi2        float64       `json:"chi2"`
	DF          int           `json:"df"`
	PValue      float64       `json:"p_value"`
	YatesUsed   bool          `json:"yates_correction"`
	CramersV    float64       `json:"cramers_v"`
	Fisher      *FisherResult `json:"fisher_exact"`
	Significant bool          `json:"significant"`
}

// ChiSquare tests independence of rows and columns. For 2×2 tables it
// also reports Fisher's exact test.
func ChiSquare(in ChiSquareInput) (*ChiSquareResult, error) {
	rows := len(in.Observed)
	if rows < 2 {
		return nil, errors.ValidationError("table must have at least 2 rows")
	}
	cols := len(in.Observed[0])
	if cols < 2 {
		return nil, errors.ValidationError("table must have at least 2 columns")
	}

	rowSums := make([]float64, rows)
	colSums := make([]float64, cols)
	total := 0.0
	for i, row := range in.Observed {
		if len(row) != cols {
			return nil, errors.Validationf("row %d has %d columns, expected %d", i, len(row), cols)
		}
		for j, v := range row {
			if v < 0 {
				return nil, errors.Validationf("count at [%d][%d] is negative", i, j)
			}
			rowSums[i] += float64(v)
			colSums[j] += float64(v)
			total += float64(v)
		}
	}
	for i, s := range rowSums {
		if s == 0 {
			return nil, errors.Validationf("row %d is empty; expected counts would be zero", i)
		}
	}
	for j, s := range colSums {
		if s == 0 {
			return nil, errors.Validationf("column %d is empty; expected counts would be zero", j)
		}
	}

	rowNames, err := labels(in.RowNames, rows, "Row", "row")
	if err != nil {
		return nil, err
	}
	colNames, err := labels(in.ColNames, cols, "Col", "column")
	if err != nil {
		return nil, err
	}

	is2x2 := rows == 2 && cols == 2
	yates := in.Yates && is2x2

	expected := make([][]float64, rows)
	chi2 := 0.0
	for i := range in.Observed {
		expected[i] = make([]float64, cols)
		for j, obs := range in.Observed[i] {
			e := rowSums[i] * colSums[j] / total
			expected[i][j] = e
			dev := math.Abs(float64(obs) - e)
			if yates {
				dev = math.Max(0, dev-0.5)
			}
			chi2 += dev * dev / e
		}
	}

	df := (rows - 1) * (cols - 1)
	p := dist.ChiSquarePValue(chi2, float64(df))

	result := &ChiSquareResult{
		Type:        "chi_square",
		Observed:    in.Observed,
		Expected:    expected,
		RowNames:    rowNames,
		ColNames:    colNames,
		Chi2:        chi2,
		DF:          df,
		PValue:      p,
		YatesUsed:   yates,
		CramersV:    math.Sqrt(chi2 / (total * float64(min(rows, cols)-1))),
		Significant: core.IsSignificant(p),
	}

	if is2x2 {
		o := in.Observed
		fisher, err := FisherExact(o[0][0], o[0][1], o[1][0], o[1][1])
		if err != nil {
			return nil, err
		}
		result.Fisher = &fisher
	}
	return result, nil
}

func labels(given []string, n int, prefix, what string) ([]string, error) {
	if len(given) == 0 {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("%s %d", prefix, i+1)
		}
		return out, nil
	}
	if len(given) != n {
		return nil, errors.Validationf("got %d %s names for %d %ss", len(given), what, n, what)
	}
	return given, nil
}
