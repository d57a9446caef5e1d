package epi

import (
	"fmt"
	"math"
	"sort"

	"medstat/internal/errors"
)

// ColumnKind says how a predictor enters the model. The caller decides;
// nothing here infers a kind from the data.
type ColumnKind string

const (
	Continuous  ColumnKind = "continuous"
	Categorical ColumnKind = "categorical"
)

// Column is one predictor. Continuous columns carry Values, categorical
// columns carry Levels.
type Column struct {
	Name   string
	Kind   ColumnKind
	Values []float64
	Levels []string
}

// ContinuousColumn builds a numeric predictor
func ContinuousColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: Continuous, Values: values}
}

// CategoricalColumn builds a factor predictor
func CategoricalColumn(name string, levels []string) Column {
	return Column{Name: name, Kind: Categorical, Levels: levels}
}

// Len returns the number of observations in the column
func (c Column) Len() int {
	if c.Kind == Categorical {
		return len(c.Levels)
	}
	return len(c.Values)
}

// PredictorTable is an ordered set of equally long predictor columns
type PredictorTable struct {
	Columns []Column
}

// designMatrix expands the table into model columns: an intercept, each
// continuous column as is, and each categorical column as indicators for
// every level but the first in sorted order.
type designMatrix struct {
	names []string
	rows  [][]float64
}

func (t PredictorTable) validate(n int) error {
	if len(t.Columns) == 0 {
		return errors.ValidationError("at least one predictor is required")
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, col := range t.Columns {
		if col.Name == "" {
			return errors.ValidationError("predictor names must not be empty")
		}
		if seen[col.Name] {
			return errors.Validationf("duplicate predictor %q", col.Name)
		}
		seen[col.Name] = true

		switch col.Kind {
		case Continuous:
			for i, v := range col.Values {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					return errors.Validationf("predictor %q has a non-finite value at row %d", col.Name, i)
				}
			}
		case Categorical:
		default:
			return errors.Validationf("predictor %q has unknown kind %q", col.Name, col.Kind)
		}
		if col.Len() != n {
			return errors.Validationf("predictor %q has %d values, outcome has %d", col.Name, col.Len(), n)
		}
	}
	return nil
}

func (t PredictorTable) design(n int) designMatrix {
	dm := designMatrix{names: []string{"Intercept"}, rows: make([][]float64, n)}
	for i := range dm.rows {
		dm.rows[i] = []float64{1}
	}

	for _, col := range t.Columns {
		switch col.Kind {
		case Continuous:
			dm.names = append(dm.names, col.Name)
			for i, v := range col.Values {
				dm.rows[i] = append(dm.rows[i], v)
			}
		case Categorical:
			levels := sortedLevels(col.Levels)
			if len(levels) < 2 {
				continue
			}
			index := make(map[string]int, len(levels))
			for j, lvl := range levels[1:] {
				index[lvl] = j
				dm.names = append(dm.names, fmt.Sprintf("%s[T.%s]", col.Name, lvl))
			}
			for i, lvl := range col.Levels {
				dummies := make([]float64, len(levels)-1)
				if j, ok := index[lvl]; ok {
					dummies[j] = 1
				}
				dm.rows[i] = append(dm.rows[i], dummies...)
			}
		}
	}
	return dm
}

func sortedLevels(values []string) []string {
	set := make(map[string]struct{})
	for _, v := range values {
		set[v] = struct{}{}
	}
	levels := make([]string, 0, len(set))
	for v := range set {
		levels = append(levels, v)
	}
	sort.Strings(levels)
	return levels
}
