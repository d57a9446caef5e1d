// Package ingest turns raw uploaded or exported tables into the column
// description clients use to pick analysis inputs.
package ingest

import (
	"math"
	"strconv"
	"strings"

	"medstat/domain/dataset"

	"github.com/montanaflynn/stats"
)

// Defaults for the column-type heuristic and preview
const (
	DefaultCategoricalThreshold = 30
	DefaultPreviewRows          = 8
	SampleValueCount            = 5
)

// dtype names follow the usual dataframe vocabulary
const (
	DTypeInt    = "int64"
	DTypeFloat  = "float64"
	DTypeObject = "object"
)

var missingTokens = map[string]bool{
	"":        true,
	"NA":      true,
	"N/A":     true,
	"n/a":     true,
	"NaN":     true,
	"nan":     true,
	"-NaN":    true,
	"-nan":    true,
	"null":    true,
	"NULL":    true,
	"None":    true,
	"#N/A":    true,
	"#NA":     true,
	"<NA>":    true,
	"-1.#IND": true,
}

// IsMissing reports whether a raw cell counts as a missing value
func IsMissing(cell string) bool {
	return missingTokens[strings.TrimSpace(cell)]
}

// Describer summarises tables. A column whose non-missing values all parse
// as numbers is numeric; otherwise it is categorical when it has at most
// CategoricalThreshold distinct values, and text beyond that.
type Describer struct {
	CategoricalThreshold int
	PreviewRows          int
}

// NewDescriber returns a describer, substituting defaults for non-positive settings
func NewDescriber(categoricalThreshold, previewRows int) *Describer {
	if categoricalThreshold <= 0 {
		categoricalThreshold = DefaultCategoricalThreshold
	}
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}
	return &Describer{CategoricalThreshold: categoricalThreshold, PreviewRows: previewRows}
}

// Describe builds the column summaries plus preview and full data with
// missing cells blanked
func (d *Describer) Describe(table *dataset.Table) dataset.Summary {
	columns := make([]dataset.ColumnSummary, 0, len(table.Headers))
	for _, h := range table.Headers {
		columns = append(columns, d.describeColumn(h, table.Rows))
	}

	data := make([]dataset.Record, len(table.Rows))
	for i, row := range table.Rows {
		clean := make(dataset.Record, len(table.Headers))
		for _, h := range table.Headers {
			if v := row[h]; !IsMissing(v) {
				clean[h] = strings.TrimSpace(v)
			} else {
				clean[h] = ""
			}
		}
		data[i] = clean
	}

	preview := data
	if len(preview) > d.PreviewRows {
		preview = preview[:d.PreviewRows]
	}

	return dataset.Summary{
		NRows:   len(table.Rows),
		NCols:   len(table.Headers),
		Columns: columns,
		Preview: preview,
		Data:    data,
	}
}

func (d *Describer) describeColumn(name string, rows []dataset.Record) dataset.ColumnSummary {
	summary := dataset.ColumnSummary{Name: name, SampleValues: []string{}}

	unique := make(map[string]bool)
	var (
		values   []float64
		numeric  = true
		integral = true
	)
	for _, row := range rows {
		cell := strings.TrimSpace(row[name])
		if IsMissing(cell) {
			summary.NMissing++
			continue
		}
		unique[cell] = true
		if len(summary.SampleValues) < SampleValueCount {
			summary.SampleValues = append(summary.SampleValues, cell)
		}
		if !numeric {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
			numeric = false
			continue
		}
		if v != math.Trunc(v) || strings.ContainsAny(cell, ".eE") {
			integral = false
		}
		values = append(values, v)
	}
	summary.NUnique = len(unique)

	switch {
	case numeric:
		summary.ColType = dataset.ColumnNumeric
		summary.DType = DTypeFloat
		if integral && summary.NMissing == 0 && len(values) > 0 {
			summary.DType = DTypeInt
		}
		summary.Numeric = profile(values)
	case summary.NUnique <= d.CategoricalThreshold:
		summary.ColType = dataset.ColumnCategorical
		summary.DType = DTypeObject
	default:
		summary.ColType = dataset.ColumnText
		summary.DType = DTypeObject
	}
	return summary
}

func profile(values []float64) *dataset.NumericProfile {
	if len(values) == 0 {
		return nil
	}
	data := stats.Float64Data(values)
	p := &dataset.NumericProfile{}
	p.Min, _ = data.Min()
	p.Max, _ = data.Max()
	p.Mean, _ = data.Mean()
	p.Median, _ = data.Median()
	if len(values) > 1 {
		p.SD, _ = data.StandardDeviationSample()
	}
	return p
}
