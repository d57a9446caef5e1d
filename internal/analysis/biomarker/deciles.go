package biomarker

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	decilePoints = 10
	decileLow    = 10.0
	decileHigh   = 90.0
)

// decileTable evaluates the test at evenly spaced percentiles of the marker
// (10th to 90th) for clinical interpretability.
func decileTable(marker []float64, outcome []int, scores []float64, direction Direction) []ThresholdPerformance {
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	percentiles := floats.Span(make([]float64, decilePoints), decileLow, decileHigh)

	rows := make([]ThresholdPerformance, 0, decilePoints)
	for _, pct := range percentiles {
		cut := percentile(sorted, pct/100)
		rows = append(rows, Performance(marker, outcome, fromEvalScale(cut, direction), direction))
	}
	return rows
}

// percentile interpolates linearly between order statistics at rank
// (n-1)·p, Hyndman and Fan type 7. sorted must be ascending and non-empty.
func percentile(sorted []float64, p float64) float64 {
	h := float64(len(sorted)-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}
