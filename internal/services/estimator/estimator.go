// Package estimator aggregates a membership table into per-prototype
// confidence and label estimates.
package estimator

import (
	"LatentTrader/internal/domain/errs"
)

// ConfidenceScores returns the column means of an N×K table: the average
// affinity of all features to each prototype.
func ConfidenceScores(table [][]float64) []float64 {
	if len(table) == 0 {
		return nil
	}
	k := len(table[0])
	scores := make([]float64, k)
	for _, row := range table {
		for j := 0; j < k && j < len(row); j++ {
			scores[j] += row[j]
		}
	}
	n := float64(len(table))
	for j := range scores {
		scores[j] /= n
	}
	return scores
}

// CentroidLabels returns, per prototype, the membership-weighted mean of
// the feature labels.
func CentroidLabels(labels []float64, table [][]float64) ([]float64, error) {
	if err := checkRows(len(labels), table); err != nil {
		return nil, err
	}
	k := len(table[0])
	sums := make([]float64, k)
	weights := make([]float64, k)
	for i, row := range table {
		for j, w := range row {
			sums[j] += labels[i] * w
			weights[j] += w
		}
	}
	for j := range sums {
		if weights[j] == 0 {
			return nil, &errs.EmptyClusterError{Cluster: j}
		}
		sums[j] /= weights[j]
	}
	return sums, nil
}

// VolumeWeightedLabels folds volume in as an extra weight and min-max
// scales the result across prototypes.
func VolumeWeightedLabels(labels, volumes []float64, table [][]float64) ([]float64, error) {
	if len(volumes) != len(labels) {
		return nil, errs.Shapef("%d labels but %d volumes", len(labels), len(volumes))
	}
	if err := checkRows(len(labels), table); err != nil {
		return nil, err
	}
	k := len(table[0])
	sums := make([]float64, k)
	for i, row := range table {
		lv := labels[i] * volumes[i]
		for j, w := range row {
			sums[j] += lv * w
		}
	}
	return MinMaxScale(sums), nil
}

// MinMaxScale maps v onto [0,1]. A constant vector maps to zeros.
func MinMaxScale(v []float64) []float64 {
	out := make([]float64, len(v))
	if len(v) == 0 {
		return out
	}
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, x := range v {
		out[i] = (x - lo) / span
	}
	return out
}

// Score sums estimates[k] * density(feature, prototypes[k]).
func Score(feature []float64, prototypes [][]float64, estimates []float64, density func(f, c []float64) float64) (float64, error) {
	if len(prototypes) != len(estimates) {
		return 0, errs.Shapef("%d prototypes but %d estimates", len(prototypes), len(estimates))
	}
	s := 0.0
	for k, p := range prototypes {
		if len(p) != len(feature) {
			return 0, errs.Shapef("prototype %d has length %d, want %d", k, len(p), len(feature))
		}
		s += estimates[k] * density(feature, p)
	}
	return s, nil
}

func checkRows(n int, table [][]float64) error {
	if len(table) == 0 {
		return errs.Shapef("empty membership table")
	}
	if len(table) != n {
		return errs.Shapef("%d labels but %d table rows", n, len(table))
	}
	k := len(table[0])
	for i, row := range table {
		if len(row) != k {
			return errs.Shapef("table row %d has %d columns, want %d", i, len(row), k)
		}
	}
	return nil
}
