// Package latentsource implements the similarity-weighted estimator that
// maps a live price window onto an expected price change.
package latentsource

import (
	"errors"
	"fmt"
	"math"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/services/features"
)

// Similarity is dot(a, b) / (len(a)-1). For z-score normalized vectors
// Similarity(v, v) is 1.
func Similarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, errs.Shapef("similarity of lengths %d and %d", len(a), len(b))
	}
	if len(a) < 2 {
		return 0, errs.Shapef("similarity needs at least 2 values, got %d", len(a))
	}
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s / float64(len(a)-1), nil
}

// Predict returns the softmax-weighted average of changes, where pattern i
// has weight exp(weight * Similarity(cur, known[i])).
func Predict(cur []float64, known [][]float64, changes []float64, weight float64) (float64, error) {
	if len(known) == 0 {
		return 0, errs.InvalidArgumentf("no known patterns")
	}
	if len(known) != len(changes) {
		return 0, errs.Shapef("%d patterns but %d changes", len(known), len(changes))
	}

	sims := make([]float64, len(known))
	top := math.Inf(-1)
	for i, k := range known {
		s, err := Similarity(cur, k)
		if err != nil {
			return 0, err
		}
		sims[i] = weight * s
		if sims[i] > top {
			top = sims[i]
		}
	}

	// shift by the max exponent; the ratio is unchanged
	num, den := 0.0, 0.0
	for i, s := range sims {
		e := math.Exp(s - top)
		num += e * changes[i]
		den += e
	}
	return num / den, nil
}

// Model is a frozen known set. Safe for concurrent readers.
type Model struct {
	Patterns   [][]float64
	Changes    []float64
	Weight     float64
	Normalizer features.Normalizer
}

// NewModel copies the known set and normalizes every pattern copy with norm,
// the same policy Estimate applies to live windows. A zero norm means
// z-score. Constant patterns cannot be rescaled; they are kept as given and
// score 0 against any centred window.
func NewModel(patterns [][]float64, changes []float64, weight float64, norm features.Normalizer) (*Model, error) {
	if len(patterns) == 0 {
		return nil, errs.InvalidArgumentf("no known patterns")
	}
	if len(patterns) != len(changes) {
		return nil, errs.Shapef("%d patterns but %d changes", len(patterns), len(changes))
	}
	if norm.Apply == nil {
		norm = features.ZScore
	}
	m := &Model{
		Patterns:   make([][]float64, len(patterns)),
		Changes:    append([]float64(nil), changes...),
		Weight:     weight,
		Normalizer: norm,
	}
	for i, p := range patterns {
		cp := append([]float64(nil), p...)
		if _, err := norm.Apply(cp); err != nil && !errors.Is(err, errs.ErrDegenerateVector) {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
		m.Patterns[i] = cp
	}
	return m, nil
}

// Estimate normalizes a copy of the live window with the model's policy
// and predicts.
func (m *Model) Estimate(window []float64) (float64, error) {
	cur := append([]float64(nil), window...)
	if _, err := m.Normalizer.Apply(cur); err != nil {
		return 0, err
	}
	return Predict(cur, m.Patterns, m.Changes, m.Weight)
}

// WindowSize is the pattern length the model expects.
func (m *Model) WindowSize() int {
	if len(m.Patterns) == 0 {
		return 0
	}
	return len(m.Patterns[0])
}

// Len returns the number of known patterns.
func (m *Model) Len() int { return len(m.Patterns) }
