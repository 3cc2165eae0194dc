package estimator

import (
	"testing"

	"LatentTrader/internal/domain/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var table = [][]float64{
	{0.9, 0.1},
	{0.8, 0.2},
	{0.1, 0.9},
	{0.0, 1.0},
}

func TestConfidenceScoresColumnMean(t *testing.T) {
	scores := ConfidenceScores(table)
	require.Len(t, scores, 2)
	assert.InDelta(t, 0.45, scores[0], 1e-12)
	assert.InDelta(t, 0.55, scores[1], 1e-12)
	for _, s := range scores {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
	}
	assert.Nil(t, ConfidenceScores(nil))
}

func TestCentroidLabels(t *testing.T) {
	labels := []float64{1, 2, -1, -2}
	got, err := CentroidLabels(labels, table)
	require.NoError(t, err)

	want0 := (0.9*1 + 0.8*2 + 0.1*-1) / 1.8
	want1 := (0.1*1 + 0.2*2 + 0.9*-1 + 1.0*-2) / 2.2
	assert.InDelta(t, want0, got[0], 1e-12)
	assert.InDelta(t, want1, got[1], 1e-12)
}

func TestCentroidLabelsEmptyCluster(t *testing.T) {
	_, err := CentroidLabels([]float64{1, 2}, [][]float64{{1, 0}, {1, 0}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrEmptyCluster)

	var ec *errs.EmptyClusterError
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 1, ec.Cluster)
}

func TestCentroidLabelsShape(t *testing.T) {
	_, err := CentroidLabels([]float64{1}, table)
	assert.ErrorIs(t, err, errs.ErrShape)

	_, err = CentroidLabels([]float64{1, 2}, [][]float64{{1, 0}, {1}})
	assert.ErrorIs(t, err, errs.ErrShape)
}

func TestVolumeWeightedLabels(t *testing.T) {
	labels := []float64{1, 2, -1, -2}
	volumes := []float64{10, 10, 10, 10}
	got, err := VolumeWeightedLabels(labels, volumes, table)
	require.NoError(t, err)

	// column 0 is bullish, column 1 bearish
	assert.Equal(t, []float64{1, 0}, got)

	_, err = VolumeWeightedLabels(labels, volumes[:2], table)
	assert.ErrorIs(t, err, errs.ErrShape)
}

func TestMinMaxScale(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, MinMaxScale([]float64{2, 4, 6}))
	assert.Equal(t, []float64{0, 0, 0}, MinMaxScale([]float64{3, 3, 3}))
	assert.Empty(t, MinMaxScale(nil))
}

func TestScore(t *testing.T) {
	density := func(f, c []float64) float64 {
		if f[0] == c[0] {
			return 1
		}
		return 0.5
	}
	s, err := Score([]float64{1, 1}, [][]float64{{1, 1}, {2, 2}}, []float64{3, -2}, density)
	require.NoError(t, err)
	assert.InDelta(t, 3-1.0, s, 1e-12)

	_, err = Score([]float64{1, 1}, [][]float64{{1, 1}}, []float64{1, 2}, density)
	assert.ErrorIs(t, err, errs.ErrShape)
}
