package features

import (
	"math"
	"testing"

	"LatentTrader/internal/domain/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var normalizeInputs = [][]float64{
	{1, 2, 3, 4, 5},
	{100.5, 99.25, 101.75, 98, 102.125, 100},
	{-3, 7, 0.5, 12, -8},
	{42, 43},
}

func populationStd(v []float64) float64 {
	m := Mean(v)
	return math.Sqrt(sumSquares(v, m) / float64(len(v)))
}

func TestZScoreNormalizeMeanZeroStdOne(t *testing.T) {
	for _, in := range normalizeInputs {
		v := append([]float64(nil), in...)
		out, err := ZScoreNormalize(v)
		require.NoError(t, err)

		assert.InDelta(t, 0.0, Mean(out), 1e-9)
		assert.InDelta(t, 1.0, SampleStd(out), 1e-9)
		// in place
		assert.Equal(t, &v[0], &out[0])
	}
}

func TestUnitVarianceNormalizePopulationStats(t *testing.T) {
	for _, in := range normalizeInputs {
		v := append([]float64(nil), in...)
		out, err := UnitVarianceNormalize(v)
		require.NoError(t, err)

		assert.InDelta(t, 0.0, Mean(out), 1e-9)
		assert.InDelta(t, 1.0, populationStd(out), 1e-9)
	}
}

func TestNormalizeDegenerate(t *testing.T) {
	_, err := ZScoreNormalize([]float64{3, 3, 3})
	assert.ErrorIs(t, err, errs.ErrDegenerateVector)

	_, err = UnitVarianceNormalize([]float64{0.1, 0.1, 0.1})
	assert.ErrorIs(t, err, errs.ErrDegenerateVector)
}

func TestNormalizeShape(t *testing.T) {
	_, err := ZScoreNormalize([]float64{1})
	assert.ErrorIs(t, err, errs.ErrShape)

	_, err = UnitVarianceNormalize(nil)
	assert.ErrorIs(t, err, errs.ErrShape)
}

func TestNormalizerByName(t *testing.T) {
	n, err := NormalizerByName("unit_variance")
	require.NoError(t, err)
	assert.Equal(t, UnitVariance.Name, n.Name)

	n, err = NormalizerByName("")
	require.NoError(t, err)
	assert.Equal(t, ZScore.Name, n.Name)

	_, err = NormalizerByName("minmax")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}
