package clustering

import (
	"bytes"
	"context"
	"math"
	"testing"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/services/estimator"
	"LatentTrader/internal/services/features"
	"LatentTrader/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func separated() [][]float64 {
	return [][]float64{
		{0, 0, 0},
		{100, 100, 100},
		{-100, 50, -100},
		{300, -300, 300},
	}
}

func TestNewValidatesInput(t *testing.T) {
	_, err := New(separated(), 0, Gaussian())
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = New(separated(), 5, Gaussian())
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = New([][]float64{{1, 2}, {1, 2, 3}}, 1, Gaussian())
	assert.ErrorIs(t, err, errs.ErrShape)
}

func TestForgyPicksDistinctFeatures(t *testing.T) {
	feats := separated()
	c, err := New(feats, 4, Gaussian(), WithSeed(7))
	require.NoError(t, err)

	seen := map[float64]bool{}
	for _, p := range c.Prototypes() {
		seen[p[0]*1000+p[1]] = true
	}
	assert.Len(t, seen, 4)
}

func TestGaussianConvergesWhenKEqualsN(t *testing.T) {
	c, err := New(separated(), 4, Gaussian(), WithSeed(1), WithWorkers(3))
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, StateConverged, c.State())
	// the first assign fills the empty table, the second reports no change
	assert.Equal(t, 2, c.Iterations())
	assert.False(t, c.Assign(), "assign after convergence must report no change")

	table := c.Membership()
	for _, row := range table {
		sum := 0.0
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
	assertConfidenceBounded(t, table)
}

func assertConfidenceBounded(t *testing.T, table [][]float64) {
	t.Helper()
	total := 0.0
	for _, s := range estimator.ConfidenceScores(table) {
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
		total += s
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestDotProductRun(t *testing.T) {
	up := []float64{1, 2, 3, 4}
	_, err := features.ZScoreNormalize(up)
	require.NoError(t, err)
	down := make([]float64, len(up))
	for i, v := range up {
		down[i] = -v
	}
	feats := [][]float64{up, down, up, down, up, down}

	c, err := New(feats, 2, DotProduct(2), WithSeed(9), WithWorkers(2))
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, StateConverged, c.State())
	assert.False(t, c.Assign())

	table := c.Membership()
	for _, row := range table {
		sum := 0.0
		for _, v := range row {
			assert.GreaterOrEqual(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
	assertConfidenceBounded(t, table)
}

func TestAssignIsIdempotentAfterConvergence(t *testing.T) {
	c, err := New(separated(), 2, Gaussian(), WithSeed(3))
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))

	c.Assign()
	first := c.Membership()
	c.Assign()
	assert.Equal(t, first, c.Membership())
}

func TestHardKMeansConverges(t *testing.T) {
	feats := [][]float64{
		{0, 0.1}, {0.1, 0}, {0.05, 0.05},
		{5, 5.1}, {5.1, 5}, {5.05, 5.05},
	}
	c, err := New(feats, 2, HardKMeans(), WithSeed(11))
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, StateConverged, c.State())

	table := c.Membership()
	for i, row := range table {
		assert.Equal(t, 1.0, row[c.assigned[i]])
	}
	assert.Equal(t, c.assigned[0], c.assigned[1])
	assert.Equal(t, c.assigned[0], c.assigned[2])
	assert.Equal(t, c.assigned[3], c.assigned[4])
	assert.Equal(t, c.assigned[3], c.assigned[5])
	assert.NotEqual(t, c.assigned[0], c.assigned[3])
}

func TestHardAssignFloorsNonWinners(t *testing.T) {
	feats := [][]float64{{0, 0}, {1, 1}}
	c, err := New(feats, 2, HardKMeans(), WithSeed(5))
	require.NoError(t, err)
	require.True(t, c.Assign())

	table := c.Membership()
	protos := c.Prototypes()
	for i, row := range table {
		for j, v := range row {
			if v == 1 {
				continue
			}
			assert.InDelta(t, hardFloor*HardKMeans().Density(feats[i], protos[j]), v, 1e-12)
		}
	}
}

func TestRunHitsIterationCap(t *testing.T) {
	feats := [][]float64{{0, 1}, {1, 0}, {0.5, 0.5}, {0.2, 0.9}}
	c, err := New(feats, 2, Gaussian(), WithSeed(2), WithMaxIterations(1))
	require.NoError(t, err)

	err = c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNonConvergence)
	var nc *errs.NonConvergenceError
	require.ErrorAs(t, err, &nc)
	assert.Equal(t, 1, nc.Iterations)
}

func TestRunHonoursCancellation(t *testing.T) {
	c, err := New(separated(), 2, Gaussian(), WithSeed(2))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateRunning, c.State())
}

func TestAccessorsReturnCopies(t *testing.T) {
	c, err := New(separated(), 2, Gaussian(), WithSeed(9))
	require.NoError(t, err)

	p := c.Prototypes()
	p[0][0] = math.Inf(1)
	assert.False(t, math.IsInf(c.Prototypes()[0][0], 1))
}

func TestPolicyDensities(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{1, 2, 3}

	assert.InDelta(t, 1.0, Gaussian().Density(a, b), 1e-12)
	assert.InDelta(t, math.Exp(2*14.0/2), DotProduct(2).Density(a, b), 1e-6)
	assert.InDelta(t, 14.0/3, Cosine().Density(a, b), 1e-12)
	assert.InDelta(t, math.E*math.E, HardKMeans().Density(a, b), 1e-12)
	assert.Zero(t, Cosine().Density(a, []float64{-1, -2, -3}))
}

func TestPolicyByName(t *testing.T) {
	for _, name := range []string{PolicyGaussian, PolicyDotProduct, PolicyCosine, PolicyHardKMeans} {
		p, err := PolicyByName(name, 1)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
	}
	_, err := PolicyByName("spectral", 1)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestCosineOnNormalizedWindows(t *testing.T) {
	feats := [][]float64{
		{1, 2, 3, 4}, {4, 3, 2, 1}, {1, 2, 3, 4}, {4, 3, 2, 1},
	}
	for _, f := range feats {
		_, err := features.UnitVarianceNormalize(f)
		require.NoError(t, err)
	}
	c, err := New(feats, 2, Cosine(), WithSeed(4))
	require.NoError(t, err)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, StateConverged, c.State())
}

func TestCosineWarnsOnRawFeatures(t *testing.T) {
	var buf bytes.Buffer
	l, err := logger.NewWriter(&logger.Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	raw := [][]float64{{10, 20, 30}, {30, 20, 10}}
	_, err = New(raw, 2, Cosine(), WithLogger(l))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "features do not look normalized")

	buf.Reset()
	norm := [][]float64{{-1, 0, 1}, {1, 0, -1}}
	_, err = New(norm, 2, Cosine(), WithLogger(l))
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = New(raw, 2, Gaussian(), WithLogger(l))
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}
