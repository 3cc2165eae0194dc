package usecase

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/domain/models"
	"LatentTrader/internal/services/features"
	"LatentTrader/internal/services/latentsource"
	"LatentTrader/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTrainerConfig() TrainerConfig {
	return TrainerConfig{
		WindowSize:      4,
		Clusters:        3,
		Policy:          "hard_kmeans",
		Weight:          2,
		Normalizer:      "zscore",
		Workers:         2,
		Seed:            42,
		MaxIterations:   500,
		VolumeWeighting: true,
	}
}

func newTestTrainer(t *testing.T, cfg TrainerConfig, candles *fakeCandles, store *fakeModelStore) (*Trainer, *ModelRegistry) {
	t.Helper()
	reg := NewModelRegistry(store, logger.Nop())
	tr, err := NewTrainer(cfg, candles, store, reg, newFakeMetrics(), logger.Nop())
	require.NoError(t, err)
	return tr, reg
}

func trainParams() models.TrainParams {
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return models.TrainParams{Product: "BTC-USD", From: from, To: from.Add(4 * time.Hour), Granularity: 60}
}

func TestTrainerPublishesModel(t *testing.T) {
	store := newFakeModelStore()
	candles := &fakeCandles{candles: wavyTimeline(200)}
	tr, reg := newTestTrainer(t, testTrainerConfig(), candles, store)

	_, err := reg.Estimate([]float64{1, 2, 3, 4})
	assert.ErrorIs(t, err, errs.ErrModelNotReady)

	m, err := tr.Train(context.Background(), trainParams())
	require.NoError(t, err)

	assert.Equal(t, "BTC-USD", m.Product)
	assert.Equal(t, 3, m.K())
	assert.Equal(t, 196, m.Samples)
	assert.Len(t, m.Labels, 3)
	assert.Len(t, m.Confidence, 3)
	assert.Len(t, m.VolumeScores, 3)
	for _, p := range m.Prototypes {
		assert.Len(t, p, 4)
	}
	for _, v := range m.VolumeScores {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}

	current, ok := reg.Current()
	require.True(t, ok)
	assert.Same(t, m, current)
	assert.Same(t, m, store.saved["BTC-USD"])
	assert.False(t, store.locked, "lock must be released")

	est, err := reg.Estimate([]float64{100, 101, 103, 102})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(est))

	_, err = reg.Estimate([]float64{1, 2, 3})
	assert.ErrorIs(t, err, errs.ErrShape)
}

func TestRegistryEstimatesWithModelNormalizer(t *testing.T) {
	cfg := testTrainerConfig()
	cfg.Normalizer = "unit_variance"
	tr, reg := newTestTrainer(t, cfg, &fakeCandles{candles: wavyTimeline(200)}, newFakeModelStore())

	m, err := tr.Train(context.Background(), trainParams())
	require.NoError(t, err)
	assert.Equal(t, "unit_variance", m.Normalizer)

	want, err := latentsource.NewModel(m.Prototypes, m.Labels, m.Weight, features.UnitVariance)
	require.NoError(t, err)

	window := []float64{100, 101, 103, 102}
	expected, err := want.Estimate(window)
	require.NoError(t, err)
	got, err := reg.Estimate(window)
	require.NoError(t, err)
	assert.InDelta(t, expected, got, 1e-12)
}

func TestTrainerRejectsConcurrentRun(t *testing.T) {
	store := newFakeModelStore()
	store.locked = true
	candles := &fakeCandles{candles: wavyTimeline(50)}
	tr, _ := newTestTrainer(t, testTrainerConfig(), candles, store)

	_, err := tr.Train(context.Background(), trainParams())
	assert.ErrorIs(t, err, ErrTrainingInProgress)
	assert.Zero(t, candles.calls)
}

func TestTrainerPropagatesBatchErrors(t *testing.T) {
	cfg := testTrainerConfig()
	cfg.Clusters = 50
	tr, reg := newTestTrainer(t, cfg, &fakeCandles{candles: wavyTimeline(20)}, newFakeModelStore())

	_, err := tr.Train(context.Background(), trainParams())
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	_, ok := reg.Current()
	assert.False(t, ok)

	cfg = testTrainerConfig()
	tr, _ = newTestTrainer(t, cfg, &fakeCandles{candles: wavyTimeline(4)}, newFakeModelStore())
	_, err = tr.Train(context.Background(), trainParams())
	assert.ErrorIs(t, err, errs.ErrShape)
}

func TestTrainerValidatesParams(t *testing.T) {
	tr, _ := newTestTrainer(t, testTrainerConfig(), &fakeCandles{}, newFakeModelStore())
	p := trainParams()
	p.To = p.From
	_, err := tr.Train(context.Background(), p)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestNewTrainerRejectsBadConfig(t *testing.T) {
	for name, mutate := range map[string]func(*TrainerConfig){
		"policy":     func(c *TrainerConfig) { c.Policy = "dbscan" },
		"normalizer": func(c *TrainerConfig) { c.Normalizer = "robust" },
		"type":       func(c *TrainerConfig) { c.TypeFilter = "flat" },
		"window":     func(c *TrainerConfig) { c.WindowSize = 1 },
		"clusters":   func(c *TrainerConfig) { c.Clusters = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testTrainerConfig()
			mutate(&cfg)
			_, err := NewTrainer(cfg, &fakeCandles{}, nil, NewModelRegistry(nil, logger.Nop()), newFakeMetrics(), logger.Nop())
			assert.ErrorIs(t, err, errs.ErrInvalidArgument)
		})
	}
}

func TestRegistryRestore(t *testing.T) {
	store := newFakeModelStore()
	reg := NewModelRegistry(store, logger.Nop())

	ok, err := reg.Restore(context.Background(), "ETH-USD")
	require.NoError(t, err)
	assert.False(t, ok)

	store.saved["ETH-USD"] = &models.TrainedModel{
		Product:    "ETH-USD",
		WindowSize: 3,
		Prototypes: [][]float64{{-1, 0, 1}, {1, 0, -1}},
		Labels:     []float64{2, -2},
		Weight:     4,
	}
	ok, err = reg.Restore(context.Background(), "ETH-USD")
	require.NoError(t, err)
	assert.True(t, ok)

	est, err := reg.Estimate([]float64{10, 11, 12})
	require.NoError(t, err)
	assert.Greater(t, est, 1.9)
}

func TestTrainJobHandlesPayload(t *testing.T) {
	store := newFakeModelStore()
	tr, reg := newTestTrainer(t, testTrainerConfig(), &fakeCandles{candles: wavyTimeline(120)}, store)
	job := NewTrainJob(tr, logger.Nop())

	raw := []byte(`{"product":"BTC-USD","from":"2024-03-01T00:00:00Z","to":"2024-03-01T02:00:00Z","granularity":60}`)
	require.NoError(t, job.Handle(context.Background(), json.RawMessage(raw)))
	_, ok := reg.Current()
	assert.True(t, ok)

	store.locked = true
	assert.NoError(t, job.Handle(context.Background(), json.RawMessage(raw)), "a busy lock is not a job failure")

	assert.Error(t, job.Handle(context.Background(), 42))
}
