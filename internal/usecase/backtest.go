package usecase

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"LatentTrader/internal/domain/models"
	"LatentTrader/internal/services/estimator"
	"LatentTrader/internal/services/features"
	"LatentTrader/internal/services/latentsource"
	"LatentTrader/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Backtester trains on the first half of a timeline and scores the
// second half out of sample. It never touches the live registry.
type Backtester struct {
	trainer *Trainer
	workers int
	log     *logger.Logger
}

func NewBacktester(trainer *Trainer, workers int, log *logger.Logger) *Backtester {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Backtester{trainer: trainer, workers: workers, log: log}
}

// Run evaluates a model fitted on the first half of the requested range.
func (b *Backtester) Run(ctx context.Context, p models.TrainParams, withSamples bool) (*models.BacktestReport, error) {
	timeline, err := b.trainer.fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	return b.Evaluate(ctx, p.Product, timeline, withSamples)
}

// Evaluate fits on FIRST_HALF and scores every SECOND_HALF window.
func (b *Backtester) Evaluate(ctx context.Context, product string, timeline []models.Candle, withSamples bool) (*models.BacktestReport, error) {
	start := time.Now()
	m, err := b.trainer.Fit(ctx, timeline, features.SetFirstHalf)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	test, err := features.ExtractWindows(timeline, m.WindowSize, features.TypeAll, features.SetSecondHalf)
	if err != nil {
		return nil, fmt.Errorf("extract test windows: %w", err)
	}
	norm := b.trainer.Normalizer()
	if err := test.NormalizeAll(norm); err != nil {
		return nil, fmt.Errorf("normalize test windows: %w", err)
	}
	lsm, err := latentsource.NewModel(m.Prototypes, m.Labels, m.Weight, norm)
	if err != nil {
		return nil, fmt.Errorf("build predictor: %w", err)
	}

	samples := make([]models.BacktestSample, test.Len())
	density := b.trainer.Policy().Density

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i := range test.Features {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f := test.Features[i]
			score, err := estimator.Score(f, m.Prototypes, m.Labels, density)
			if err != nil {
				return err
			}
			est, err := latentsource.Predict(f, lsm.Patterns, lsm.Changes, lsm.Weight)
			if err != nil {
				return err
			}
			samples[i] = models.BacktestSample{Score: score, Estimate: est, Label: test.Labels[i]}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score test windows: %w", err)
	}

	report := summarize(samples)
	report.Product = product
	report.TrainSamples = m.Samples
	if withSamples {
		report.Samples = samples
	}
	b.log.Info("backtest finished",
		logger.String("product", product),
		logger.Int("train_samples", report.TrainSamples),
		logger.Int("test_samples", report.TestSamples),
		logger.Float64("hit_rate", report.HitRate),
		logger.Float64("mae", report.MAE),
		logger.Duration("elapsed_ms", time.Since(start)))
	return report, nil
}

// summarize computes the sign hit rate and mean absolute error of the
// latent-source estimates.
func summarize(samples []models.BacktestSample) *models.BacktestReport {
	r := &models.BacktestReport{TestSamples: len(samples)}
	if len(samples) == 0 {
		return r
	}
	hits := 0
	absErr := 0.0
	for _, s := range samples {
		if sign(s.Estimate) == sign(s.Label) {
			hits++
		}
		absErr += math.Abs(s.Estimate - s.Label)
	}
	r.HitRate = float64(hits) / float64(len(samples))
	r.MAE = absErr / float64(len(samples))
	return r
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
