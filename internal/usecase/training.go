package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/domain/models"
	drepo "LatentTrader/internal/domain/repository"
	domsvc "LatentTrader/internal/domain/service"
	"LatentTrader/internal/services/clustering"
	"LatentTrader/internal/services/estimator"
	"LatentTrader/internal/services/features"
	"LatentTrader/pkg/logger"
)

// ErrTrainingInProgress is returned when another run holds the training lock.
var ErrTrainingInProgress = errors.New("training already in progress")

// TrainerConfig is the batch pipeline configuration.
type TrainerConfig struct {
	WindowSize      int
	Clusters        int
	Policy          string
	Weight          float64
	Normalizer      string
	TypeFilter      string
	SetFilter       string
	Workers         int
	Seed            uint64
	MaxIterations   int
	VolumeWeighting bool
}

// Trainer runs Historian, normalizer, clusterer and estimator over a
// historical timeline and publishes the frozen result.
type Trainer struct {
	cfg      TrainerConfig
	policy   clustering.Policy
	norm     features.Normalizer
	typ      features.TypeFilter
	set      features.SetFilter
	candles  drepo.CandleStore
	store    drepo.ModelStore
	registry *ModelRegistry
	metrics  drepo.Metrics
	log      *logger.Logger
}

// NewTrainer resolves the named strategies in cfg up front so a bad
// configuration fails at startup.
func NewTrainer(cfg TrainerConfig, candles drepo.CandleStore, store drepo.ModelStore, registry *ModelRegistry, metrics drepo.Metrics, log *logger.Logger) (*Trainer, error) {
	policy, err := clustering.PolicyByName(cfg.Policy, cfg.Weight)
	if err != nil {
		return nil, err
	}
	norm, err := features.NormalizerByName(cfg.Normalizer)
	if err != nil {
		return nil, err
	}
	typ, err := features.ParseTypeFilter(cfg.TypeFilter)
	if err != nil {
		return nil, err
	}
	set, err := features.ParseSetFilter(cfg.SetFilter)
	if err != nil {
		return nil, err
	}
	if cfg.WindowSize < 2 {
		return nil, errs.InvalidArgumentf("window size %d must be at least 2", cfg.WindowSize)
	}
	if cfg.Clusters <= 0 {
		return nil, errs.InvalidArgumentf("clusters %d must be positive", cfg.Clusters)
	}
	return &Trainer{
		cfg:      cfg,
		policy:   policy,
		norm:     norm,
		typ:      typ,
		set:      set,
		candles:  candles,
		store:    store,
		registry: registry,
		metrics:  metrics,
		log:      log,
	}, nil
}

// Train fetches the timeline, fits a model and publishes it to the registry.
func (t *Trainer) Train(ctx context.Context, p models.TrainParams) (*models.TrainedModel, error) {
	if t.store != nil {
		unlock, ok, err := t.store.Lock(ctx, p.Product)
		if err != nil {
			return nil, fmt.Errorf("training lock: %w", err)
		}
		if !ok {
			return nil, ErrTrainingInProgress
		}
		defer unlock()
	}

	start := time.Now()
	timeline, err := t.fetch(ctx, p)
	if err != nil {
		return nil, err
	}

	m, err := t.Fit(ctx, timeline, t.set)
	if err != nil {
		t.metrics.RecordError("train")
		return nil, err
	}
	m.Product = p.Product
	m.Granularity = p.Granularity

	if err := t.registry.Publish(ctx, m); err != nil {
		t.metrics.RecordError("publish_model")
		return nil, err
	}
	t.metrics.RecordLatency("train", time.Since(start).Seconds())
	t.log.Info("model trained",
		logger.String("product", p.Product),
		logger.Int("candles", len(timeline)),
		logger.Int("samples", m.Samples),
		logger.Int("k", m.K()),
		logger.Int("iterations", m.Iterations),
		logger.Duration("elapsed_ms", time.Since(start)))
	return m, nil
}

func (t *Trainer) fetch(ctx context.Context, p models.TrainParams) ([]models.Candle, error) {
	if p.Product == "" {
		return nil, errs.InvalidArgumentf("product required")
	}
	if !p.From.Before(p.To) {
		return nil, errs.InvalidArgumentf("from %s must be before to %s", p.From.Format(time.RFC3339), p.To.Format(time.RFC3339))
	}
	g := drepo.NormalizeGranularity(p.Granularity)
	timeline, err := t.candles.GetCandles(ctx, p.Product, p.From, p.To, g)
	if err != nil {
		t.metrics.RecordError("candles")
		return nil, fmt.Errorf("get candles: %w", err)
	}
	return timeline, nil
}

// Fit runs the batch pipeline over the part of timeline selected by set.
func (t *Trainer) Fit(ctx context.Context, timeline []models.Candle, set features.SetFilter) (*models.TrainedModel, error) {
	hist, err := features.ExtractWindows(timeline, t.cfg.WindowSize, t.typ, set)
	if err != nil {
		return nil, fmt.Errorf("extract windows: %w", err)
	}
	if err := hist.NormalizeAll(t.norm); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}

	opts := []clustering.Option{
		clustering.WithMaxIterations(t.cfg.MaxIterations),
		clustering.WithWorkers(t.cfg.Workers),
		clustering.WithLogger(t.log.With("clustering")),
	}
	if t.cfg.Seed != 0 {
		opts = append(opts, clustering.WithSeed(t.cfg.Seed))
	}
	c, err := clustering.New(hist.Features, t.cfg.Clusters, t.policy, opts...)
	if err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	runErr := c.Run(ctx)
	t.metrics.RecordIterations(t.policy.Name, c.Iterations())
	if runErr != nil {
		return nil, fmt.Errorf("cluster: %w", runErr)
	}

	table := c.Membership()
	labels, err := estimator.CentroidLabels(hist.Labels, table)
	if err != nil {
		return nil, fmt.Errorf("centroid labels: %w", err)
	}
	m := &models.TrainedModel{
		WindowSize: t.cfg.WindowSize,
		Policy:     t.policy.Name,
		Normalizer: t.norm.Name,
		Weight:     t.cfg.Weight,
		Prototypes: c.Prototypes(),
		Confidence: estimator.ConfidenceScores(table),
		Labels:     labels,
		Iterations: c.Iterations(),
		Samples:    hist.Len(),
		TrainedAt:  time.Now().UTC(),
	}
	if t.cfg.VolumeWeighting {
		m.VolumeScores, err = estimator.VolumeWeightedLabels(hist.Labels, hist.Volumes, table)
		if err != nil {
			return nil, fmt.Errorf("volume labels: %w", err)
		}
	}
	return m, nil
}

// Policy returns the clustering policy the trainer uses.
func (t *Trainer) Policy() clustering.Policy { return t.policy }

// Normalizer returns the configured window normalizer.
func (t *Trainer) Normalizer() features.Normalizer { return t.norm }

var _ domsvc.Trainer = (*Trainer)(nil)
