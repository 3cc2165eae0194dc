package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/domain/models"
	drepo "LatentTrader/internal/domain/repository"
	domsvc "LatentTrader/internal/domain/service"
	"LatentTrader/internal/services/features"
	"LatentTrader/internal/services/latentsource"
	"LatentTrader/pkg/logger"
)

type activeModel struct {
	trained *models.TrainedModel
	lsm     *latentsource.Model
}

// ModelRegistry holds the model the live path predicts with. Readers never
// block; Publish swaps the whole model atomically.
type ModelRegistry struct {
	current atomic.Pointer[activeModel]
	store   drepo.ModelStore
	log     *logger.Logger
}

// NewModelRegistry creates an empty registry. store may be nil.
func NewModelRegistry(store drepo.ModelStore, log *logger.Logger) *ModelRegistry {
	return &ModelRegistry{store: store, log: log}
}

// Publish activates m and persists it.
func (r *ModelRegistry) Publish(ctx context.Context, m *models.TrainedModel) error {
	if err := r.activate(m); err != nil {
		return err
	}
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, m); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

// Restore loads the last persisted model for product, if any.
func (r *ModelRegistry) Restore(ctx context.Context, product string) (bool, error) {
	if r.store == nil {
		return false, nil
	}
	m, err := r.store.Load(ctx, product)
	if err != nil {
		return false, fmt.Errorf("load model: %w", err)
	}
	if m == nil {
		return false, nil
	}
	if err := r.activate(m); err != nil {
		return false, err
	}
	r.log.Info("model restored",
		logger.String("product", m.Product),
		logger.Int("k", m.K()),
		logger.String("trained_at", m.TrainedAt.Format(time.RFC3339)))
	return true, nil
}

func (r *ModelRegistry) activate(m *models.TrainedModel) error {
	norm, err := features.NormalizerByName(m.Normalizer)
	if err != nil {
		return fmt.Errorf("model normalizer: %w", err)
	}
	lsm, err := latentsource.NewModel(m.Prototypes, m.Labels, m.Weight, norm)
	if err != nil {
		return fmt.Errorf("build predictor: %w", err)
	}
	r.current.Store(&activeModel{trained: m, lsm: lsm})
	return nil
}

// Current implements domain service.ModelProvider.
func (r *ModelRegistry) Current() (*models.TrainedModel, bool) {
	a := r.current.Load()
	if a == nil {
		return nil, false
	}
	return a.trained, true
}

// Estimate implements domain service.Predictor.
func (r *ModelRegistry) Estimate(window []float64) (float64, error) {
	a := r.current.Load()
	if a == nil {
		return 0, errs.ErrModelNotReady
	}
	if len(window) != a.lsm.WindowSize() {
		return 0, errs.Shapef("window has %d prices, model expects %d", len(window), a.lsm.WindowSize())
	}
	return a.lsm.Estimate(window)
}

var (
	_ domsvc.ModelProvider = (*ModelRegistry)(nil)
	_ domsvc.Predictor     = (*ModelRegistry)(nil)
)
