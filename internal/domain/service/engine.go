package service

import (
	"context"

	"LatentTrader/internal/domain/models"
)

// ModelProvider exposes the currently active trained model.
type ModelProvider interface {
	Current() (*models.TrainedModel, bool)
}

// Predictor maps a raw live window onto a predicted price delta.
type Predictor interface {
	Estimate(window []float64) (float64, error)
}

// Trainer runs the batch pipeline for a product and time range.
type Trainer interface {
	Train(ctx context.Context, p models.TrainParams) (*models.TrainedModel, error)
}
