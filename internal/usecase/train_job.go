package usecase

import (
	"context"
	"errors"
	"fmt"

	"LatentTrader/internal/domain/models"
	domsvc "LatentTrader/internal/domain/service"
	"LatentTrader/pkg/logger"
	"LatentTrader/pkg/queue"
)

// TrainJobType is the queue message type for asynchronous training.
const TrainJobType = "engine.train"

// TrainJob runs a queued training request.
type TrainJob struct {
	trainer domsvc.Trainer
	log     *logger.Logger
}

func NewTrainJob(trainer domsvc.Trainer, log *logger.Logger) *TrainJob {
	return &TrainJob{trainer: trainer, log: log}
}

func (j *TrainJob) Name() string { return "train_model" }
func (j *TrainJob) Type() string { return TrainJobType }

func (j *TrainJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[models.TrainParams](payload)
	if err != nil {
		return fmt.Errorf("train job payload: %w", err)
	}
	if _, err := j.trainer.Train(ctx, *p); err != nil {
		if errors.Is(err, ErrTrainingInProgress) {
			// another worker is already refreshing this product
			j.log.Warn("training skipped", logger.String("product", p.Product))
			return nil
		}
		return err
	}
	return nil
}

var _ queue.Job = (*TrainJob)(nil)
