package repository

import (
	"context"
	"time"

	"LatentTrader/internal/domain/models"
)

// Granularity is the candle sampling interval in seconds.
type Granularity int

const (
	G1m  Granularity = 60
	G5m  Granularity = 300
	G15m Granularity = 900
	G1h  Granularity = 3600
	G6h  Granularity = 21600
	G1d  Granularity = 86400
)

// CandleStore is the batch historical query collaborator. Rows are returned
// in ascending time order.
type CandleStore interface {
	GetCandles(ctx context.Context, product string, from, to time.Time, g Granularity) ([]models.Candle, error)
}
