package usecase

import (
	"context"
	"time"

	"LatentTrader/internal/domain/models"
	drepo "LatentTrader/internal/domain/repository"
	mid "LatentTrader/internal/middleware"
	"LatentTrader/pkg/logger"
)

// EventCollector reads the live feed and forwards events to the pipeline.
type EventCollector struct {
	stream  drepo.EventStream
	pipe    *mid.EventPipeline
	metrics drepo.Metrics
	log     *logger.Logger
	done    chan struct{}
}

// NewEventCollector creates a new EventCollector instance.
func NewEventCollector(stream drepo.EventStream, pipe *mid.EventPipeline, metrics drepo.Metrics, log *logger.Logger) *EventCollector {
	return &EventCollector{stream: stream, pipe: pipe, metrics: metrics, log: log}
}

// IsConnected returns true if the feed is connected.
func (c *EventCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *EventCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	evCh, errCh := c.stream.Read(ctx)
	c.done = make(chan struct{})
	go c.consume(ctx, evCh, errCh)
	return nil
}

func (c *EventCollector) consume(ctx context.Context, evCh <-chan *models.Event, errCh <-chan error) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			if err == nil {
				continue
			}
			c.metrics.RecordError("stream")
			c.log.Warn("feed read failed, reconnecting", logger.Error(err))
			if rerr := c.stream.Reconnect(ctx); rerr != nil {
				c.log.Error("feed reconnect failed", logger.Error(rerr))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
			}
		case ev, ok := <-evCh:
			if !ok {
				return
			}
			if ev == nil {
				continue
			}
			if err := c.pipe.Process(ctx, ev); err != nil {
				c.log.Debug("event dropped", logger.Error(err))
			}
		}
	}
}

// Shutdown closes the feed and drains the pipeline.
func (c *EventCollector) Shutdown(ctx context.Context) error {
	err := c.stream.Close()
	if c.done != nil {
		select {
		case <-c.done:
		case <-ctx.Done():
		}
	}
	c.pipe.Stop()
	return err
}
