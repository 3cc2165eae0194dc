package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"LatentTrader/internal/domain/models"
	domrepo "LatentTrader/internal/domain/repository"
	"LatentTrader/internal/service/ratelimit"
	"LatentTrader/pkg/logger"
)

var errPipelineStopped = errors.New("event pipeline stopped")

// Handler is the minimal event consumer the pipeline feeds.
type Handler interface {
	HandleEvent(ctx context.Context, ev *models.Event) error
}

// EventPipeline sits between the feed and the agent. It validates,
// optionally throttles by event kind and hands events, in arrival order,
// to a single worker goroutine so the agent never sees concurrent calls.
type EventPipeline struct {
	handler  Handler
	metrics  domrepo.Metrics
	log      *logger.Logger
	limiter  *ratelimit.Limiter
	throttle map[models.EventKind]bool
	bufSize  int
	bufCh    chan *models.Event
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
	mu       sync.Mutex
}

type PipelineOption func(*EventPipeline)

// WithBufferSize sets how many events may wait for the worker.
func WithBufferSize(n int) PipelineOption {
	return func(p *EventPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithThrottle limits the listed kinds to perSecond events each. MATCH is
// never throttled since every match drives a decision.
func WithThrottle(perSecond float64, burst int, kinds ...models.EventKind) PipelineOption {
	return func(p *EventPipeline) {
		if perSecond <= 0 {
			return
		}
		p.limiter = ratelimit.New(perSecond, burst)
		for _, k := range kinds {
			if k != models.KindMatch {
				p.throttle[k] = true
			}
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) PipelineOption {
	return func(p *EventPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewEventPipeline creates a new pipeline.
func NewEventPipeline(handler Handler, metrics domrepo.Metrics, opts ...PipelineOption) *EventPipeline {
	p := &EventPipeline{
		handler:  handler,
		metrics:  metrics,
		log:      logger.Nop(),
		throttle: make(map[models.EventKind]bool),
		bufSize:  4096,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Event, p.bufSize)
	return p
}

// Start launches the single ingest worker.
func (p *EventPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)
		for {
			select {
			case <-p.stopCh:
				p.drain(ctx)
				return
			case <-ctx.Done():
				return
			case ev := <-p.bufCh:
				p.dispatch(ctx, ev)
			}
		}
	}()
}

// drain hands every already-buffered event to the handler.
func (p *EventPipeline) drain(ctx context.Context) {
	for {
		select {
		case ev := <-p.bufCh:
			p.dispatch(ctx, ev)
		default:
			return
		}
	}
}

func (p *EventPipeline) dispatch(ctx context.Context, ev *models.Event) {
	start := time.Now()
	if err := p.handler.HandleEvent(ctx, ev); err != nil {
		p.metrics.RecordError("pipeline_handle")
		p.log.Error("event handling failed",
			logger.String("kind", string(ev.Kind)),
			logger.Int64("sequence", ev.Sequence),
			logger.Error(err))
		return
	}
	p.metrics.RecordLatency("pipeline_handle", time.Since(start).Seconds())
}

// Stop drains buffered events and waits for the worker to exit.
func (p *EventPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	<-p.doneCh
}

// Process validates and throttles ev, then queues it for the worker. A full
// buffer blocks the caller until the worker catches up, ctx is done or the
// pipeline stops; the feed reader slows down instead of losing events.
func (p *EventPipeline) Process(ctx context.Context, ev *models.Event) error {
	if err := validateEvent(ev); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.limiter != nil && p.throttle[ev.Kind] && !p.limiter.Allow(string(ev.Kind)) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	select {
	case p.bufCh <- ev:
		return nil
	default:
	}

	p.metrics.RecordError("pipeline_backpressure")
	select {
	case p.bufCh <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return errPipelineStopped
	}
}

// Depth returns the number of queued events.
func (p *EventPipeline) Depth() int { return len(p.bufCh) }

func validateEvent(ev *models.Event) error {
	if ev == nil {
		return fmt.Errorf("event nil")
	}
	if ev.Kind == "" {
		return fmt.Errorf("event kind empty")
	}
	if ev.Price < 0 || math.IsNaN(ev.Price) || math.IsInf(ev.Price, 0) {
		return fmt.Errorf("invalid price %v", ev.Price)
	}
	return nil
}
