package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"LatentTrader/internal/domain/models"
	drepo "LatentTrader/internal/domain/repository"
	"LatentTrader/internal/services/decision"
	"LatentTrader/internal/services/window"
	"LatentTrader/pkg/logger"

	"github.com/google/uuid"
)

// AgentConfig is the initial state of a StreamingAgent.
type AgentConfig struct {
	Product  string
	Capacity int
	Cash     float64
	Asset    float64
}

// StreamingAgent keeps bounded windows over the live feed and runs the
// decision policy on every match. HandleEvent must be called from a single
// goroutine; Position may be called concurrently.
type StreamingAgent struct {
	product string

	matches *window.Sliding
	buys    *window.Sliding
	sells   *window.Sliding
	opens   *window.Sliding
	cancels *window.Sliding
	dones   *window.Sliding

	policy  decision.Policy
	pub     drepo.IntentPublisher
	metrics drepo.Metrics
	log     *logger.Logger

	mu        sync.RWMutex
	pos       models.Position
	lastPrice float64
	started   bool
}

// NewStreamingAgent creates an agent. pub may be nil.
func NewStreamingAgent(cfg AgentConfig, policy decision.Policy, pub drepo.IntentPublisher, metrics drepo.Metrics, log *logger.Logger) *StreamingAgent {
	return &StreamingAgent{
		product: cfg.Product,
		matches: window.New(cfg.Capacity),
		buys:    window.New(cfg.Capacity),
		sells:   window.New(cfg.Capacity),
		opens:   window.New(cfg.Capacity),
		cancels: window.New(cfg.Capacity),
		dones:   window.New(cfg.Capacity),
		policy:  policy,
		pub:     pub,
		metrics: metrics,
		log:     log,
		pos:     models.Position{Cash: cfg.Cash, Asset: cfg.Asset},
	}
}

// HandleEvent applies one event to the agent state.
func (a *StreamingAgent) HandleEvent(ctx context.Context, ev *models.Event) error {
	if ev == nil {
		return nil
	}
	a.metrics.RecordEvent(string(ev.Kind))

	switch ev.Kind {
	case models.KindError:
		a.log.Warn("feed error", logger.String("message", ev.Message))
		a.metrics.RecordError("feed")
		return nil
	case models.KindUnknown:
		return nil
	}
	if ev.Price == 0 {
		return nil
	}

	switch ev.Kind {
	case models.KindMatch:
		return a.onMatch(ctx, ev)
	case models.KindReceived:
		switch ev.Side {
		case models.SideBuy:
			a.buys.Push(ev.Price)
		case models.SideSell:
			a.sells.Push(ev.Price)
		default:
			a.log.Warn("received event with unknown side",
				logger.String("side", string(ev.Side)),
				logger.Int64("sequence", ev.Sequence))
			a.metrics.RecordError("unknown_side")
		}
	case models.KindOpen:
		a.opens.Push(ev.Price)
	case models.KindDone:
		if ev.Reason == models.DoneReasonCanceled {
			a.cancels.Push(ev.Price)
		} else {
			a.dones.Push(ev.Price)
		}
	}
	return nil
}

func (a *StreamingAgent) onMatch(ctx context.Context, ev *models.Event) error {
	a.mu.Lock()
	if !a.started {
		a.started = true
		a.log.Info("starting position",
			logger.String("product", a.product),
			logger.Float64("cash", a.pos.Cash),
			logger.Float64("asset", a.pos.Asset),
			logger.Float64("valuation", a.pos.Valuation(ev.Price)))
	}
	a.lastPrice = ev.Price
	a.mu.Unlock()

	a.matches.Push(ev.Price)
	a.metrics.RecordLastPrice(a.product, ev.Price)
	return a.decide(ctx)
}

func (a *StreamingAgent) decide(ctx context.Context) error {
	start := time.Now()

	a.mu.RLock()
	snap := decision.Snapshot{Matches: a.matches, Buys: a.buys, Sells: a.sells, Position: a.pos}
	a.mu.RUnlock()

	in := a.policy.Decide(snap)
	a.metrics.RecordDecision(string(in.Action))
	a.metrics.RecordLatency("decide", time.Since(start).Seconds())

	last := snap.LastMatch()
	if in.Action == models.ActionHold {
		if a.log.DebugEnabled() {
			a.log.Debug("hold",
				logger.String("reason", in.Reason),
				logger.Float64("estimate", in.Estimate))
		}
		return nil
	}

	a.mu.Lock()
	switch in.Action {
	case models.ActionBuy:
		a.pos.Cash -= in.Notional
		a.pos.Asset += in.Quantity
	case models.ActionSell:
		a.pos.Asset -= in.Quantity
		a.pos.Cash += in.Notional
	}
	pos := a.pos
	a.mu.Unlock()

	valuation := pos.Valuation(last)
	a.log.Info("decision",
		logger.String("action", string(in.Action)),
		logger.String("reason", in.Reason),
		logger.Float64("quantity", in.Quantity),
		logger.Float64("price", last),
		logger.Float64("cash", pos.Cash),
		logger.Float64("asset", pos.Asset),
		logger.Float64("valuation", valuation))
	a.metrics.RecordPosition(pos.Cash, pos.Asset, valuation)

	if a.pub == nil {
		return nil
	}
	intent := &models.TradeIntent{
		ID:        uuid.NewString(),
		Product:   a.product,
		Action:    in.Action,
		Quantity:  in.Quantity,
		Price:     last,
		Reason:    in.Reason,
		Position:  pos,
		Valuation: valuation,
		Time:      time.Now().UTC(),
	}
	if err := a.pub.PublishIntent(ctx, intent); err != nil {
		a.metrics.RecordError("publish_intent")
		return fmt.Errorf("publish intent: %w", err)
	}
	return nil
}

// Position returns the current balances and the last match price.
func (a *StreamingAgent) Position() (models.Position, float64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pos, a.lastPrice
}

// WindowLens reports the fill level of each window, keyed by name. Call it
// from the ingest goroutine.
func (a *StreamingAgent) WindowLens() map[string]int {
	return map[string]int{
		"matches": a.matches.Len(),
		"buys":    a.buys.Len(),
		"sells":   a.sells.Len(),
		"opens":   a.opens.Len(),
		"cancels": a.cancels.Len(),
		"dones":   a.dones.Len(),
	}
}
