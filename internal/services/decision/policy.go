package decision

import (
	"LatentTrader/internal/domain/models"
	"LatentTrader/internal/services/window"
)

// Snapshot is the agent state a policy decides on. Windows are read-only
// from the policy's point of view.
type Snapshot struct {
	Matches  *window.Sliding
	Buys     *window.Sliding
	Sells    *window.Sliding
	Position models.Position
}

// LastMatch is the most recent traded price, 0 if none.
func (s Snapshot) LastMatch() float64 {
	if s.Matches == nil {
		return 0
	}
	p, _ := s.Matches.Last()
	return p
}

// Intent is what a policy wants done. Quantity is in asset units and
// Notional is the cash side of the trade.
type Intent struct {
	Action   models.Action
	Quantity float64
	Notional float64
	Reason   string
	Estimate float64
}

// Policy turns a snapshot into an intent. Decide must not block.
type Policy interface {
	Decide(s Snapshot) Intent
}

// Sizing holds the fixed position-sizing rules shared by all policies.
type Sizing struct {
	SellQty float64 // asset units sold per decision (q)
	BuyCash float64 // cash spent per decision (c)
}

func (z Sizing) sell(s Snapshot, reason string) (Intent, bool) {
	if s.Position.Asset > z.SellQty {
		return Intent{
			Action:   models.ActionSell,
			Quantity: z.SellQty,
			Notional: z.SellQty * s.LastMatch(),
			Reason:   reason,
		}, true
	}
	return Intent{}, false
}

func (z Sizing) buy(s Snapshot, reason string) (Intent, bool) {
	last := s.LastMatch()
	if last > 0 && s.Position.Cash > z.BuyCash {
		return Intent{
			Action:   models.ActionBuy,
			Quantity: z.BuyCash / last,
			Notional: z.BuyCash,
			Reason:   reason,
		}, true
	}
	return Intent{}, false
}

func hold(reason string) Intent {
	return Intent{Action: models.ActionHold, Reason: reason}
}
