package models

import "time"

// Action is the discrete outcome of a decision.
type Action string

const (
	ActionHold Action = "HOLD"
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Position is the agent's (cash, asset) balance pair.
type Position struct {
	Cash  float64 `json:"cash"`
	Asset float64 `json:"asset"`
}

// Valuation prices the position at the given asset price.
func (p Position) Valuation(price float64) float64 {
	return p.Cash + p.Asset*price
}

// TradeIntent is emitted for every executed decision.
type TradeIntent struct {
	ID        string    `json:"id"`
	Product   string    `json:"product"`
	Action    Action    `json:"action"`
	Quantity  float64   `json:"quantity"` // asset units
	Price     float64   `json:"price"`
	Reason    string    `json:"reason"`
	Position  Position  `json:"position"`
	Valuation float64   `json:"valuation"`
	Time      time.Time `json:"time"`
}
