package models

import (
	"encoding/json"
	"strings"
	"time"

	"LatentTrader/internal/domain/errs"

	"github.com/shopspring/decimal"
)

// EventKind classifies a live market event.
type EventKind string

const (
	KindMatch    EventKind = "MATCH"
	KindReceived EventKind = "RECEIVED"
	KindOpen     EventKind = "OPEN"
	KindDone     EventKind = "DONE"
	KindError    EventKind = "ERROR"
	KindUnknown  EventKind = "UNKNOWN"
)

// Side is the order side of an event.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// DoneReasonCanceled marks a DONE event for a cancelled order.
const DoneReasonCanceled = "canceled"

// Event is an already-parsed domain event delivered to the agent.
type Event struct {
	Kind     EventKind `json:"kind"`
	Price    float64   `json:"price"`
	Size     float64   `json:"size"`
	Side     Side      `json:"side,omitempty"`
	Sequence int64     `json:"sequence"`
	Reason   string    `json:"reason,omitempty"`
	Message  string    `json:"message,omitempty"`
	Product  string    `json:"product,omitempty"`
	Time     time.Time `json:"time"`
}

// wireEvent is the exchange full-channel message shape. Prices and sizes
// arrive as JSON strings or numbers.
type wireEvent struct {
	Type      string              `json:"type"`
	Price     decimal.NullDecimal `json:"price"`
	Size      decimal.NullDecimal `json:"size"`
	Side      string              `json:"side"`
	Sequence  int64               `json:"sequence"`
	Reason    string              `json:"reason"`
	Message   string              `json:"message"`
	ProductID string              `json:"product_id"`
	Time      *time.Time          `json:"time"`
}

var kindByType = map[string]EventKind{
	"match":    KindMatch,
	"received": KindReceived,
	"open":     KindOpen,
	"done":     KindDone,
	"error":    KindError,
}

// DecodeEvent parses a raw feed message. A missing price decodes as zero;
// an unparseable one is a MalformedEventError.
func DecodeEvent(b []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, &errs.MalformedEventError{Reason: "decode", Err: err}
	}
	if w.Type == "" {
		return nil, &errs.MalformedEventError{Reason: "missing type"}
	}

	kind, ok := kindByType[strings.ToLower(w.Type)]
	if !ok {
		kind = KindUnknown
	}

	ev := &Event{
		Kind:     kind,
		Side:     Side(strings.ToUpper(w.Side)),
		Sequence: w.Sequence,
		Reason:   w.Reason,
		Message:  w.Message,
		Product:  w.ProductID,
	}
	if w.Price.Valid {
		ev.Price = w.Price.Decimal.InexactFloat64()
	}
	if w.Size.Valid {
		ev.Size = w.Size.Decimal.InexactFloat64()
	}
	if w.Time != nil {
		ev.Time = w.Time.UTC()
	}
	return ev, nil
}
