package decision

import (
	"errors"

	"LatentTrader/internal/domain/errs"
	"LatentTrader/internal/domain/service"
)

// LatentSource feeds the most recent WindowSize match prices to a
// predictor and trades when the predicted change clears Threshold.
type LatentSource struct {
	Sizing
	Predictor  service.Predictor
	WindowSize int
	Threshold  float64
}

func (l LatentSource) Decide(s Snapshot) Intent {
	if l.Predictor == nil || s.Matches.Len() < l.WindowSize || l.WindowSize < 2 {
		return hold("insufficient_data")
	}

	est, err := l.Predictor.Estimate(s.Matches.Tail(l.WindowSize))
	switch {
	case errors.Is(err, errs.ErrModelNotReady):
		return hold("model_not_ready")
	case errors.Is(err, errs.ErrDegenerateVector):
		return hold("flat_window")
	case err != nil:
		return hold("estimate_failed")
	}

	var (
		in Intent
		ok bool
	)
	switch {
	case est > l.Threshold:
		in, ok = l.buy(s, "predicted_rise")
	case est < -l.Threshold:
		in, ok = l.sell(s, "predicted_fall")
	default:
		in, ok = hold("below_threshold"), true
	}
	if !ok {
		in = hold("insufficient_balance")
	}
	in.Estimate = est
	return in
}
