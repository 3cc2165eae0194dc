package decision

// Crossover is the peer-pressure heuristic: when the resting order book
// averages above the traded price the agent sells, otherwise it buys.
type Crossover struct {
	Sizing
}

func (c Crossover) Decide(s Snapshot) Intent {
	if s.Matches.Len() == 0 || s.Buys.Len() == 0 || s.Sells.Len() == 0 {
		return hold("insufficient_data")
	}

	avgMatch := s.Matches.Mean()
	book := (s.Buys.Mean() + s.Sells.Mean()) / 2

	if book > avgMatch {
		if in, ok := c.sell(s, "book_above_match"); ok {
			return in
		}
		return hold("insufficient_asset")
	}
	if in, ok := c.buy(s, "book_at_or_below_match"); ok {
		return in
	}
	return hold("insufficient_balance")
}
