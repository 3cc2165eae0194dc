package models

import "time"

// Candle represents one OHLCV row of a timeline.
type Candle struct {
	Time    time.Time `json:"time"`
	Product string    `json:"product,omitempty"`
	Low     float64   `json:"low"`
	High    float64   `json:"high"`
	Open    float64   `json:"open"`
	Close   float64   `json:"close"`
	Volume  float64   `json:"volume"`
}

// Closes returns the close column of a timeline.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
