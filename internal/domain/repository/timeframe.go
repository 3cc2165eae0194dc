package repository

import "time"

// IsValidGranularity returns true if g is a supported sampling interval.
func IsValidGranularity(g Granularity) bool {
	switch g {
	case G1m, G5m, G15m, G1h, G6h, G1d:
		return true
	default:
		return false
	}
}

// DefaultGranularity returns the default sampling interval.
func DefaultGranularity() Granularity { return G1m }

// NormalizeGranularity converts raw seconds to a valid granularity (or default).
func NormalizeGranularity(seconds int) Granularity {
	g := Granularity(seconds)
	if IsValidGranularity(g) {
		return g
	}
	return DefaultGranularity()
}

// Duration returns the interval as a time.Duration.
func (g Granularity) Duration() time.Duration {
	return time.Duration(g) * time.Second
}
