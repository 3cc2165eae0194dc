package http

import (
	"time"

	xutil "LatentTrader/pkg/util"
)

// ParseRange resolves optional from/to strings into an aligned range. An
// empty "to" means now and an empty "from" means lookback before "to".
func ParseRange(from, to string, lookback, step time.Duration, now time.Time) (time.Time, time.Time) {
	end := xutil.ParseTimeDefault(to, now)
	start := xutil.ParseTimeDefault(from, end.Add(-lookback))
	return xutil.AlignRange(start, end, step)
}
