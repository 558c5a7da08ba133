package fixedpoint

import (
	"math"
	"time"
)

// Interval is a named annualisation period used by the analytics layer to
// scale per-period statistics (Sharpe, Sortino, ...) to a common basis.
type Interval struct {
	name string
	dur  time.Duration
}

var (
	Daily     = Interval{name: "daily", dur: 24 * time.Hour}
	Annual252 = Interval{name: "annual252", dur: 252 * 24 * time.Hour}
	Annual365 = Interval{name: "annual365", dur: 365 * 24 * time.Hour}
)

func (i Interval) String() string          { return i.name }
func (i Interval) Duration() time.Duration { return i.dur }

// ScaleFactor returns the multiplier that converts a statistic computed over
// `from` into the equivalent statistic over `to`, per spec: multiply by
// sqrt(target_seconds / source_seconds).
func ScaleFactor(from, to Interval) float64 {
	return math.Sqrt(to.dur.Seconds() / from.dur.Seconds())
}

// ScaleSharpe rescales a Sharpe ratio computed over `from` to the `to`
// interval.
func ScaleSharpe(sharpe float64, from, to Interval) float64 {
	return sharpe * ScaleFactor(from, to)
}
