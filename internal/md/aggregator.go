package md

import (
	"math"
	"time"
)

// Bar is one OHLC bar. Timestamp is the start of the bar's interval.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    uint64
}

// Aggregator rolls finer bars into bars of a fixed period aligned to UTC.
// A period is emitted once a bar from a later period arrives.
type Aggregator struct {
	period  time.Duration
	current Bar
	open    bool
}

func NewAggregator(period time.Duration) *Aggregator {
	return &Aggregator{period: period}
}

// Add folds bar into the open period and returns the previous period when
// bar starts a new one. Bars older than the open period are dropped.
func (a *Aggregator) Add(bar Bar) (Bar, bool) {
	start := bar.Timestamp.UTC().Truncate(a.period)
	if !a.open {
		a.start(bar, start)
		return Bar{}, false
	}
	switch {
	case start.Equal(a.current.Timestamp):
		a.current.High = math.Max(a.current.High, bar.High)
		a.current.Low = math.Min(a.current.Low, bar.Low)
		a.current.Close = bar.Close
		a.current.Volume += bar.Volume
		return Bar{}, false
	case start.After(a.current.Timestamp):
		closed := a.current
		a.start(bar, start)
		return closed, true
	default:
		return Bar{}, false
	}
}

// Flush returns the open period, if any, and resets the aggregator.
func (a *Aggregator) Flush() (Bar, bool) {
	if !a.open {
		return Bar{}, false
	}
	closed := a.current
	a.open = false
	a.current = Bar{}
	return closed, true
}

func (a *Aggregator) start(bar Bar, start time.Time) {
	a.current = bar
	a.current.Timestamp = start
	a.open = true
}
