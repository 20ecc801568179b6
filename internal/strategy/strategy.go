package strategy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is both the entry decision and the side of an order.
type Direction int

const (
	None Direction = iota
	Long
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "NONE"
	}
}

// Opposite returns the side that offsets d. None stays None.
func (d Direction) Opposite() Direction {
	switch d {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return None
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Indicators carries the indicator values computed for one period.
type Indicators struct {
	Fast       float64
	Slow       float64
	StochD     float64
	Ready      bool
	DailyFast  float64
	DailySlow  float64
	DailyReady bool
}

// Period is the closed trading period handed to the evaluator.
type Period struct {
	Start      time.Time
	Close      float64
	Indicators Indicators
	Holdings   int
}

// Entry is a bracketed entry request: a market order plus take-profit and
// stop-loss prices for the protective legs.
type Entry struct {
	Direction  Direction
	Size       int
	Close      float64
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

// EntryFunc places an entry. opened reports whether the entry order itself was
// accepted, which is what counts against the per-trend trade limit, even when
// err reports a failure on a protective leg.
type EntryFunc func(entry Entry) (opened bool, err error)
