package strategy

import (
	"time"

	"github.com/shopspring/decimal"
)

type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipNotReady         SkipReason = "not_ready"
	SkipAlreadyProcessed SkipReason = "already_processed"
)

// Params configures the evaluator.
type Params struct {
	TrendPeriods      int
	DailyTrendPeriods int
	MultiTimeframe    bool
	TradeLimit        int
	MaxHolding        int
	TradeSize         int
	OverboughtLevel   float64
	OversoldLevel     float64
	TakeProfitOffset  decimal.Decimal
	StopLossOffset    decimal.Decimal
	PricePrecision    int32
}

// DefaultParams mirrors the EURUSD hourly configuration.
func DefaultParams() Params {
	return Params{
		TrendPeriods:      17,
		DailyTrendPeriods: 4,
		TradeLimit:        3,
		MaxHolding:        0,
		TradeSize:         5000,
		OverboughtLevel:   80,
		OversoldLevel:     20,
		TakeProfitOffset:  decimal.RequireFromString("0.0007"),
		StopLossOffset:    decimal.RequireFromString("0.0017"),
		PricePrecision:    4,
	}
}

// Decision is the outcome of one OnPeriodClose call.
type Decision struct {
	Period          time.Time
	Direction       Direction
	Skipped         SkipReason
	Trend           int
	DailyTrend      int
	TradesThisTrend int
	Entry           *Entry
	Opened          bool
}

// Evaluator is the per-period trend and oscillator state machine. It is not
// safe for concurrent use; it runs on the bar path only.
type Evaluator struct {
	params     Params
	trend      TrendCounter
	daily      TrendCounter
	oscillator OscillatorState
	trades     int
	lastPeriod time.Time
	lastDay    time.Time
	evaluated  bool
}

func NewEvaluator(params Params) *Evaluator {
	return &Evaluator{params: params}
}

func (e *Evaluator) Trend() TrendCounter         { return e.trend }
func (e *Evaluator) DailyTrend() TrendCounter    { return e.daily }
func (e *Evaluator) Oscillator() OscillatorState { return e.oscillator }
func (e *Evaluator) TradesThisTrend() int        { return e.trades }
func (e *Evaluator) LastPeriod() time.Time       { return e.lastPeriod }

// OnPeriodClose evaluates one closed period. When the period calls for an
// entry and enter is non-nil, enter runs before the oscillator state is
// rolled forward. The returned error is the one reported by enter.
func (e *Evaluator) OnPeriodClose(p Period, enter EntryFunc) (Decision, error) {
	decision := Decision{Period: p.Start}
	if !p.Indicators.Ready {
		decision.Skipped = SkipNotReady
		return e.fill(decision), nil
	}
	if e.evaluated && p.Start.Equal(e.lastPeriod) {
		decision.Skipped = SkipAlreadyProcessed
		return e.fill(decision), nil
	}

	e.preUpdate(p)

	decision.Direction = e.Suitability(p.Indicators.StochD, p.Holdings)

	var err error
	if decision.Direction != None {
		entry := e.entryFor(decision.Direction, p.Close)
		decision.Entry = &entry
		if enter != nil {
			decision.Opened, err = enter(entry)
			if decision.Opened {
				e.trades++
			}
		}
	}

	e.postUpdate(p)
	return e.fill(decision), err
}

// Suitability reports whether the current state allows a Long or Short entry.
// Long is checked first.
func (e *Evaluator) Suitability(stochD float64, holdings int) Direction {
	p := e.params
	if e.trades >= p.TradeLimit {
		return None
	}
	if int(e.trend) >= p.TrendPeriods &&
		(!p.MultiTimeframe || int(e.daily) >= p.DailyTrendPeriods) &&
		stochD > p.OversoldLevel &&
		e.oscillator.WasOversold() &&
		holdings <= p.MaxHolding {
		return Long
	}
	if int(e.trend) <= -p.TrendPeriods &&
		(!p.MultiTimeframe || int(e.daily) <= -p.DailyTrendPeriods) &&
		stochD < p.OverboughtLevel &&
		e.oscillator.WasOverbought() &&
		holdings >= -p.MaxHolding {
		return Short
	}
	return None
}

func (e *Evaluator) preUpdate(p Period) {
	if e.params.MultiTimeframe && p.Indicators.DailyReady {
		day := dayOf(p.Start)
		if !e.evaluated || !day.Equal(e.lastDay) {
			e.daily.Observe(p.Indicators.DailyFast, p.Indicators.DailySlow)
		}
	}
	if e.trend.Observe(p.Indicators.Fast, p.Indicators.Slow) {
		e.trades = 0
	}
}

func (e *Evaluator) postUpdate(p Period) {
	e.oscillator.Observe(p.Indicators.StochD, e.params.OverboughtLevel, e.params.OversoldLevel)
	e.lastPeriod = p.Start
	e.lastDay = dayOf(p.Start)
	e.evaluated = true
}

func (e *Evaluator) entryFor(direction Direction, closePrice float64) Entry {
	price := decimal.NewFromFloat(closePrice)
	tp := e.params.TakeProfitOffset
	sl := e.params.StopLossOffset
	entry := Entry{Direction: direction, Size: e.params.TradeSize, Close: closePrice}
	if direction == Long {
		entry.TakeProfit = price.Add(tp).Round(e.params.PricePrecision)
		entry.StopLoss = price.Sub(sl).Round(e.params.PricePrecision)
	} else {
		entry.TakeProfit = price.Sub(tp).Round(e.params.PricePrecision)
		entry.StopLoss = price.Add(sl).Round(e.params.PricePrecision)
	}
	return entry
}

func (e *Evaluator) fill(d Decision) Decision {
	d.Trend = int(e.trend)
	d.DailyTrend = int(e.daily)
	d.TradesThisTrend = e.trades
	return d
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
