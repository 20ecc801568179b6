package engine

import (
	"context"
	"errors"
	"time"

	"fxtrend/internal/bracket"
	"fxtrend/internal/config"
	"fxtrend/internal/md"
	"fxtrend/internal/metrics"
	"fxtrend/internal/risk"
	"fxtrend/internal/state"
	"fxtrend/internal/strategy"

	"github.com/rs/zerolog"
)

// Portfolio reports the signed net quantity held in the traded instrument.
type Portfolio interface {
	CurrentQuantity() int
}

// Engine runs the evaluator on every closed period and routes order events
// to the bracket manager.
type Engine struct {
	cfg       config.Config
	evaluator *strategy.Evaluator
	brackets  *bracket.Manager
	gate      risk.Gate
	portfolio Portfolio
	state     *state.Store
	decisions *DecisionLogger
	log       zerolog.Logger

	fast      *md.SMA
	slow      *md.SMA
	dailyFast *md.SMA
	dailySlow *md.SMA
	stoch     *md.Stochastic
	days      *md.Aggregator
	lastBar   time.Time
}

func New(cfg config.Config, evaluator *strategy.Evaluator, brackets *bracket.Manager, gate risk.Gate, portfolio Portfolio, stateStore *state.Store, decisions *DecisionLogger, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		evaluator: evaluator,
		brackets:  brackets,
		gate:      gate,
		portfolio: portfolio,
		state:     stateStore,
		decisions: decisions,
		log:       log.With().Str("component", "engine").Logger(),
		fast:      md.NewSMA(cfg.FastWindow),
		slow:      md.NewSMA(cfg.SlowWindow),
		dailyFast: md.NewSMA(cfg.DailyFastWindow),
		dailySlow: md.NewSMA(cfg.DailySlowWindow),
		stoch:     md.NewStochastic(cfg.StochPeriod, cfg.StochKPeriod, cfg.StochDPeriod),
		days:      md.NewAggregator(24 * time.Hour),
	}
}

// OnPeriod handles one closed period bar. A bar for a period that was already
// seen does not move the indicators and is skipped by the evaluator.
func (e *Engine) OnPeriod(ctx context.Context, bar md.Bar) strategy.Decision {
	e.state.SetLastBarTime(bar.Timestamp)
	if bar.Timestamp.After(e.lastBar) {
		e.updateIndicators(bar)
		e.lastBar = bar.Timestamp
	}

	period := strategy.Period{
		Start:      bar.Timestamp,
		Close:      bar.Close,
		Indicators: e.indicators(),
		Holdings:   e.portfolio.CurrentQuantity(),
	}

	record := Decision{
		Timestamp:   time.Now().UTC(),
		PeriodStart: bar.Timestamp,
		Symbol:      bar.Symbol,
		Close:       bar.Close,
		Fast:        period.Indicators.Fast,
		Slow:        period.Indicators.Slow,
		DailyFast:   period.Indicators.DailyFast,
		DailySlow:   period.Indicators.DailySlow,
		StochD:      period.Indicators.StochD,
		Holdings:    period.Holdings,
	}

	var placed bracket.Bracket
	decision, err := e.evaluator.OnPeriodClose(period, func(entry strategy.Entry) (bool, error) {
		riskCtx := risk.RiskContext{
			Price:           bar.Close,
			OpenBrackets:    e.brackets.Open(),
			MaxOpenBrackets: e.cfg.MaxOpenBrackets,
			MaxNotional:     e.cfg.MaxNotional,
			KillSwitch:      e.cfg.KillSwitch,
		}
		if err := e.gate.Evaluate(entry, riskCtx); err != nil {
			return false, err
		}
		b, err := e.brackets.Enter(ctx, entry)
		placed = b
		if b.EntryID != "" {
			e.state.SetLastTradeTime(time.Now().UTC())
		}
		return b.EntryID != "", err
	})

	record.Direction = decision.Direction
	record.Trend = decision.Trend
	record.DailyTrend = decision.DailyTrend
	record.TradesThisTrend = decision.TradesThisTrend
	record.EntryOrderID = placed.EntryID
	record.TakeProfitID = placed.TakeProfitID
	record.StopLossID = placed.StopLossID
	if decision.Entry != nil {
		record.TakeProfit = decision.Entry.TakeProfit.String()
		record.StopLoss = decision.Entry.StopLoss.String()
	}
	record.Result = resultOf(decision, err)
	if err != nil {
		record.Reason = err.Error()
	} else if decision.Skipped != strategy.SkipNone {
		record.Reason = string(decision.Skipped)
	}

	metrics.PeriodsTotal.WithLabelValues(record.Result).Inc()
	if decision.Entry != nil {
		metrics.EntriesTotal.WithLabelValues(decision.Direction.String(), record.Result).Inc()
	}
	if e.decisions != nil {
		e.decisions.Append(record)
	}

	event := e.log.Info()
	switch {
	case err != nil:
		event = e.log.Error().Err(err)
	case decision.Direction == strategy.None:
		event = e.log.Debug()
	}
	event.
		Time("period", bar.Timestamp).
		Float64("close", bar.Close).
		Int("trend", decision.Trend).
		Int("daily_trend", decision.DailyTrend).
		Float64("stoch_d", period.Indicators.StochD).
		Int("holdings", period.Holdings).
		Str("direction", decision.Direction.String()).
		Str("result", record.Result).
		Msg("period evaluated")

	return decision
}

// OnOrderEvent forwards a gateway notification to the bracket manager.
func (e *Engine) OnOrderEvent(ctx context.Context, event bracket.OrderEvent) {
	e.brackets.OnFillEvent(ctx, event)
}

// Simulator fills working orders against market data in place of a venue.
type Simulator interface {
	Match(bar md.Bar, deliver func(bracket.OrderEvent))
}

// MatchBar lets sim fill working orders against bar. Each fill is routed to
// the bracket manager and its sibling cancel lands before the next fill is
// considered.
func (e *Engine) MatchBar(ctx context.Context, sim Simulator, bar md.Bar) {
	sim.Match(bar, func(event bracket.OrderEvent) {
		e.OnOrderEvent(ctx, event)
		e.brackets.Settle()
	})
}

// Shutdown liquidates the position at the end of a run.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.brackets.EndOfRun(ctx)
}

func (e *Engine) updateIndicators(bar md.Bar) {
	e.fast.Update(bar.Close)
	e.slow.Update(bar.Close)
	e.stoch.Update(bar)
	if day, ok := e.days.Add(bar); ok {
		e.dailyFast.Update(day.Close)
		e.dailySlow.Update(day.Close)
	}
}

func (e *Engine) indicators() strategy.Indicators {
	return strategy.Indicators{
		Fast:       e.fast.Value(),
		Slow:       e.slow.Value(),
		StochD:     e.stoch.D(),
		Ready:      e.fast.Ready() && e.slow.Ready() && e.stoch.Ready(),
		DailyFast:  e.dailyFast.Value(),
		DailySlow:  e.dailySlow.Value(),
		DailyReady: e.dailyFast.Ready() && e.dailySlow.Ready(),
	}
}

func resultOf(decision strategy.Decision, err error) string {
	switch {
	case decision.Skipped != strategy.SkipNone:
		return "skipped"
	case decision.Direction == strategy.None:
		return "no_signal"
	case errors.Is(err, bracket.ErrUnprotected):
		return "unprotected"
	case err != nil:
		return "rejected"
	default:
		return "order_submitted"
	}
}
