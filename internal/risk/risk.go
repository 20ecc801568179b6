package risk

import (
	"errors"

	"fxtrend/internal/strategy"

	"github.com/rs/zerolog"
)

var (
	ErrKillSwitch        = errors.New("kill_switch_enabled")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrMaxNotional       = errors.New("max_notional_exceeded")
	ErrMaxOpenBrackets   = errors.New("max_open_brackets_reached")
	ErrInvalidProtection = errors.New("protective_prices_on_wrong_side")
)

type RiskContext struct {
	Price           float64
	OpenBrackets    int
	MaxOpenBrackets int
	MaxNotional     float64
	KillSwitch      bool
}

// Gate is the last check before an entry reaches the order gateway.
type Gate struct {
	Log zerolog.Logger
}

func (g Gate) Evaluate(entry strategy.Entry, ctx RiskContext) error {
	notional := ctx.Price * float64(entry.Size)

	g.Log.Debug().Str("direction", entry.Direction.String()).Int("qty", entry.Size).Float64("price", ctx.Price).Float64("notional", notional).Msg("risk evaluation")

	if err := g.check(entry, ctx, notional); err != nil {
		g.Log.Info().Str("reason", err.Error()).Str("direction", entry.Direction.String()).Msg("risk rejected")
		return err
	}
	return nil
}

func (g Gate) check(entry strategy.Entry, ctx RiskContext, notional float64) error {
	if ctx.KillSwitch {
		return ErrKillSwitch
	}
	if entry.Size <= 0 {
		return ErrInvalidQuantity
	}
	if ctx.MaxNotional > 0 && notional > ctx.MaxNotional {
		return ErrMaxNotional
	}
	if ctx.MaxOpenBrackets > 0 && ctx.OpenBrackets >= ctx.MaxOpenBrackets {
		return ErrMaxOpenBrackets
	}
	switch entry.Direction {
	case strategy.Long:
		if !entry.TakeProfit.GreaterThan(entry.StopLoss) {
			return ErrInvalidProtection
		}
	case strategy.Short:
		if !entry.TakeProfit.LessThan(entry.StopLoss) {
			return ErrInvalidProtection
		}
	}
	return nil
}
