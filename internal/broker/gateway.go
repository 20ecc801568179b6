package broker

import (
	"context"
	"errors"
	"fmt"

	"fxtrend/internal/bracket"
	"fxtrend/internal/strategy"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway binds the Alpaca client to one symbol and implements
// bracket.Gateway.
type Gateway struct {
	client *Client
	symbol string
	tif    alpaca.TimeInForce
	runID  string
}

func NewGateway(client *Client, symbol string, tif alpaca.TimeInForce, runID string) *Gateway {
	return &Gateway{client: client, symbol: symbol, tif: tif, runID: runID}
}

func (g *Gateway) SubmitMarketOrder(ctx context.Context, side strategy.Direction, qty int) (string, error) {
	return g.submit(ctx, side, qty, alpaca.Market, nil, nil)
}

func (g *Gateway) SubmitLimitOrder(ctx context.Context, side strategy.Direction, qty int, price decimal.Decimal) (string, error) {
	return g.submit(ctx, side, qty, alpaca.Limit, &price, nil)
}

func (g *Gateway) SubmitStopOrder(ctx context.Context, side strategy.Direction, qty int, price decimal.Decimal) (string, error) {
	return g.submit(ctx, side, qty, alpaca.Stop, nil, &price)
}

func (g *Gateway) Cancel(ctx context.Context, orderID string) error {
	return g.client.CancelOrder(ctx, orderID)
}

// Liquidate flattens the net position with a market order.
func (g *Gateway) Liquidate(ctx context.Context) error {
	pos, err := g.client.Position(ctx, g.symbol)
	if errors.Is(err, ErrNoPosition) {
		return nil
	}
	if err != nil {
		return err
	}
	if pos.Qty == 0 {
		return nil
	}
	side := strategy.Short
	qty := pos.Qty
	if qty < 0 {
		side = strategy.Long
		qty = -qty
	}
	_, err = g.submit(ctx, side, qty, alpaca.Market, nil, nil)
	return err
}

// Events forwards trade updates for the gateway's symbol as bracket events.
func (g *Gateway) Events(ctx context.Context, handler func(bracket.OrderEvent)) error {
	return g.client.StreamTradeUpdates(ctx, func(update alpaca.TradeUpdate) {
		if update.Order.Symbol != g.symbol {
			return
		}
		handler(EventFromTradeUpdate(update))
	})
}

func (g *Gateway) submit(ctx context.Context, side strategy.Direction, qty int, orderType alpaca.OrderType, limit, stop *decimal.Decimal) (string, error) {
	alpacaSide, err := toSide(side)
	if err != nil {
		return "", err
	}
	ref, err := g.client.PlaceOrder(ctx, OrderRequest{
		Symbol:        g.symbol,
		Qty:           qty,
		Side:          alpacaSide,
		Type:          orderType,
		TimeInForce:   g.tif,
		ClientOrderID: g.runID + "-" + uuid.NewString()[:8],
		LimitPrice:    limit,
		StopPrice:     stop,
	})
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

func toSide(d strategy.Direction) (alpaca.Side, error) {
	switch d {
	case strategy.Long:
		return alpaca.Buy, nil
	case strategy.Short:
		return alpaca.Sell, nil
	default:
		return "", fmt.Errorf("no order side for direction %s", d)
	}
}

// EventFromTradeUpdate maps an Alpaca trade update onto a bracket event.
func EventFromTradeUpdate(update alpaca.TradeUpdate) bracket.OrderEvent {
	return bracket.OrderEvent{
		OrderID: update.Order.ID,
		Status:  statusFromEvent(update.Event),
		Type:    orderTypeFrom(update.Order.Type),
	}
}

func statusFromEvent(event string) bracket.Status {
	switch event {
	case "fill":
		return bracket.StatusFilled
	case "partial_fill":
		return bracket.StatusPartiallyFilled
	case "canceled":
		return bracket.StatusCancelled
	case "new", "accepted", "pending_new":
		return bracket.StatusNew
	case "rejected":
		return bracket.StatusRejected
	case "expired":
		return bracket.StatusExpired
	default:
		return bracket.StatusOther
	}
}

func orderTypeFrom(t alpaca.OrderType) bracket.OrderType {
	switch t {
	case alpaca.Market:
		return bracket.OrderTypeMarket
	case alpaca.Limit:
		return bracket.OrderTypeLimit
	case alpaca.Stop:
		return bracket.OrderTypeStop
	default:
		return bracket.OrderTypeOther
	}
}

// ParseTimeInForce accepts "day" and "gtc".
func ParseTimeInForce(value string) (alpaca.TimeInForce, error) {
	switch value {
	case "day":
		return alpaca.Day, nil
	case "gtc":
		return alpaca.GTC, nil
	default:
		return "", fmt.Errorf("unsupported time in force: %s", value)
	}
}
