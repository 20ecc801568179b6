package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// ErrNoPosition is returned by Position when the account holds nothing in
// the symbol.
var ErrNoPosition = errors.New("no open position")

type OrderRequest struct {
	Symbol        string
	Qty           int
	Side          alpaca.Side
	Type          alpaca.OrderType
	TimeInForce   alpaca.TimeInForce
	ClientOrderID string
	LimitPrice    *decimal.Decimal
	StopPrice     *decimal.Decimal
}

type OrderRef struct {
	ID            string
	ClientOrderID string
	Symbol        string
	Type          string
	Status        string
}

type Position struct {
	Symbol   string
	Qty      int
	AvgEntry float64
}

type Account struct {
	Equity      float64
	BuyingPower float64
}

// Client wraps the Alpaca trading REST API. Calls are throttled by a shared
// limiter so a burst of bracket legs stays under the venue's request cap.
type Client struct {
	client  *alpaca.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func New(apiKey, apiSecret, baseURL string, requestsPerSecond float64, log zerolog.Logger) *Client {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}
	return &Client{
		client:  alpaca.NewClient(opts),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 3),
		log:     log.With().Str("component", "broker").Logger(),
	}
}

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderRef, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return OrderRef{}, err
	}
	qty := decimal.NewFromInt(int64(req.Qty))
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
		LimitPrice:    req.LimitPrice,
		StopPrice:     req.StopPrice,
	}

	order, err := c.client.PlaceOrder(orderReq)
	if err != nil {
		c.log.Error().Err(err).Str("side", string(req.Side)).Str("symbol", req.Symbol).Int("qty", req.Qty).Str("type", string(req.Type)).Msg("place order failed")
		return OrderRef{}, err
	}

	c.log.Info().Str("order_id", order.ID).Str("side", string(req.Side)).Str("symbol", req.Symbol).Int("qty", req.Qty).Str("type", string(req.Type)).Str("status", string(order.Status)).Msg("place order success")
	return refFromOrder(*order), nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.client.CancelOrder(orderID); err != nil {
		c.log.Error().Err(err).Str("order_id", orderID).Msg("cancel order failed")
		return err
	}
	c.log.Info().Str("order_id", orderID).Msg("cancel order requested")
	return nil
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]OrderRef, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req := alpaca.GetOrdersRequest{
		Status:  "open",
		Symbols: []string{symbol},
	}
	orders, err := c.client.GetOrders(req)
	if err != nil {
		c.log.Error().Err(err).Msg("fetch open orders failed")
		return nil, err
	}
	c.log.Debug().Int("count", len(orders)).Msg("open orders fetched")
	refs := make([]OrderRef, 0, len(orders))
	for _, order := range orders {
		refs = append(refs, refFromOrder(order))
	}
	return refs, nil
}

func (c *Client) Position(ctx context.Context, symbol string) (Position, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Position{}, err
	}
	pos, err := c.client.GetPosition(symbol)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return Position{Symbol: symbol}, ErrNoPosition
		}
		c.log.Error().Err(err).Str("symbol", symbol).Msg("fetch position failed")
		return Position{}, err
	}
	qty := int(pos.Qty.IntPart())
	avgEntry, _ := pos.AvgEntryPrice.Float64()

	c.log.Debug().Str("symbol", symbol).Int("qty", qty).Float64("avg_entry", avgEntry).Msg("position fetched")
	return Position{
		Symbol:   pos.Symbol,
		Qty:      qty,
		AvgEntry: avgEntry,
	}, nil
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Account{}, err
	}
	acct, err := c.client.GetAccount()
	if err != nil {
		c.log.Error().Err(err).Msg("fetch account failed")
		return Account{}, err
	}
	equity, _ := acct.Equity.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()

	c.log.Debug().Float64("equity", equity).Float64("buying_power", buyingPower).Msg("account fetched")
	return Account{Equity: equity, BuyingPower: buyingPower}, nil
}

// StreamTradeUpdates delivers order updates to handler until ctx is done.
// The SDK invokes handler from its own goroutine.
func (c *Client) StreamTradeUpdates(ctx context.Context, handler func(alpaca.TradeUpdate)) error {
	c.client.StreamTradeUpdatesInBackground(ctx, handler)
	<-ctx.Done()
	return fmt.Errorf("trade updates: %w", ctx.Err())
}

func refFromOrder(order alpaca.Order) OrderRef {
	return OrderRef{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Type:          string(order.Type),
		Status:        string(order.Status),
	}
}
