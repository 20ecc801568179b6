package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fxtrend/internal/bracket"
	"fxtrend/internal/md"
	"fxtrend/internal/strategy"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type workingOrder struct {
	seq   int
	kind  bracket.OrderType
	side  strategy.Direction
	qty   int
	price decimal.Decimal
}

// DryRun accepts every order without sending it anywhere. Market orders fill
// at once; limit and stop orders stay working until Match finds a bar that
// reaches their price.
type DryRun struct {
	log zerolog.Logger

	mu       sync.Mutex
	position int
	seq      int
	working  map[string]workingOrder
}

func NewDryRun(log zerolog.Logger) *DryRun {
	return &DryRun{
		log:     log.With().Str("component", "dry_run").Logger(),
		working: make(map[string]workingOrder),
	}
}

func (d *DryRun) SubmitMarketOrder(_ context.Context, side strategy.Direction, qty int) (string, error) {
	id := uuid.NewString()
	d.mu.Lock()
	d.position += signed(side, qty)
	d.mu.Unlock()
	d.log.Info().Str("order_id", id).Str("side", side.String()).Int("qty", qty).Msg("dry run market order")
	return id, nil
}

func (d *DryRun) SubmitLimitOrder(_ context.Context, side strategy.Direction, qty int, price decimal.Decimal) (string, error) {
	id := d.rest(bracket.OrderTypeLimit, side, qty, price)
	d.log.Info().Str("order_id", id).Str("side", side.String()).Int("qty", qty).Str("price", price.String()).Msg("dry run limit order")
	return id, nil
}

func (d *DryRun) SubmitStopOrder(_ context.Context, side strategy.Direction, qty int, price decimal.Decimal) (string, error) {
	id := d.rest(bracket.OrderTypeStop, side, qty, price)
	d.log.Info().Str("order_id", id).Str("side", side.String()).Int("qty", qty).Str("price", price.String()).Msg("dry run stop order")
	return id, nil
}

func (d *DryRun) Cancel(_ context.Context, orderID string) error {
	d.mu.Lock()
	_, ok := d.working[orderID]
	delete(d.working, orderID)
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("cancel %s: order not working", orderID)
	}
	d.log.Info().Str("order_id", orderID).Msg("dry run cancel")
	return nil
}

// Liquidate flattens the position and drops every working order.
func (d *DryRun) Liquidate(context.Context) error {
	d.mu.Lock()
	qty := d.position
	d.position = 0
	dropped := len(d.working)
	clear(d.working)
	d.mu.Unlock()
	d.log.Info().Int("qty", qty).Int("cancelled", dropped).Msg("dry run liquidation")
	return nil
}

// Match fills the working orders whose price bar reaches and hands each fill
// to deliver before looking at the next one, so a deliver that cancels a
// sibling keeps it from filling on the same bar. When both legs of a bracket
// are reachable the stop is filled first.
func (d *DryRun) Match(bar md.Bar, deliver func(bracket.OrderEvent)) {
	for _, id := range d.triggered(bar) {
		d.mu.Lock()
		order, ok := d.working[id]
		if ok {
			delete(d.working, id)
			d.position += signed(order.side, order.qty)
		}
		d.mu.Unlock()
		if !ok {
			continue
		}
		d.log.Info().
			Str("order_id", id).
			Str("type", string(order.kind)).
			Str("side", order.side.String()).
			Int("qty", order.qty).
			Str("price", order.price.String()).
			Time("bar", bar.Timestamp).
			Msg("dry run fill")
		deliver(bracket.OrderEvent{OrderID: id, Status: bracket.StatusFilled, Type: order.kind})
	}
}

// CurrentQuantity returns the simulated net position.
func (d *DryRun) CurrentQuantity() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

// WorkingOrders returns the number of resting limit and stop orders.
func (d *DryRun) WorkingOrders() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.working)
}

func (d *DryRun) rest(kind bracket.OrderType, side strategy.Direction, qty int, price decimal.Decimal) string {
	id := uuid.NewString()
	d.mu.Lock()
	d.seq++
	d.working[id] = workingOrder{seq: d.seq, kind: kind, side: side, qty: qty, price: price}
	d.mu.Unlock()
	return id
}

func (d *DryRun) triggered(bar md.Bar) []string {
	high := decimal.NewFromFloat(bar.High)
	low := decimal.NewFromFloat(bar.Low)

	d.mu.Lock()
	defer d.mu.Unlock()
	var ids []string
	for id, order := range d.working {
		if reaches(order, high, low) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := d.working[ids[i]], d.working[ids[j]]
		if a.kind != b.kind {
			return a.kind == bracket.OrderTypeStop
		}
		return a.seq < b.seq
	})
	return ids
}

// reaches reports whether a bar spanning [low, high] trades through the
// order's price. Sell limits and buy stops trigger on the high, buy limits
// and sell stops on the low.
func reaches(order workingOrder, high, low decimal.Decimal) bool {
	switch {
	case order.kind == bracket.OrderTypeLimit && order.side == strategy.Short,
		order.kind == bracket.OrderTypeStop && order.side == strategy.Long:
		return high.GreaterThanOrEqual(order.price)
	default:
		return low.LessThanOrEqual(order.price)
	}
}

func signed(side strategy.Direction, qty int) int {
	if side == strategy.Short {
		return -qty
	}
	return qty
}
