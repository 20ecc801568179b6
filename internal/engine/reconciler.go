package engine

import (
	"context"
	"errors"
	"time"

	"fxtrend/internal/broker"
	"fxtrend/internal/state"

	"github.com/rs/zerolog"
)

// BrokerState is the part of the broker the reconciler reads.
type BrokerState interface {
	OpenOrders(ctx context.Context, symbol string) ([]broker.OrderRef, error)
	Position(ctx context.Context, symbol string) (broker.Position, error)
	Account(ctx context.Context) (broker.Account, error)
}

func ReconcileLoop(ctx context.Context, brokerClient BrokerState, store *state.Store, symbol string, interval time.Duration, log zerolog.Logger) {
	log = log.With().Str("component", "reconciler").Logger()
	reconcileOnce(ctx, brokerClient, store, symbol, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcileOnce(ctx, brokerClient, store, symbol, log)
		}
	}
}

func reconcileOnce(ctx context.Context, brokerClient BrokerState, store *state.Store, symbol string, log zerolog.Logger) {
	orders, err := brokerClient.OpenOrders(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Msg("reconcile open orders failed")
	} else {
		store.SetOpenOrderCount(len(orders))
	}

	position, err := brokerClient.Position(ctx, symbol)
	switch {
	case errors.Is(err, broker.ErrNoPosition):
		store.UpdatePosition(state.Position{}, time.Now().UTC())
	case err != nil:
		log.Error().Err(err).Msg("reconcile position failed")
	default:
		store.UpdatePosition(state.Position{Qty: position.Qty, AvgEntry: position.AvgEntry}, time.Now().UTC())
	}

	account, err := brokerClient.Account(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconcile account failed")
	} else {
		snap := store.Snapshot()
		log.Info().
			Float64("equity", account.Equity).
			Float64("buying_power", account.BuyingPower).
			Int("position", snap.Position.Qty).
			Int("open_orders", snap.OpenOrderCount).
			Time("last_bar", snap.LastBarTime).
			Time("last_trade", snap.LastTradeTime).
			Msg("reconciled")
	}
}
