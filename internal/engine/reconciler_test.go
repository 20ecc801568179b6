package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fxtrend/internal/broker"
	"fxtrend/internal/state"

	"github.com/rs/zerolog"
)

type fakeBrokerState struct {
	orders      []broker.OrderRef
	ordersErr   error
	position    broker.Position
	positionErr error
	account     broker.Account
	accountErr  error
}

func (f fakeBrokerState) OpenOrders(context.Context, string) ([]broker.OrderRef, error) {
	return f.orders, f.ordersErr
}

func (f fakeBrokerState) Position(context.Context, string) (broker.Position, error) {
	return f.position, f.positionErr
}

func (f fakeBrokerState) Account(context.Context) (broker.Account, error) {
	return f.account, f.accountErr
}

func TestReconcileOnceUpdatesStore(t *testing.T) {
	store := state.NewStore()
	fake := fakeBrokerState{
		orders:   []broker.OrderRef{{ID: "a"}, {ID: "b"}},
		position: broker.Position{Symbol: "EURUSD", Qty: -5000, AvgEntry: 1.1234},
		account:  broker.Account{Equity: 100000, BuyingPower: 200000},
	}

	reconcileOnce(context.Background(), fake, store, "EURUSD", zerolog.Nop())

	snap := store.Snapshot()
	if snap.Position.Qty != -5000 || snap.Position.AvgEntry != 1.1234 {
		t.Fatalf("unexpected position %+v", snap.Position)
	}
	if snap.OpenOrderCount != 2 {
		t.Fatalf("expected 2 open orders, got %d", snap.OpenOrderCount)
	}
	if snap.LastReconciled.IsZero() {
		t.Fatalf("expected reconcile time to be set")
	}
}

func TestReconcileOnceNoPositionIsFlat(t *testing.T) {
	store := state.NewStore()
	reconcileOnce(context.Background(), fakeBrokerState{position: broker.Position{Qty: 3}}, store, "EURUSD", zerolog.Nop())

	reconcileOnce(context.Background(), fakeBrokerState{positionErr: broker.ErrNoPosition}, store, "EURUSD", zerolog.Nop())
	if got := store.CurrentQuantity(); got != 0 {
		t.Fatalf("expected flat, got %d", got)
	}
}

func TestReconcileOnceKeepsStateOnErrors(t *testing.T) {
	store := state.NewStore()
	reconcileOnce(context.Background(), fakeBrokerState{position: broker.Position{Qty: 7}, orders: []broker.OrderRef{{ID: "x"}}}, store, "EURUSD", zerolog.Nop())

	boom := errors.New("boom")
	reconcileOnce(context.Background(), fakeBrokerState{ordersErr: boom, positionErr: boom, accountErr: boom}, store, "EURUSD", zerolog.Nop())

	snap := store.Snapshot()
	if snap.Position.Qty != 7 || snap.OpenOrderCount != 1 {
		t.Fatalf("expected previous state kept, got %+v", snap)
	}
}

func TestReconcileLogReportsTrackedState(t *testing.T) {
	store := state.NewStore()
	store.SetLastBarTime(time.Date(2018, 3, 5, 13, 0, 0, 0, time.UTC))
	var buf bytes.Buffer
	fake := fakeBrokerState{
		orders:   []broker.OrderRef{{ID: "a"}, {ID: "b"}},
		position: broker.Position{Qty: 5000},
	}

	reconcileOnce(context.Background(), fake, store, "EURUSD", zerolog.New(&buf))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["open_orders"] != float64(2) || line["position"] != float64(5000) {
		t.Fatalf("unexpected reconcile log %v", line)
	}
	if line["last_bar"] != "2018-03-05T13:00:00Z" {
		t.Fatalf("expected last bar time in log, got %v", line["last_bar"])
	}
}
