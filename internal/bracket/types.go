package bracket

import (
	"context"
	"errors"
	"fmt"

	"fxtrend/internal/strategy"

	"github.com/shopspring/decimal"
)

var (
	// ErrEntryRejected means the entry order was not accepted; no protective
	// orders were submitted.
	ErrEntryRejected = errors.New("entry order rejected")
	// ErrUnprotected means the entry order was accepted but a protective leg
	// was not, leaving an unbracketed position.
	ErrUnprotected = errors.New("protective order rejected, position unbracketed")
)

type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
	OrderTypeOther  OrderType = "other"
)

type Status string

const (
	StatusNew             Status = "new"
	StatusPartiallyFilled Status = "partially_filled"
	StatusFilled          Status = "filled"
	StatusCancelled       Status = "cancelled"
	StatusRejected        Status = "rejected"
	StatusExpired         Status = "expired"
	StatusOther           Status = "other"
)

// OrderEvent is a status notification from the order gateway. Delivery is
// at-least-once and may be concurrent.
type OrderEvent struct {
	OrderID string
	Status  Status
	Type    OrderType
}

// Gateway is the order gateway the manager submits to. Implementations are
// bound to a single instrument and assign each accepted order a unique id.
type Gateway interface {
	SubmitMarketOrder(ctx context.Context, side strategy.Direction, qty int) (string, error)
	SubmitLimitOrder(ctx context.Context, side strategy.Direction, qty int, price decimal.Decimal) (string, error)
	SubmitStopOrder(ctx context.Context, side strategy.Direction, qty int, price decimal.Decimal) (string, error)
	Cancel(ctx context.Context, orderID string) error
	Liquidate(ctx context.Context) error
}

// FillPolicy selects which fill statuses retire a bracket pair.
type FillPolicy int

const (
	// FillPolicyFilled retires a pair only on a complete fill.
	FillPolicyFilled FillPolicy = iota
	// FillPolicyAnyFill also retires a pair on a partial fill.
	FillPolicyAnyFill
)

func (p FillPolicy) triggers(status Status) bool {
	switch status {
	case StatusFilled:
		return true
	case StatusPartiallyFilled:
		return p == FillPolicyAnyFill
	default:
		return false
	}
}

// ParseFillPolicy accepts "filled" and "any".
func ParseFillPolicy(value string) (FillPolicy, error) {
	switch value {
	case "", "filled":
		return FillPolicyFilled, nil
	case "any":
		return FillPolicyAnyFill, nil
	default:
		return FillPolicyFilled, fmt.Errorf("unsupported fill policy: %s", value)
	}
}

// Bracket identifies the three orders of one entry.
type Bracket struct {
	EntryID      string
	TakeProfitID string
	StopLossID   string
}
