package bracket

import (
	"context"
	"fmt"
	"sync"

	"fxtrend/internal/metrics"
	"fxtrend/internal/strategy"

	"github.com/rs/zerolog"
)

// Manager owns the take-profit/stop-loss pairing for one running strategy.
// Every read or write of the sibling map happens under mu.
type Manager struct {
	gateway Gateway
	policy  FillPolicy
	log     zerolog.Logger

	mu       sync.Mutex
	siblings map[string]string
	// entering counts Enter calls between their first submission and
	// registration. While it is non-zero, fills for unknown protective ids
	// are held in early so the pair they belong to can settle them.
	entering int
	early    map[string]Status
	closed   bool

	cancels sync.WaitGroup
}

func NewManager(gateway Gateway, policy FillPolicy, log zerolog.Logger) *Manager {
	return &Manager{
		gateway:  gateway,
		policy:   policy,
		log:      log.With().Str("component", "bracket").Logger(),
		siblings: make(map[string]string),
		early:    make(map[string]Status),
	}
}

// Enter submits a market entry and its two protective orders, then registers
// the protective orders as a pair. A protective fill reported before the pair
// is registered retires it on registration.
func (m *Manager) Enter(ctx context.Context, entry strategy.Entry) (Bracket, error) {
	var b Bracket
	if entry.Direction == strategy.None {
		return b, fmt.Errorf("%w: no direction", ErrEntryRejected)
	}
	exit := entry.Direction.Opposite()

	m.mu.Lock()
	m.entering++
	m.mu.Unlock()

	entryID, err := m.gateway.SubmitMarketOrder(ctx, entry.Direction, entry.Size)
	if err != nil {
		m.abandon(ctx, "")
		return b, fmt.Errorf("%w: %v", ErrEntryRejected, err)
	}
	b.EntryID = entryID

	tpID, err := m.gateway.SubmitLimitOrder(ctx, exit, entry.Size, entry.TakeProfit)
	if err != nil {
		m.abandon(ctx, "")
		m.log.Error().Err(err).Str("entry_id", entryID).Msg("take-profit submission failed")
		return b, fmt.Errorf("%w: take-profit: %v", ErrUnprotected, err)
	}
	b.TakeProfitID = tpID

	slID, err := m.gateway.SubmitStopOrder(ctx, exit, entry.Size, entry.StopLoss)
	if err != nil {
		m.abandon(ctx, tpID)
		m.log.Error().Err(err).Str("entry_id", entryID).Str("take_profit_id", tpID).Msg("stop-loss submission failed, withdrawing take-profit")
		return b, fmt.Errorf("%w: stop-loss: %v", ErrUnprotected, err)
	}
	b.StopLossID = slID

	filled, open := m.settle(ctx, tpID, slID)
	metrics.OpenBrackets.Set(float64(open))
	if filled != "" {
		metrics.BracketsRetired.Inc()
		m.log.Info().
			Str("entry_id", entryID).
			Str("filled_id", filled).
			Str("take_profit_id", tpID).
			Str("stop_loss_id", slID).
			Msg("bracket retired before registration")
		return b, nil
	}
	m.log.Info().
		Str("direction", entry.Direction.String()).
		Int("size", entry.Size).
		Str("entry_id", entryID).
		Str("take_profit_id", tpID).
		Str("take_profit", entry.TakeProfit.String()).
		Str("stop_loss_id", slID).
		Str("stop_loss", entry.StopLoss.String()).
		Msg("bracket registered")
	return b, nil
}

// settle registers the pair unless one of its legs already reported a fill,
// in which case the other leg is cancelled and filled names the filled leg.
func (m *Manager) settle(ctx context.Context, tpID, slID string) (filled string, open int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, tpFilled := m.early[tpID]
	_, slFilled := m.early[slID]
	delete(m.early, tpID)
	delete(m.early, slID)
	m.leaveLocked()

	switch {
	case tpFilled && slFilled:
		filled = tpID
	case tpFilled:
		filled = tpID
		m.dispatchCancel(ctx, slID)
	case slFilled:
		filled = slID
		m.dispatchCancel(ctx, tpID)
	default:
		m.siblings[tpID] = slID
		m.siblings[slID] = tpID
	}
	return filled, len(m.siblings) / 2
}

// abandon ends an Enter that will not register a pair. An accepted
// take-profit is cancelled unless it already filled.
func (m *Manager) abandon(ctx context.Context, tpID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tpID != "" {
		if _, filled := m.early[tpID]; !filled {
			m.dispatchCancel(ctx, tpID)
		}
		delete(m.early, tpID)
	}
	m.leaveLocked()
}

func (m *Manager) leaveLocked() {
	m.entering--
	if m.entering == 0 {
		clear(m.early)
	}
}

// OnFillEvent retires the pair of a filled protective order and cancels its
// sibling. It reports whether this call retired a pair. Events for entry
// orders, non-fill statuses and already retired pairs are no-ops.
func (m *Manager) OnFillEvent(ctx context.Context, event OrderEvent) bool {
	if !m.policy.triggers(event.Status) {
		return false
	}
	if event.Type != OrderTypeLimit && event.Type != OrderTypeStop {
		return false
	}

	m.mu.Lock()
	sibling, ok := m.siblings[event.OrderID]
	if !ok {
		if m.entering > 0 {
			m.early[event.OrderID] = event.Status
			m.mu.Unlock()
			m.log.Debug().Str("order_id", event.OrderID).Str("status", string(event.Status)).Msg("fill held until pending bracket registers")
			return false
		}
		m.mu.Unlock()
		metrics.DuplicateFills.Inc()
		m.log.Debug().Str("order_id", event.OrderID).Str("status", string(event.Status)).Msg("fill for retired or unknown order ignored")
		return false
	}
	m.dispatchCancel(ctx, sibling)
	delete(m.siblings, event.OrderID)
	delete(m.siblings, sibling)
	open := len(m.siblings) / 2
	m.mu.Unlock()

	metrics.BracketsRetired.Inc()
	metrics.OpenBrackets.Set(float64(open))
	m.log.Info().Str("filled_id", event.OrderID).Str("cancelled_id", sibling).Str("status", string(event.Status)).Msg("bracket retired")
	return true
}

// EndOfRun liquidates the net position. Pairs still registered are left to
// the gateway, which cancels working orders on shutdown. No sibling cancel is
// dispatched after EndOfRun starts.
func (m *Manager) EndOfRun(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	open := len(m.siblings) / 2
	m.mu.Unlock()
	if open > 0 {
		m.log.Info().Int("open_brackets", open).Msg("end of run with working brackets")
	}
	err := m.gateway.Liquidate(ctx)
	m.cancels.Wait()
	if err != nil {
		return fmt.Errorf("liquidate: %w", err)
	}
	m.log.Info().Msg("position liquidated")
	return nil
}

// Close stops dispatching sibling cancels and waits for those in flight.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancels.Wait()
}

// Settle waits for the sibling cancels dispatched so far. It must not run
// concurrently with OnFillEvent or Enter; the simulated gateway calls it
// between fills on the bar path.
func (m *Manager) Settle() {
	m.cancels.Wait()
}

// Open returns the number of registered pairs.
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.siblings) / 2
}

// Sibling returns the paired order of orderID, if registered.
func (m *Manager) Sibling(orderID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sibling, ok := m.siblings[orderID]
	return sibling, ok
}

// dispatchCancel issues the cancel without waiting for the gateway to answer.
// m.mu must be held.
func (m *Manager) dispatchCancel(ctx context.Context, orderID string) {
	if m.closed {
		m.log.Warn().Str("order_id", orderID).Msg("manager closed, sibling cancel left to gateway shutdown")
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.cancels.Add(1)
	go func() {
		defer m.cancels.Done()
		if err := m.gateway.Cancel(ctx, orderID); err != nil {
			metrics.CancelFailures.Inc()
			m.log.Error().Err(err).Str("order_id", orderID).Msg("cancel request failed")
		}
	}()
}
