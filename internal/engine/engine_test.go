package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fxtrend/internal/bracket"
	"fxtrend/internal/broker"
	"fxtrend/internal/config"
	"fxtrend/internal/md"
	"fxtrend/internal/risk"
	"fxtrend/internal/state"
	"fxtrend/internal/strategy"

	"github.com/rs/zerolog"
)

// Windows small enough that four hourly bars produce a long entry:
// closes rise every hour, the third bar closes near its range low and the
// fourth recovers out of the oversold zone.
func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.FastWindow = 1
	cfg.SlowWindow = 2
	cfg.StochPeriod = 2
	cfg.StochKPeriod = 1
	cfg.StochDPeriod = 1
	cfg.TrendPeriods = 2
	cfg.TradeSize = 1000
	return cfg
}

func testBars() []md.Bar {
	start := time.Date(2018, 3, 5, 10, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return start.Add(time.Duration(h) * time.Hour) }
	return []md.Bar{
		{Symbol: "EURUSD", Timestamp: at(0), Open: 1.09, High: 1.10, Low: 1.09, Close: 1.095},
		{Symbol: "EURUSD", Timestamp: at(1), Open: 1.10, High: 1.12, Low: 1.10, Close: 1.11},
		{Symbol: "EURUSD", Timestamp: at(2), Open: 1.11, High: 1.30, Low: 1.111, Close: 1.112},
		{Symbol: "EURUSD", Timestamp: at(3), Open: 1.12, High: 1.35, Low: 1.113, Close: 1.20},
	}
}

type harness struct {
	engine    *Engine
	brackets  *bracket.Manager
	dry       *broker.DryRun
	decisions string
}

func newHarness(t *testing.T, cfg config.Config) harness {
	t.Helper()
	log := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "decisions.ndjson")
	decisions, err := NewDecisionLogger(path, "run-test", log)
	if err != nil {
		t.Fatalf("decision logger: %v", err)
	}
	t.Cleanup(func() { _ = decisions.Close() })

	dry := broker.NewDryRun(log)
	brackets := bracket.NewManager(dry, bracket.FillPolicyFilled, log)
	evaluator := strategy.NewEvaluator(cfg.StrategyParams())
	e := New(cfg, evaluator, brackets, risk.Gate{Log: log}, dry, state.NewStore(), decisions, log)
	return harness{engine: e, brackets: brackets, dry: dry, decisions: path}
}

func readDecisions(t *testing.T, path string) []Decision {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open decisions: %v", err)
	}
	defer file.Close()
	var out []Decision
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var raw map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &raw); err != nil {
			t.Fatalf("decode decision: %v", err)
		}
		d := Decision{}
		d.RunID, _ = raw["run_id"].(string)
		d.Result, _ = raw["result"].(string)
		d.Reason, _ = raw["reason"].(string)
		d.TakeProfit, _ = raw["take_profit"].(string)
		d.StopLoss, _ = raw["stop_loss"].(string)
		d.EntryOrderID, _ = raw["entry_order_id"].(string)
		d.TakeProfitID, _ = raw["take_profit_id"].(string)
		d.StopLossID, _ = raw["stop_loss_id"].(string)
		if dir, _ := raw["direction"].(string); dir == "LONG" {
			d.Direction = strategy.Long
		}
		out = append(out, d)
	}
	return out
}

func TestEngineEntersBracketOnRecoveryFromOversold(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	var last strategy.Decision
	for _, bar := range testBars() {
		last = h.engine.OnPeriod(ctx, bar)
	}

	if last.Direction != strategy.Long || !last.Opened {
		t.Fatalf("expected opened long, got %+v", last)
	}
	if last.Trend != 3 || last.TradesThisTrend != 1 {
		t.Fatalf("expected trend 3 with one trade, got trend=%d trades=%d", last.Trend, last.TradesThisTrend)
	}
	if got := last.Entry.TakeProfit.String(); got != "1.2007" {
		t.Fatalf("expected take-profit 1.2007, got %s", got)
	}
	if got := last.Entry.StopLoss.String(); got != "1.1983" {
		t.Fatalf("expected stop-loss 1.1983, got %s", got)
	}
	if h.brackets.Open() != 1 {
		t.Fatalf("expected one working bracket, got %d", h.brackets.Open())
	}
	if h.dry.CurrentQuantity() != 1000 {
		t.Fatalf("expected long 1000, got %d", h.dry.CurrentQuantity())
	}

	records := readDecisions(t, h.decisions)
	if len(records) != 4 {
		t.Fatalf("expected 4 decisions, got %d", len(records))
	}
	if records[0].Result != "skipped" || records[0].Reason != string(strategy.SkipNotReady) {
		t.Fatalf("expected warm-up skip, got %+v", records[0])
	}
	if records[1].Result != "no_signal" || records[2].Result != "no_signal" {
		t.Fatalf("expected no signal before recovery, got %q %q", records[1].Result, records[2].Result)
	}
	entry := records[3]
	if entry.Result != "order_submitted" || entry.Direction != strategy.Long || entry.RunID != "run-test" {
		t.Fatalf("unexpected entry record %+v", entry)
	}
	if entry.TakeProfit != "1.2007" || entry.StopLoss != "1.1983" {
		t.Fatalf("unexpected protective prices %+v", entry)
	}
	if sibling, ok := h.brackets.Sibling(entry.TakeProfitID); !ok || sibling != entry.StopLossID {
		t.Fatalf("expected take-profit paired with stop-loss, got %q ok=%v", sibling, ok)
	}
}

func TestEngineRepeatedPeriodIsSkipped(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	bars := testBars()
	for _, bar := range bars {
		h.engine.OnPeriod(ctx, bar)
	}

	again := h.engine.OnPeriod(ctx, bars[len(bars)-1])
	if again.Skipped != strategy.SkipAlreadyProcessed {
		t.Fatalf("expected already processed, got %q", again.Skipped)
	}
	if again.TradesThisTrend != 1 || h.brackets.Open() != 1 {
		t.Fatalf("expected no second entry, trades=%d open=%d", again.TradesThisTrend, h.brackets.Open())
	}
}

func TestEngineRiskRejectionDoesNotCountTrade(t *testing.T) {
	cfg := testConfig()
	cfg.KillSwitch = true
	h := newHarness(t, cfg)
	ctx := context.Background()

	var last strategy.Decision
	for _, bar := range testBars() {
		last = h.engine.OnPeriod(ctx, bar)
	}
	if last.Direction != strategy.Long || last.Opened {
		t.Fatalf("expected unopened long, got %+v", last)
	}
	if last.TradesThisTrend != 0 || h.brackets.Open() != 0 {
		t.Fatalf("expected nothing placed, trades=%d open=%d", last.TradesThisTrend, h.brackets.Open())
	}
	records := readDecisions(t, h.decisions)
	if got := records[len(records)-1]; got.Result != "rejected" || got.Reason == "" {
		t.Fatalf("expected rejected record with reason, got %+v", got)
	}
}

func TestEngineFillRetiresBracketAndShutdownLiquidates(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	for _, bar := range testBars() {
		h.engine.OnPeriod(ctx, bar)
	}
	records := readDecisions(t, h.decisions)
	entry := records[len(records)-1]

	h.engine.OnOrderEvent(ctx, bracket.OrderEvent{OrderID: entry.TakeProfitID, Status: bracket.StatusFilled, Type: bracket.OrderTypeLimit})
	if h.brackets.Open() != 0 {
		t.Fatalf("expected bracket retired, got %d open", h.brackets.Open())
	}
	if _, ok := h.brackets.Sibling(entry.StopLossID); ok {
		t.Fatalf("expected stop-loss unregistered")
	}

	if err := h.engine.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if h.dry.CurrentQuantity() != 0 {
		t.Fatalf("expected flat after shutdown, got %d", h.dry.CurrentQuantity())
	}
}

func TestEngineHoldingsBlockSecondEntry(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	bars := testBars()
	for _, bar := range bars {
		h.engine.OnPeriod(ctx, bar)
	}

	// Another dip and recovery in the same trend: holdings of 1000 exceed
	// the zero holding cap.
	next := bars[len(bars)-1]
	dip := md.Bar{Symbol: "EURUSD", Timestamp: next.Timestamp.Add(time.Hour), High: 1.90, Low: 1.20, Close: 1.205}
	rebound := md.Bar{Symbol: "EURUSD", Timestamp: next.Timestamp.Add(2 * time.Hour), High: 1.45, Low: 1.21, Close: 1.40}
	h.engine.OnPeriod(ctx, dip)
	last := h.engine.OnPeriod(ctx, rebound)
	if last.Direction != strategy.None {
		t.Fatalf("expected holding cap to block entry, got %s", last.Direction)
	}
	if h.brackets.Open() != 1 {
		t.Fatalf("expected one working bracket, got %d", h.brackets.Open())
	}
}

func TestEngineSimulatedTakeProfitAllowsSecondEntry(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()
	bars := testBars()
	for _, bar := range bars {
		h.engine.OnPeriod(ctx, bar)
	}
	first := readDecisions(t, h.decisions)[len(bars)-1]

	// The dip trades through the 1.2007 take-profit and stays above the
	// 1.1983 stop, then closes oversold; the next hour recovers.
	next := bars[len(bars)-1]
	dip := md.Bar{Symbol: "EURUSD", Timestamp: next.Timestamp.Add(time.Hour), High: 1.90, Low: 1.20, Close: 1.205}
	rebound := md.Bar{Symbol: "EURUSD", Timestamp: next.Timestamp.Add(2 * time.Hour), High: 1.45, Low: 1.21, Close: 1.40}

	h.engine.MatchBar(ctx, h.dry, dip)
	if h.brackets.Open() != 0 {
		t.Fatalf("expected take-profit fill to retire the pair, got %d open", h.brackets.Open())
	}
	if h.dry.CurrentQuantity() != 0 {
		t.Fatalf("expected flat after take-profit, got %d", h.dry.CurrentQuantity())
	}
	if h.dry.WorkingOrders() != 0 {
		t.Fatalf("expected stop-loss %s cancelled, %d orders working", first.StopLossID, h.dry.WorkingOrders())
	}

	h.engine.OnPeriod(ctx, dip)
	h.engine.MatchBar(ctx, h.dry, rebound)
	last := h.engine.OnPeriod(ctx, rebound)
	if last.Direction != strategy.Long || !last.Opened {
		t.Fatalf("expected second long entry, got %+v", last)
	}
	if last.TradesThisTrend != 2 || h.brackets.Open() != 1 {
		t.Fatalf("expected two trades and one working bracket, trades=%d open=%d", last.TradesThisTrend, h.brackets.Open())
	}
	if h.dry.CurrentQuantity() != 1000 || h.dry.WorkingOrders() != 2 {
		t.Fatalf("expected long 1000 with two working legs, got %d and %d", h.dry.CurrentQuantity(), h.dry.WorkingOrders())
	}
}
