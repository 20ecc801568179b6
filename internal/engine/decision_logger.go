package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"
	"time"

	"fxtrend/internal/strategy"

	"github.com/rs/zerolog"
)

// Decision is one NDJSON line per closed period.
type Decision struct {
	RunID           string             `json:"run_id"`
	Timestamp       time.Time          `json:"timestamp"`
	PeriodStart     time.Time          `json:"period_start"`
	Symbol          string             `json:"symbol"`
	Close           float64            `json:"close"`
	Fast            float64            `json:"fast_sma"`
	Slow            float64            `json:"slow_sma"`
	DailyFast       float64            `json:"daily_fast_sma,omitempty"`
	DailySlow       float64            `json:"daily_slow_sma,omitempty"`
	StochD          float64            `json:"stoch_d"`
	Trend           int                `json:"trend"`
	DailyTrend      int                `json:"daily_trend"`
	TradesThisTrend int                `json:"trades_this_trend"`
	Holdings        int                `json:"holdings"`
	Direction       strategy.Direction `json:"direction"`
	Result          string             `json:"result"`
	Reason          string             `json:"reason,omitempty"`
	TakeProfit      string             `json:"take_profit,omitempty"`
	StopLoss        string             `json:"stop_loss,omitempty"`
	EntryOrderID    string             `json:"entry_order_id,omitempty"`
	TakeProfitID    string             `json:"take_profit_id,omitempty"`
	StopLossID      string             `json:"stop_loss_id,omitempty"`
}

type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	log    zerolog.Logger
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string, log zerolog.Logger) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
		log:    log.With().Str("component", "decisions").Logger(),
	}, nil
}

func (d *DecisionLogger) RunID() string {
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	decision.RunID = d.runID
	payload, err := json.Marshal(decision)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to marshal decision")
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		d.log.Error().Err(err).Msg("failed to write decision")
		return
	}
	if err := d.writer.Flush(); err != nil {
		d.log.Error().Err(err).Msg("failed to flush decision log")
	}
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
