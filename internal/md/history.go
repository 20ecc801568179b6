package md

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// History loads historical bars for warm-up and replay runs.
type History struct {
	client *marketdata.Client
	feed   string
}

func NewHistory(apiKey, apiSecret, feed string) *History {
	return &History{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		feed: feed,
	}
}

// HourlyBars returns hourly bars for symbol in [start, end), oldest first.
func (h *History) HourlyBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := h.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneHour,
		Start:     start,
		End:       end,
		Feed:      parseFeed(h.feed),
	})
	if err != nil {
		return nil, fmt.Errorf("get bars %s: %w", symbol, err)
	}
	bars := make([]Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, Bar{
			Symbol:    symbol,
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return bars, nil
}

// Replay hands bars to handler in order, stopping early if ctx is done.
func Replay(ctx context.Context, bars []Bar, handler BarHandler) error {
	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return err
		}
		handler(bar)
	}
	return nil
}
