package md

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
	"github.com/rs/zerolog"
)

type BarHandler func(Bar)

// StartStream subscribes to live minute bars for symbol and blocks until ctx
// is done.
func StartStream(ctx context.Context, log zerolog.Logger, apiKey, apiSecret, feed, symbol string, handler BarHandler) error {
	client := stream.NewStocksClient(
		parseFeed(feed),
		stream.WithCredentials(apiKey, apiSecret),
	)

	// Connect must be called before subscribing in this SDK version.
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect market data stream: %w", err)
	}

	if err := client.SubscribeToBars(func(bar stream.Bar) {
		log.Debug().Str("symbol", bar.Symbol).Time("timestamp", bar.Timestamp).Float64("close", bar.Close).Msg("bar received")
		handler(Bar{
			Symbol:    bar.Symbol,
			Timestamp: bar.Timestamp,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Volume:    bar.Volume,
		})
	}, symbol); err != nil {
		return fmt.Errorf("subscribe to bars: %w", err)
	}

	log.Info().Str("symbol", symbol).Str("feed", feed).Msg("subscribed to bars")

	<-ctx.Done()
	return ctx.Err()
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	case "test":
		return "test"
	default:
		return marketdata.IEX
	}
}
