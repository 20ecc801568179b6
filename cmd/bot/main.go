package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"fxtrend/internal/bracket"
	"fxtrend/internal/broker"
	"fxtrend/internal/config"
	"fxtrend/internal/engine"
	"fxtrend/internal/md"
	"fxtrend/internal/metrics"
	"fxtrend/internal/risk"
	"fxtrend/internal/state"
	"fxtrend/internal/strategy"
	"fxtrend/internal/util"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		util.NewLogger("info").Fatal().Err(err).Msg("config error")
	}
	log := util.NewLogger(cfg.LogLevel)

	runID := generateRunID()
	log = log.With().Str("run_id", runID).Logger()

	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID, log)
	if err != nil {
		log.Fatal().Err(err).Msg("decision logger error")
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close decision logger")
		}
	}()

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	policy, err := bracket.ParseFillPolicy(cfg.FillPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("fill policy error")
	}

	store := state.NewStore()
	var (
		gateway   bracket.Gateway
		portfolio engine.Portfolio
		live      *broker.Gateway
		client    *broker.Client
		dry       *broker.DryRun
	)
	if cfg.Mode == config.ModePaper {
		tif, err := broker.ParseTimeInForce(cfg.TimeInForce)
		if err != nil {
			log.Fatal().Err(err).Msg("time in force error")
		}
		client = broker.New(cfg.APIKey, cfg.APISecret, cfg.PaperBaseURL, cfg.RequestsPerSecond, log)
		live = broker.NewGateway(client, cfg.Symbol, tif, runID)
		gateway, portfolio = live, store
	} else {
		dry = broker.NewDryRun(log)
		gateway, portfolio = dry, dry
	}

	brackets := bracket.NewManager(gateway, policy, log)
	evaluator := strategy.NewEvaluator(cfg.StrategyParams())
	gate := risk.Gate{Log: log}
	engineImpl := engine.New(cfg, evaluator, brackets, gate, portfolio, store, decisions, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	// Order events and reconciliation stop before the end-of-run
	// liquidation so no fill races the shutdown.
	eventsCtx, stopEvents := context.WithCancel(ctx)
	defer stopEvents()
	var wg sync.WaitGroup
	if live != nil {
		wg.Add(2)
		go func() {
			defer wg.Done()
			engine.ReconcileLoop(eventsCtx, client, store, cfg.Symbol, cfg.ReconcileInterval, log)
		}()
		go func() {
			defer wg.Done()
			if err := live.Events(eventsCtx, func(event bracket.OrderEvent) {
				engineImpl.OnOrderEvent(eventsCtx, event)
			}); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("trade update stream stopped")
			}
		}()
	}

	periods := md.NewAggregator(cfg.Period)
	onBar := func(bar md.Bar) {
		if period, ok := periods.Add(bar); ok {
			engineImpl.OnPeriod(ctx, period)
		}
		if dry != nil {
			engineImpl.MatchBar(ctx, dry, bar)
		}
	}

	log.Info().Str("mode", string(cfg.Mode)).Str("symbol", cfg.Symbol).Str("feed", cfg.Feed).Dur("period", cfg.Period).Msg("starting bot")
	if err := run(ctx, cfg, onBar, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("market data stopped")
	}
	if period, ok := periods.Flush(); ok && ctx.Err() == nil {
		engineImpl.OnPeriod(ctx, period)
	}

	stopEvents()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := engineImpl.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("end of run liquidation failed")
	}
	log.Info().Int("open_brackets", brackets.Open()).Msg("bot shutdown complete")
}

func run(ctx context.Context, cfg config.Config, onBar md.BarHandler, log zerolog.Logger) error {
	if cfg.Mode != config.ModeReplay {
		return md.StartStream(ctx, log, cfg.APIKey, cfg.APISecret, cfg.Feed, cfg.Symbol, onBar)
	}
	start, end, err := cfg.ReplayRange()
	if err != nil {
		return err
	}
	bars, err := md.NewHistory(cfg.APIKey, cfg.APISecret, cfg.Feed).HourlyBars(ctx, cfg.Symbol, start, end)
	if err != nil {
		return err
	}
	log.Info().Int("bars", len(bars)).Time("start", start).Time("end", end).Msg("replaying history")
	return md.Replay(ctx, bars, onBar)
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	return timestamp + "-" + uuid.NewString()[:8]
}
