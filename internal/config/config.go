package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"fxtrend/internal/strategy"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeStream Mode = "stream"
	ModePaper  Mode = "paper"
	ModeReplay Mode = "replay"
)

type Config struct {
	Mode        Mode   `yaml:"mode"`
	Symbol      string `yaml:"symbol"`
	Feed        string `yaml:"feed"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	Period          time.Duration `yaml:"period"`
	FastWindow      int           `yaml:"fast_window"`
	SlowWindow      int           `yaml:"slow_window"`
	DailyFastWindow int           `yaml:"daily_fast_window"`
	DailySlowWindow int           `yaml:"daily_slow_window"`
	StochPeriod     int           `yaml:"stoch_period"`
	StochKPeriod    int           `yaml:"stoch_k_period"`
	StochDPeriod    int           `yaml:"stoch_d_period"`

	TrendPeriods      int     `yaml:"trend_periods"`
	DailyTrendPeriods int     `yaml:"daily_trend_periods"`
	MultiTimeframe    bool    `yaml:"multi_timeframe"`
	TradeLimit        int     `yaml:"trade_limit"`
	MaxHolding        int     `yaml:"max_holding"`
	TradeSize         int     `yaml:"trade_size"`
	OverboughtLevel   float64 `yaml:"overbought_level"`
	OversoldLevel     float64 `yaml:"oversold_level"`
	TakeProfitOffset  float64 `yaml:"take_profit_offset"`
	StopLossOffset    float64 `yaml:"stop_loss_offset"`
	PricePrecision    int     `yaml:"price_precision"`
	FillPolicy        string  `yaml:"fill_policy"`

	KillSwitch        bool          `yaml:"kill_switch"`
	MaxNotional       float64       `yaml:"max_notional"`
	MaxOpenBrackets   int           `yaml:"max_open_brackets"`
	TimeInForce       string        `yaml:"time_in_force"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`

	ReplayStart string `yaml:"replay_start"`
	ReplayEnd   string `yaml:"replay_end"`

	DecisionsPath string `yaml:"decisions_path"`
	PaperBaseURL  string `yaml:"paper_base_url"`
	APIKey        string `yaml:"-"`
	APISecret     string `yaml:"-"`
}

// Defaults returns the hourly EURUSD-style configuration.
func Defaults() Config {
	return Config{
		Mode:              ModeStream,
		LogLevel:          "info",
		MetricsAddr:       ":9102",
		Period:            time.Hour,
		FastWindow:        50,
		SlowWindow:        200,
		DailyFastWindow:   7,
		DailySlowWindow:   21,
		StochPeriod:       9,
		StochKPeriod:      9,
		StochDPeriod:      5,
		TrendPeriods:      17,
		DailyTrendPeriods: 4,
		TradeLimit:        3,
		MaxHolding:        0,
		TradeSize:         5000,
		OverboughtLevel:   80,
		OversoldLevel:     20,
		TakeProfitOffset:  0.0007,
		StopLossOffset:    0.0017,
		PricePrecision:    4,
		FillPolicy:        "filled",
		TimeInForce:       "gtc",
		RequestsPerSecond: 3,
		ReconcileInterval: 10 * time.Second,
		DecisionsPath:     "decisions.ndjson",
		PaperBaseURL:      "https://paper-api.alpaca.markets",
	}
}

// Load builds the configuration from defaults, an optional YAML file given by
// --config, and command-line flags, in increasing precedence. Credentials
// come from the environment, which may be seeded from .env.
func Load() (Config, error) {
	loadDotEnvIfPresent(".env")

	cfg := Defaults()
	if path := configPathFromArgs(os.Args[1:]); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	var mode string
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.StringVar(&mode, "mode", string(cfg.Mode), "run mode: stream, paper or replay")
	flag.StringVar(&cfg.Symbol, "symbol", cfg.Symbol, "trading symbol")
	flag.StringVar(&cfg.Feed, "feed", cfg.Feed, "market data feed: iex, sip or test")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "prometheus listen address, empty to disable")
	flag.DurationVar(&cfg.Period, "period", cfg.Period, "trading period length")
	flag.IntVar(&cfg.FastWindow, "fast-window", cfg.FastWindow, "fast SMA window in periods")
	flag.IntVar(&cfg.SlowWindow, "slow-window", cfg.SlowWindow, "slow SMA window in periods")
	flag.IntVar(&cfg.DailyFastWindow, "daily-fast-window", cfg.DailyFastWindow, "daily fast SMA window in days")
	flag.IntVar(&cfg.DailySlowWindow, "daily-slow-window", cfg.DailySlowWindow, "daily slow SMA window in days")
	flag.IntVar(&cfg.StochPeriod, "stoch-period", cfg.StochPeriod, "stochastic lookback")
	flag.IntVar(&cfg.StochKPeriod, "stoch-k-period", cfg.StochKPeriod, "stochastic %K smoothing")
	flag.IntVar(&cfg.StochDPeriod, "stoch-d-period", cfg.StochDPeriod, "stochastic %D smoothing")
	flag.IntVar(&cfg.TrendPeriods, "trend-periods", cfg.TrendPeriods, "periods before a trend is confirmed")
	flag.IntVar(&cfg.DailyTrendPeriods, "daily-trend-periods", cfg.DailyTrendPeriods, "days before the daily trend is confirmed")
	flag.BoolVar(&cfg.MultiTimeframe, "multi-timeframe", cfg.MultiTimeframe, "require daily trend confirmation")
	flag.IntVar(&cfg.TradeLimit, "trade-limit", cfg.TradeLimit, "entries allowed per trend")
	flag.IntVar(&cfg.MaxHolding, "max-holding", cfg.MaxHolding, "max holdings per direction before entering")
	flag.IntVar(&cfg.TradeSize, "trade-size", cfg.TradeSize, "units per entry")
	flag.Float64Var(&cfg.OverboughtLevel, "overbought", cfg.OverboughtLevel, "stochastic overbought level")
	flag.Float64Var(&cfg.OversoldLevel, "oversold", cfg.OversoldLevel, "stochastic oversold level")
	flag.Float64Var(&cfg.TakeProfitOffset, "tp-offset", cfg.TakeProfitOffset, "take-profit offset from close")
	flag.Float64Var(&cfg.StopLossOffset, "sl-offset", cfg.StopLossOffset, "stop-loss offset from close")
	flag.IntVar(&cfg.PricePrecision, "price-precision", cfg.PricePrecision, "decimal places of order prices")
	flag.StringVar(&cfg.FillPolicy, "fill-policy", cfg.FillPolicy, "fills that retire a bracket: filled or any")
	flag.BoolVar(&cfg.KillSwitch, "kill-switch", cfg.KillSwitch, "if true, never place orders")
	flag.Float64Var(&cfg.MaxNotional, "max-notional", cfg.MaxNotional, "max notional per entry, 0 for no limit")
	flag.IntVar(&cfg.MaxOpenBrackets, "max-open-brackets", cfg.MaxOpenBrackets, "max working brackets, 0 for no limit")
	flag.StringVar(&cfg.TimeInForce, "time-in-force", cfg.TimeInForce, "time in force: day or gtc")
	flag.Float64Var(&cfg.RequestsPerSecond, "requests-per-second", cfg.RequestsPerSecond, "broker REST request rate")
	flag.DurationVar(&cfg.ReconcileInterval, "reconcile-interval", cfg.ReconcileInterval, "reconciliation interval")
	flag.StringVar(&cfg.ReplayStart, "replay-start", cfg.ReplayStart, "replay start date (YYYY-MM-DD)")
	flag.StringVar(&cfg.ReplayEnd, "replay-end", cfg.ReplayEnd, "replay end date (YYYY-MM-DD)")
	flag.StringVar(&cfg.DecisionsPath, "decisions-path", cfg.DecisionsPath, "path to decisions log")
	flag.StringVar(&cfg.PaperBaseURL, "paper-base-url", cfg.PaperBaseURL, "paper trading base URL")
	flag.Parse()

	cfg.Mode = Mode(mode)
	cfg.APIKey = os.Getenv("APCA_API_KEY_ID")
	cfg.APISecret = os.Getenv("APCA_API_SECRET_KEY")

	if cfg.Symbol == "" {
		cfg.Symbol = "FAKEPACA"
		if cfg.Mode != ModeStream {
			cfg.Symbol = "EURUSD"
		}
	}
	if cfg.Feed == "" {
		cfg.Feed = "iex"
		if cfg.Mode == ModeStream {
			cfg.Feed = "test"
		}
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// ReplayRange parses the replay window.
func (c Config) ReplayRange() (time.Time, time.Time, error) {
	start, err := time.Parse(time.DateOnly, c.ReplayStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("replay-start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, c.ReplayEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("replay-end: %w", err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("replay-end must be after replay-start")
	}
	return start, end, nil
}

// StrategyParams converts the evaluator settings.
func (c Config) StrategyParams() strategy.Params {
	return strategy.Params{
		TrendPeriods:      c.TrendPeriods,
		DailyTrendPeriods: c.DailyTrendPeriods,
		MultiTimeframe:    c.MultiTimeframe,
		TradeLimit:        c.TradeLimit,
		MaxHolding:        c.MaxHolding,
		TradeSize:         c.TradeSize,
		OverboughtLevel:   c.OverboughtLevel,
		OversoldLevel:     c.OversoldLevel,
		TakeProfitOffset:  decimal.NewFromFloat(c.TakeProfitOffset),
		StopLossOffset:    decimal.NewFromFloat(c.StopLossOffset),
		PricePrecision:    int32(c.PricePrecision),
	}
}

func validate(cfg Config) error {
	if cfg.Mode != ModeStream && cfg.Mode != ModePaper && cfg.Mode != ModeReplay {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		if cfg.Mode != ModeStream {
			return fmt.Errorf("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required in %s mode", cfg.Mode)
		}
	}
	if cfg.Period <= 0 {
		return fmt.Errorf("period must be > 0")
	}
	if cfg.FastWindow <= 0 || cfg.SlowWindow <= cfg.FastWindow {
		return fmt.Errorf("windows must satisfy 0 < fast-window < slow-window")
	}
	if cfg.DailyFastWindow <= 0 || cfg.DailySlowWindow <= cfg.DailyFastWindow {
		return fmt.Errorf("windows must satisfy 0 < daily-fast-window < daily-slow-window")
	}
	if cfg.StochPeriod <= 0 || cfg.StochKPeriod <= 0 || cfg.StochDPeriod <= 0 {
		return fmt.Errorf("stochastic periods must be > 0")
	}
	if cfg.OversoldLevel >= cfg.OverboughtLevel {
		return fmt.Errorf("oversold must be below overbought")
	}
	if cfg.TrendPeriods <= 0 || cfg.DailyTrendPeriods <= 0 {
		return fmt.Errorf("trend periods must be > 0")
	}
	if cfg.TradeLimit <= 0 {
		return fmt.Errorf("trade-limit must be > 0")
	}
	if cfg.MaxHolding < 0 {
		return fmt.Errorf("max-holding must be >= 0")
	}
	if cfg.TradeSize <= 0 {
		return fmt.Errorf("trade-size must be > 0")
	}
	if cfg.TakeProfitOffset <= 0 || cfg.StopLossOffset <= 0 {
		return fmt.Errorf("tp-offset and sl-offset must be > 0")
	}
	if cfg.PricePrecision < 0 {
		return fmt.Errorf("price-precision must be >= 0")
	}
	if cfg.FillPolicy != "filled" && cfg.FillPolicy != "any" {
		return fmt.Errorf("invalid fill-policy: %s", cfg.FillPolicy)
	}
	if cfg.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests-per-second must be > 0")
	}
	if cfg.ReconcileInterval <= 0 {
		return fmt.Errorf("reconcile-interval must be > 0")
	}
	if cfg.Mode == ModeReplay {
		if _, _, err := cfg.ReplayRange(); err != nil {
			return err
		}
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// configPathFromArgs finds --config before flag parsing so the file can seed
// the flag defaults.
func configPathFromArgs(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func loadDotEnvIfPresent(path string) {
	if err := loadDotEnv(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", path, err)
	}
}

// loadDotEnv sets variables from path without overriding the environment.
func loadDotEnv(path string) error {
	return godotenv.Load(path)
}
