// Command backtest replays historical Crypto.com candles through the
// decision engine and prints a performance summary.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/mohameddodda/paper-trading-bot/config"
	"github.com/mohameddodda/paper-trading-bot/internal/backtest"
	"github.com/mohameddodda/paper-trading-bot/internal/cryptocom"
	"github.com/mohameddodda/paper-trading-bot/internal/logging"
)

// Options are read from BACKTEST_* environment variables
type Options struct {
	Timeframe string   `default:"1m"`
	Count     int      `default:"300"`
	Symbols   []string `split_words:"true"`
	Mock      bool
	Seed      int64 `default:"42"`
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logging.Fatal("Failed to load configuration", "error", err)
	}

	var opts Options
	if err := envconfig.Process("BACKTEST", &opts); err != nil {
		logging.Fatal("Invalid backtest options", "error", err)
	}

	logger := logging.New(&logging.Config{
		Level:     cfg.LoggingConfig.Level,
		Output:    "stderr",
		Component: "backtest",
	})
	logging.SetDefault(logger)

	symbols := cfg.TradingConfig.Symbols
	if len(opts.Symbols) > 0 {
		symbols = opts.Symbols
	}

	var candles cryptocom.CandleSource
	if opts.Mock || cfg.ExchangeConfig.MockMode {
		candles = cryptocom.NewMockClient(symbols, opts.Seed)
	} else {
		candles = cryptocom.NewClient(
			cfg.ExchangeConfig.BaseURL,
			symbols,
			time.Duration(cfg.ExchangeConfig.TimeoutSeconds)*time.Second,
			nil,
			logger.Zerolog(),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	series, err := backtest.LoadSeries(ctx, candles, symbols, opts.Timeframe, opts.Count)
	if err != nil {
		logger.Fatal("Failed to load candles", "error", err)
	}

	step, err := time.ParseDuration(opts.Timeframe)
	if err != nil {
		step = time.Minute
	}

	trading := cfg.TradingConfig
	trading.Symbols = symbols
	result, err := backtest.Run(ctx, backtest.Config{Trading: trading, Step: step}, series, logger.Zerolog())
	if err != nil {
		logger.Fatal("Backtest failed", "error", err)
	}

	backtest.PrintResults(os.Stdout, result)
}
