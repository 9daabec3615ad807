package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohameddodda/paper-trading-bot/config"
	"github.com/mohameddodda/paper-trading-bot/internal/ai/llm"
	"github.com/mohameddodda/paper-trading-bot/internal/api"
	"github.com/mohameddodda/paper-trading-bot/internal/bot"
	"github.com/mohameddodda/paper-trading-bot/internal/cache"
	"github.com/mohameddodda/paper-trading-bot/internal/cryptocom"
	"github.com/mohameddodda/paper-trading-bot/internal/database"
	"github.com/mohameddodda/paper-trading-bot/internal/events"
	"github.com/mohameddodda/paper-trading-bot/internal/logging"
	"github.com/mohameddodda/paper-trading-bot/internal/metrics"
	"github.com/mohameddodda/paper-trading-bot/internal/notification"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Fatal("Failed to load configuration", "error", err)
	}

	logger := logging.New(&logging.Config{
		Level:      cfg.LoggingConfig.Level,
		Output:     cfg.LoggingConfig.Output,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	zl := logger.Zerolog()
	logger.Info("Structured logging initialized", "symbols", len(cfg.TradingConfig.Symbols))

	eventBus := events.NewEventBus()

	// Redis cache, degraded to memory when unreachable
	marketCache := cache.NewMarketCache(cfg.RedisConfig, zl)
	defer marketCache.Close()

	// Price source
	var prices cryptocom.PriceSource
	if cfg.ExchangeConfig.MockMode {
		prices = cryptocom.NewMockClient(cfg.TradingConfig.Symbols, time.Now().UnixNano())
		logger.Warn("Using mock market data")
	} else {
		prices = cryptocom.NewClient(
			cfg.ExchangeConfig.BaseURL,
			cfg.TradingConfig.Symbols,
			time.Duration(cfg.ExchangeConfig.TimeoutSeconds)*time.Second,
			marketCache,
			zl,
		)
	}

	engineOpts := []bot.Option{
		bot.WithPublisher(eventBus),
		bot.WithLogger(zl),
	}

	// Advisory model
	if cfg.AIConfig.Enabled && cfg.AIConfig.APIKey != "" {
		client := llm.NewClient(&llm.ClientConfig{
			Endpoint:    cfg.AIConfig.Endpoint,
			APIKey:      cfg.AIConfig.APIKey,
			Model:       cfg.AIConfig.Model,
			MaxTokens:   cfg.AIConfig.MaxTokens,
			Temperature: cfg.AIConfig.Temperature,
			Timeout:     cfg.TradingConfig.AdvisoryTimeout(),
			Referer:     cfg.AIConfig.Referer,
			Title:       cfg.AIConfig.Title,
		})
		advCfg := llm.DefaultAdvisorConfig()
		advCfg.Retry.MaxAttempts = cfg.AIConfig.MaxRetries
		advCfg.RequestsPerMinute = cfg.AIConfig.RequestsPerMinute
		advCfg.Burst = len(cfg.TradingConfig.Symbols)
		engineOpts = append(engineOpts, bot.WithAdvisor(llm.NewAdvisor(client, client.Model(), advCfg)))
		logger.Info("Advisory enabled", "model", cfg.AIConfig.Model)
	} else {
		logger.Info("Advisory disabled, trading on rules only")
	}

	engine := bot.NewEngine(cfg.TradingConfig, prices, engineOpts...)

	// Sinks
	m := metrics.New()
	m.Subscribe(eventBus)

	notifyManager := notification.NewManagerFromConfig(cfg.NotificationConfig, zl)
	if notifyManager.Enabled() {
		notifyManager.Subscribe(eventBus)
		logger.Info("Notifications enabled")
	}

	eventBus.Subscribe(events.EventTickCompleted, func(events.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := marketCache.SaveSnapshot(ctx, engine.Status()); err != nil {
			logger.Debug("Snapshot not cached", "error", err)
		}
	})

	eventBus.SubscribeAll(func(e events.Event) {
		if e.Type == events.EventTradeExecuted && e.Trade != nil {
			logging.TradeContext(e.Trade.Symbol, e.Trade.Side, e.Trade.Quantity, e.Trade.Price).
				Info("Trade recorded", "reason", e.Trade.Reason, "cash", e.Trade.ResultingCash)
		}
	})

	serverOpts := []api.Option{
		api.WithLogger(zl),
		api.WithMetrics(m.Handler()),
	}
	if cfg.RedisConfig.Enabled {
		serverOpts = append(serverOpts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			if !marketCache.IsHealthy() {
				return cache.ErrDegraded
			}
			return nil
		}))
	}

	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(context.Background(), cfg.DatabaseConfig, zl)
		if err != nil {
			logger.Error("Database unavailable, trades will not be journaled", "error", err)
		} else {
			defer db.Close()
			if err := db.RunMigrations(context.Background()); err != nil {
				logger.Fatal("Failed to run migrations", "error", err)
			}
			repo := database.NewRepository(db)
			database.NewTradeSink(repo, zl).Subscribe(eventBus)
			serverOpts = append(serverOpts,
				api.WithTradeStore(repo),
				api.WithHealthCheck("database", repo.HealthCheck),
			)
		}
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		hub := api.NewWSHub(zl)
		go hub.Run()
		hub.Subscribe(eventBus)
		serverOpts = append(serverOpts, api.WithHub(hub))

		server = api.NewServer(cfg.ServerConfig, engine, serverOpts...)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("HTTP server failed", "error", err)
			}
		}()
	}

	if cfg.TradingConfig.AutoStart || server == nil {
		if err := engine.Start(); err != nil {
			logger.Fatal("Failed to start engine", "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down web server", "error", err)
		}
	}

	if engine.IsRunning() {
		if err := engine.Stop(); err != nil {
			logger.Error("Error stopping engine", "error", err)
		}
	}

	st := engine.Status()
	logger.Info("Final state", "cash", st.Cash, "equity", st.Equity, "return_pct", st.ReturnPct)

	eventBus.Wait()
	logger.Info("Shutdown complete")
}
