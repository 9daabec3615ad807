package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	TradingConfig      TradingConfig      `json:"trading" envconfig:"TRADING"`
	ExchangeConfig     ExchangeConfig     `json:"exchange" envconfig:"EXCHANGE"`
	AIConfig           AIConfig           `json:"ai" envconfig:"AI"`
	DatabaseConfig     DatabaseConfig     `json:"database" envconfig:"DB"`
	RedisConfig        RedisConfig        `json:"redis" envconfig:"REDIS"`
	ServerConfig       ServerConfig       `json:"server" envconfig:"SERVER"`
	NotificationConfig NotificationConfig `json:"notification" envconfig:"NOTIFY"`
	LoggingConfig      LoggingConfig      `json:"logging" envconfig:"LOG"`
}

// TradingConfig holds the decision engine parameters. It is read-only once
// the engine is constructed.
type TradingConfig struct {
	Symbols                []string `json:"symbols" split_words:"true"`
	StartingCash           float64  `json:"starting_cash" split_words:"true"`
	TickIntervalSeconds    int      `json:"tick_interval_seconds" split_words:"true"`
	CooldownSeconds        int      `json:"cooldown_seconds" split_words:"true"` // set on buy and cleared by a full sell, so it never delays a re-entry
	MaxRiskPct             float64  `json:"max_risk_pct" split_words:"true"`
	DefaultRiskPct         float64  `json:"default_risk_pct" split_words:"true"` // used when history is too short to estimate
	BaseStopLossPct        float64  `json:"base_stop_loss_pct" split_words:"true"`
	BaseTakeProfitPct      float64  `json:"base_take_profit_pct" split_words:"true"`
	BuyDropPct             float64  `json:"buy_drop_pct" split_words:"true"`
	MinVolatility          float64  `json:"min_volatility" split_words:"true"`
	MaxVolatility          float64  `json:"max_volatility" split_words:"true"`
	VolatilityWindow       int      `json:"volatility_window" split_words:"true"`
	HistoryCapacity        int      `json:"history_capacity" split_words:"true"`
	MinHistory             int      `json:"min_history" split_words:"true"`
	MinTradeUSD            float64  `json:"min_trade_usd" split_words:"true"`
	MaxDrawdownPct         float64  `json:"max_drawdown_pct" split_words:"true"`
	PartialSellFraction    float64  `json:"partial_sell_fraction" split_words:"true"`
	AIConsultInterval      int      `json:"ai_consult_interval" split_words:"true"`
	AdvisoryTimeoutSeconds int      `json:"advisory_timeout_seconds" split_words:"true"`
	ForceBuyPct            float64  `json:"force_buy_pct" split_words:"true"`
	ForceBuyMaxUSD         float64  `json:"force_buy_max_usd" split_words:"true"`
	RecentTradesLimit      int      `json:"recent_trades_limit" split_words:"true"`
	AutoStart              bool     `json:"auto_start" split_words:"true"`
}

func (t TradingConfig) TickInterval() time.Duration {
	return time.Duration(t.TickIntervalSeconds) * time.Second
}

func (t TradingConfig) Cooldown() time.Duration {
	return time.Duration(t.CooldownSeconds) * time.Second
}

func (t TradingConfig) AdvisoryTimeout() time.Duration {
	return time.Duration(t.AdvisoryTimeoutSeconds) * time.Second
}

type ExchangeConfig struct {
	BaseURL        string `json:"base_url" split_words:"true"`
	MockMode       bool   `json:"mock_mode" split_words:"true"` // random-walk prices, no network
	TimeoutSeconds int    `json:"timeout_seconds" split_words:"true"`
}

// AIConfig configures the advisory model. APIKey is passed through untouched.
type AIConfig struct {
	Enabled           bool    `json:"enabled" split_words:"true"`
	APIKey            string  `json:"api_key" split_words:"true"`
	Endpoint          string  `json:"endpoint" split_words:"true"`
	Model             string  `json:"model" split_words:"true"`
	MaxTokens         int     `json:"max_tokens" split_words:"true"`
	Temperature       float64 `json:"temperature" split_words:"true"`
	MaxRetries        int     `json:"max_retries" split_words:"true"`
	RequestsPerMinute int     `json:"requests_per_minute" split_words:"true"`
	Referer           string  `json:"referer" split_words:"true"`
	Title             string  `json:"title" split_words:"true"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled" split_words:"true"`
	Host     string `json:"host" split_words:"true"`
	Port     int    `json:"port" split_words:"true"`
	User     string `json:"user" split_words:"true"`
	Password string `json:"password" split_words:"true"`
	Database string `json:"database" split_words:"true"`
	SSLMode  string `json:"ssl_mode" split_words:"true"`
}

type RedisConfig struct {
	Enabled            bool   `json:"enabled" split_words:"true"`
	Address            string `json:"address" split_words:"true"`
	Password           string `json:"password" split_words:"true"`
	DB                 int    `json:"db" split_words:"true"`
	PoolSize           int    `json:"pool_size" split_words:"true"`
	SnapshotTTLSeconds int    `json:"snapshot_ttl_seconds" split_words:"true"`
}

type ServerConfig struct {
	Enabled            bool     `json:"enabled" split_words:"true"`
	Port               int      `json:"port" split_words:"true"`
	AllowedOrigins     []string `json:"allowed_origins" split_words:"true"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute" split_words:"true"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled" split_words:"true"`
	Telegram TelegramConfig `json:"telegram" envconfig:"TELEGRAM"`
	Discord  DiscordConfig  `json:"discord" envconfig:"DISCORD"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled" split_words:"true"`
	BotToken string `json:"bot_token" split_words:"true"`
	ChatID   string `json:"chat_id" split_words:"true"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled" split_words:"true"`
	WebhookURL string `json:"webhook_url" split_words:"true"`
}

type LoggingConfig struct {
	Level      string `json:"level" split_words:"true"`  // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output" split_words:"true"` // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format" split_words:"true"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		TradingConfig: TradingConfig{
			Symbols: []string{
				"BTC_USDT", "ETH_USDT", "SOL_USDT", "DOGE_USDT",
				"SHIB_USDT", "CRO_USDT", "XRP_USDT", "ADA_USDT",
			},
			StartingCash:           1_000_000,
			TickIntervalSeconds:    10,
			CooldownSeconds:        300,
			MaxRiskPct:             0.03,
			DefaultRiskPct:         0.02,
			BaseStopLossPct:        -0.05,
			BaseTakeProfitPct:      0.10,
			BuyDropPct:             -0.02,
			MinVolatility:          0.01,
			MaxVolatility:          0.05,
			VolatilityWindow:       10,
			HistoryCapacity:        100,
			MinHistory:             3,
			MinTradeUSD:            10,
			MaxDrawdownPct:         0.20,
			PartialSellFraction:    0.5,
			AIConsultInterval:      15,
			AdvisoryTimeoutSeconds: 8,
			ForceBuyPct:            0.03,
			ForceBuyMaxUSD:         1000,
			RecentTradesLimit:      100,
		},
		ExchangeConfig: ExchangeConfig{
			BaseURL:        "https://api.crypto.com/exchange/v1",
			TimeoutSeconds: 10,
		},
		AIConfig: AIConfig{
			Endpoint:          "https://openrouter.ai/api/v1/chat/completions",
			Model:             "deepseek/deepseek-chat",
			MaxTokens:         80,
			Temperature:       0,
			MaxRetries:        3,
			RequestsPerMinute: 60,
			Referer:           "https://github.com/mohameddodda/paper-trading-bot",
			Title:             "Paper Trading Bot",
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "trader",
			Database: "paper_trading",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Address:            "localhost:6379",
			PoolSize:           10,
			SnapshotTTLSeconds: 3600,
		},
		ServerConfig: ServerConfig{
			Enabled:            true,
			Port:               8080,
			AllowedOrigins:     []string{"*"},
			RateLimitPerMinute: 120,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}
}

// Load builds the configuration from defaults, an optional JSON file, a .env
// file and the environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// Validate checks the trading parameters for values the engine cannot run with
func (c *Config) Validate() error {
	t := c.TradingConfig
	switch {
	case len(t.Symbols) == 0:
		return errors.New("config: at least one symbol is required")
	case t.StartingCash <= 0:
		return fmt.Errorf("config: starting_cash must be positive, got %v", t.StartingCash)
	case t.MaxRiskPct <= 0 || t.MaxRiskPct > 1:
		return fmt.Errorf("config: max_risk_pct must be in (0,1], got %v", t.MaxRiskPct)
	case t.BaseStopLossPct >= 0:
		return fmt.Errorf("config: base_stop_loss_pct must be negative, got %v", t.BaseStopLossPct)
	case t.BaseTakeProfitPct <= 0:
		return fmt.Errorf("config: base_take_profit_pct must be positive, got %v", t.BaseTakeProfitPct)
	case t.MaxDrawdownPct <= 0 || t.MaxDrawdownPct >= 1:
		return fmt.Errorf("config: max_drawdown_pct must be in (0,1), got %v", t.MaxDrawdownPct)
	case t.MinVolatility <= 0 || t.MaxVolatility < t.MinVolatility:
		return fmt.Errorf("config: invalid volatility clamp [%v, %v]", t.MinVolatility, t.MaxVolatility)
	case t.PartialSellFraction <= 0 || t.PartialSellFraction > 1:
		return fmt.Errorf("config: partial_sell_fraction must be in (0,1], got %v", t.PartialSellFraction)
	case t.HistoryCapacity < t.MinHistory || t.MinHistory < 2:
		return fmt.Errorf("config: history_capacity %d must be >= min_history %d >= 2", t.HistoryCapacity, t.MinHistory)
	case t.VolatilityWindow < 1:
		return fmt.Errorf("config: volatility_window must be positive, got %d", t.VolatilityWindow)
	case t.TickIntervalSeconds <= 0:
		return fmt.Errorf("config: tick_interval_seconds must be positive, got %d", t.TickIntervalSeconds)
	case !(t.ForceBuyPct > 0) || t.ForceBuyPct > 1:
		return fmt.Errorf("config: force_buy_pct must be in (0,1], got %v", t.ForceBuyPct)
	case !(t.ForceBuyMaxUSD > 0):
		return fmt.Errorf("config: force_buy_max_usd must be positive, got %v", t.ForceBuyMaxUSD)
	case t.CooldownSeconds < 0 || t.MinTradeUSD < 0 || t.AIConsultInterval < 1:
		return errors.New("config: cooldown_seconds, min_trade_usd must be >= 0 and ai_consult_interval >= 1")
	}
	return nil
}
