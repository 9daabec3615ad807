package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}
	if cfg.TradingConfig.StartingCash != 1_000_000 {
		t.Errorf("Expected starting cash 1000000, got %v", cfg.TradingConfig.StartingCash)
	}
	if len(cfg.TradingConfig.Symbols) != 8 {
		t.Errorf("Expected 8 default symbols, got %d", len(cfg.TradingConfig.Symbols))
	}
	if cfg.TradingConfig.Cooldown().Seconds() != 300 {
		t.Errorf("Expected 300s cooldown, got %v", cfg.TradingConfig.Cooldown())
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"trading": {"symbols": ["BTC_USDT"], "cooldown_seconds": 60}, "ai": {"model": "test-model"}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TRADING_COOLDOWN_SECONDS", "120")
	t.Setenv("TRADING_MAX_RISK_PCT", "0.05")
	t.Setenv("NOTIFY_TELEGRAM_CHAT_ID", "42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := cfg.TradingConfig.Symbols; len(got) != 1 || got[0] != "BTC_USDT" {
		t.Errorf("Expected symbols from file, got %v", got)
	}
	if cfg.TradingConfig.CooldownSeconds != 120 {
		t.Errorf("Expected env to override cooldown to 120, got %d", cfg.TradingConfig.CooldownSeconds)
	}
	if cfg.TradingConfig.MaxRiskPct != 0.05 {
		t.Errorf("Expected max risk 0.05, got %v", cfg.TradingConfig.MaxRiskPct)
	}
	if cfg.AIConfig.Model != "test-model" {
		t.Errorf("Expected model from file, got %s", cfg.AIConfig.Model)
	}
	if cfg.NotificationConfig.Telegram.ChatID != "42" {
		t.Errorf("Expected telegram chat id 42, got %s", cfg.NotificationConfig.Telegram.ChatID)
	}
	if cfg.TradingConfig.BaseTakeProfitPct != 0.10 {
		t.Errorf("Expected default take profit to survive, got %v", cfg.TradingConfig.BaseTakeProfitPct)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Expected missing file to be ignored, got %v", err)
	}
	if cfg.TradingConfig.MaxDrawdownPct != 0.20 {
		t.Errorf("Expected default drawdown 0.20, got %v", cfg.TradingConfig.MaxDrawdownPct)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TradingConfig)
	}{
		{"no symbols", func(c *TradingConfig) { c.Symbols = nil }},
		{"zero cash", func(c *TradingConfig) { c.StartingCash = 0 }},
		{"risk above one", func(c *TradingConfig) { c.MaxRiskPct = 1.5 }},
		{"positive stop loss", func(c *TradingConfig) { c.BaseStopLossPct = 0.05 }},
		{"negative take profit", func(c *TradingConfig) { c.BaseTakeProfitPct = -0.1 }},
		{"drawdown of one", func(c *TradingConfig) { c.MaxDrawdownPct = 1 }},
		{"inverted volatility clamp", func(c *TradingConfig) { c.MaxVolatility = 0.001 }},
		{"history shorter than minimum", func(c *TradingConfig) { c.HistoryCapacity = 2 }},
		{"zero consult interval", func(c *TradingConfig) { c.AIConsultInterval = 0 }},
		{"zero force buy fraction", func(c *TradingConfig) { c.ForceBuyPct = 0 }},
		{"force buy fraction above one", func(c *TradingConfig) { c.ForceBuyPct = 1.5 }},
		{"zero force buy cap", func(c *TradingConfig) { c.ForceBuyMaxUSD = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg.TradingConfig)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}
