package cache

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mohameddodda/paper-trading-bot/config"
)

func TestMarketCache_PricesInMemory(t *testing.T) {
	mc := NewMemoryCache()
	ctx := context.Background()

	if _, err := mc.LoadPrices(ctx); err == nil {
		t.Error("Expected cache miss before any save")
	}

	if err := mc.SavePrices(ctx, map[string]float64{"BTC_USDT": 100, "ETH_USDT": 50}); err != nil {
		t.Fatalf("SavePrices failed: %v", err)
	}

	prices, err := mc.LoadPrices(ctx)
	if err != nil {
		t.Fatalf("LoadPrices failed: %v", err)
	}
	if prices["BTC_USDT"] != 100 || prices["ETH_USDT"] != 50 {
		t.Errorf("Unexpected prices %v", prices)
	}
	if mc.IsHealthy() {
		t.Error("Expected memory cache to report no Redis")
	}
}

func TestMarketCache_Snapshot(t *testing.T) {
	mc := NewMarketCache(config.RedisConfig{Enabled: false}, zerolog.Nop())
	ctx := context.Background()

	type snap struct {
		Cash   float64 `json:"cash"`
		Equity float64 `json:"equity"`
	}

	if err := mc.SaveSnapshot(ctx, snap{Cash: 10, Equity: 12}); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	var got snap
	if err := mc.LoadSnapshot(ctx, &got); err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if got.Cash != 10 || got.Equity != 12 {
		t.Errorf("Expected {10 12}, got %+v", got)
	}
	if err := mc.Close(); err != nil {
		t.Errorf("Expected Close without Redis to succeed, got %v", err)
	}
}
