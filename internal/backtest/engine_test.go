package backtest

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohameddodda/paper-trading-bot/config"
	"github.com/mohameddodda/paper-trading-bot/internal/cryptocom"
)

func testConfig(symbols ...string) Config {
	trading := config.DefaultConfig().TradingConfig
	trading.Symbols = symbols
	return Config{Trading: trading, Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Step: time.Minute}
}

func TestRun_DipStopAndReentry(t *testing.T) {
	series := map[string][]float64{
		"BTC_USDT": {100, 99, 98, 97, 96, 95, 94, 93, 92, 91, 90},
	}

	result, err := Run(context.Background(), testConfig("BTC_USDT"), series, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Steps != 11 {
		t.Errorf("Expected 11 steps, got %d", result.Steps)
	}
	if result.TotalTrades != 3 || result.Buys != 2 || result.Sells != 1 {
		t.Errorf("Expected 3 trades (2 buys, 1 sell), got %d (%d, %d)", result.TotalTrades, result.Buys, result.Sells)
	}
	if result.ByReason["Stop-Loss"] != 1 || result.ByReason["Dip-Buy"] != 2 {
		t.Errorf("Unexpected reasons: %v", result.ByReason)
	}
	if result.LosingTrades != 1 || result.WinRate != 0 {
		t.Errorf("Expected one losing exit, got %d losing, %.1f%% win rate", result.LosingTrades, result.WinRate)
	}
	if result.FinalEquity >= result.StartingCash {
		t.Errorf("Expected a loss, got final equity %.2f", result.FinalEquity)
	}
	if result.MaxDrawdown <= 0 {
		t.Errorf("Expected positive max drawdown, got %.4f", result.MaxDrawdown)
	}
	if result.GuardTripped {
		t.Error("Expected guard not tripped")
	}
	if !result.EquityCurve[1].Timestamp.Equal(result.EquityCurve[0].Timestamp.Add(time.Minute)) {
		t.Error("Expected equity curve spaced by step")
	}
}

func TestRun_FlatPricesNeverTrade(t *testing.T) {
	series := map[string][]float64{"ETH_USDT": {50, 50, 50, 50, 50}}
	result, err := Run(context.Background(), testConfig("ETH_USDT"), series, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.TotalTrades != 0 {
		t.Errorf("Expected no trades on flat prices, got %d", result.TotalTrades)
	}
	if result.FinalEquity != result.StartingCash {
		t.Errorf("Expected equity unchanged, got %.2f", result.FinalEquity)
	}
}

func TestRun_UnevenSeries(t *testing.T) {
	series := map[string][]float64{
		"BTC_USDT": {100, 100, 100, 100, 100, 100},
		"ETH_USDT": {50, 50},
	}
	cfg := testConfig()
	result, err := Run(context.Background(), cfg, series, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Steps != 6 {
		t.Errorf("Expected 6 steps, got %d", result.Steps)
	}
}

func TestRun_NoData(t *testing.T) {
	_, err := Run(context.Background(), testConfig("BTC_USDT"), map[string][]float64{}, zerolog.Nop())
	if !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, testConfig("BTC_USDT"), map[string][]float64{"BTC_USDT": {1, 2, 3}}, zerolog.Nop())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestMaxDrawdown_Calculation(t *testing.T) {
	curve := []EquityPoint{{Equity: 100}, {Equity: 120}, {Equity: 90}, {Equity: 130}, {Equity: 117}}
	got := calculateMaxDrawdown(100, curve)
	if math.Abs(got-25) > 1e-9 {
		t.Errorf("Expected 25%% drawdown, got %.4f", got)
	}
}

func TestSharpeRatio_Calculation(t *testing.T) {
	if got := calculateSharpeRatio(nil); got != 0 {
		t.Errorf("Expected 0 for no returns, got %v", got)
	}
	if got := calculateSharpeRatio([]float64{2, 2, 2}); got != 0 {
		t.Errorf("Expected 0 for zero variance, got %v", got)
	}
	got := calculateSharpeRatio([]float64{1, 3})
	if math.Abs(got-2) > 1e-9 {
		t.Errorf("Expected 2, got %v", got)
	}
}

func TestLoadSeries(t *testing.T) {
	mock := cryptocom.NewMockClient([]string{"BTC_USDT", "SOL_USDT"}, 1)
	series, err := LoadSeries(context.Background(), mock, []string{"BTC_USDT", "SOL_USDT"}, "1m", 30)
	if err != nil {
		t.Fatalf("LoadSeries failed: %v", err)
	}
	if len(series["BTC_USDT"]) != 30 || len(series["SOL_USDT"]) != 30 {
		t.Errorf("Expected 30 closes per symbol, got %d and %d", len(series["BTC_USDT"]), len(series["SOL_USDT"]))
	}
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	PrintResults(&buf, &Result{StartingCash: 100, FinalEquity: 110, ROI: 10, ByReason: map[string]int{"Take-Profit": 1}})
	out := buf.String()
	if !strings.Contains(out, "ROI: 10.00%") || !strings.Contains(out, "Take-Profit: 1") {
		t.Errorf("Unexpected output:\n%s", out)
	}
}
