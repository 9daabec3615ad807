package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohameddodda/paper-trading-bot/config"
	"github.com/mohameddodda/paper-trading-bot/internal/bot"
	"github.com/mohameddodda/paper-trading-bot/internal/cryptocom"
	"github.com/mohameddodda/paper-trading-bot/internal/events"
)

// ErrNoData is returned when there is nothing to replay
var ErrNoData = errors.New("backtest: no price data")

// Config holds backtest configuration
type Config struct {
	Trading config.TradingConfig
	Start   time.Time     // timestamp of the first step
	Step    time.Duration // simulated time between steps, drives cooldowns
}

// Result contains backtest performance metrics
type Result struct {
	Steps         int
	StartingCash  float64
	FinalEquity   float64
	NetProfit     float64
	ROI           float64 // %
	TotalTrades   int
	Buys          int
	Sells         int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // % of sells closed in profit
	MaxDrawdown   float64 // % from peak equity
	SharpeRatio   float64
	GuardTripped  bool
	TrippedAtStep int
	ByReason      map[string]int
	Trades        []events.TradeEvent
	EquityCurve   []EquityPoint
}

// EquityPoint represents account equity at a point in time
type EquityPoint struct {
	Timestamp time.Time
	Equity    float64
}

// replaySource serves one column of the price table per call
type replaySource struct {
	series map[string][]float64
	index  int
}

func (r *replaySource) GetPrices(ctx context.Context) (map[string]float64, error) {
	out := make(map[string]float64, len(r.series))
	for sym, prices := range r.series {
		if r.index < len(prices) {
			out[sym] = prices[r.index]
		}
	}
	return out, nil
}

type tradeCollector struct {
	mu     sync.Mutex
	trades []events.TradeEvent
}

func (c *tradeCollector) Publish(e events.Event) {
	if e.Type != events.EventTradeExecuted || e.Trade == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trades = append(c.trades, *e.Trade)
}

// Run replays per-symbol price series through a fresh engine, one step per
// index. Symbols whose series is shorter than the longest are skipped once
// exhausted. No advisory is consulted.
func Run(ctx context.Context, cfg Config, series map[string][]float64, logger zerolog.Logger) (*Result, error) {
	steps := 0
	for _, prices := range series {
		if len(prices) > steps {
			steps = len(prices)
		}
	}
	if steps == 0 {
		return nil, ErrNoData
	}

	trading := cfg.Trading
	if len(trading.Symbols) == 0 {
		for sym := range series {
			trading.Symbols = append(trading.Symbols, sym)
		}
		sort.Strings(trading.Symbols)
	}
	step := cfg.Step
	if step <= 0 {
		step = trading.TickInterval()
	}
	now := cfg.Start
	if now.IsZero() {
		now = time.Unix(0, 0).UTC()
	}

	src := &replaySource{series: series}
	collector := &tradeCollector{}
	engine := bot.NewEngine(trading, src,
		bot.WithClock(func() time.Time { return now }),
		bot.WithPublisher(collector),
		bot.WithLogger(logger),
	)

	result := &Result{
		Steps:        steps,
		StartingCash: trading.StartingCash,
		ByReason:     make(map[string]int),
		EquityCurve:  make([]EquityPoint, 0, steps),
	}

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src.index = i

		tick, err := engine.Tick(ctx)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Timestamp: now, Equity: tick.Equity})
		if tick.Tripped {
			result.GuardTripped = true
			result.TrippedAtStep = i
		}
		now = now.Add(step)
	}

	result.Trades = collector.trades
	result.FinalEquity = result.EquityCurve[len(result.EquityCurve)-1].Equity
	calculateMetrics(result)
	return result, nil
}

// Closes extracts close prices from candles
func Closes(candles []cryptocom.Candle) []float64 {
	out := make([]float64, 0, len(candles))
	for _, c := range candles {
		out = append(out, c.Close)
	}
	return out
}

// LoadSeries fetches count candles per symbol and returns their closes
func LoadSeries(ctx context.Context, src cryptocom.CandleSource, symbols []string, timeframe string, count int) (map[string][]float64, error) {
	series := make(map[string][]float64, len(symbols))
	for _, sym := range symbols {
		candles, err := src.GetCandles(ctx, sym, timeframe, count)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch candles for %s: %w", sym, err)
		}
		series[sym] = Closes(candles)
	}
	return series, nil
}

func calculateMetrics(result *Result) {
	result.TotalTrades = len(result.Trades)

	var returns []float64
	for _, trade := range result.Trades {
		result.ByReason[trade.Reason]++
		if trade.Side != "SELL" {
			result.Buys++
			continue
		}
		result.Sells++
		if trade.PnLPct == nil {
			continue
		}
		returns = append(returns, *trade.PnLPct)
		if *trade.PnLPct > 0 {
			result.WinningTrades++
		} else {
			result.LosingTrades++
		}
	}

	if result.Sells > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(result.Sells) * 100
	}

	result.NetProfit = result.FinalEquity - result.StartingCash
	if result.StartingCash > 0 {
		result.ROI = result.NetProfit / result.StartingCash * 100
	}
	result.MaxDrawdown = calculateMaxDrawdown(result.StartingCash, result.EquityCurve)
	result.SharpeRatio = calculateSharpeRatio(returns)
}

// calculateMaxDrawdown calculates maximum equity drawdown in percent
func calculateMaxDrawdown(initial float64, equityCurve []EquityPoint) float64 {
	maxDrawdown := 0.0
	peak := initial

	for _, point := range equityCurve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - point.Equity) / peak * 100
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// calculateSharpeRatio is mean over standard deviation of per-exit returns,
// with a zero risk-free rate
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	total := 0.0
	for _, r := range returns {
		total += r
	}
	avg := total / float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - avg
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(len(returns)))
	if stdDev == 0 {
		return 0
	}
	return avg / stdDev
}

// PrintResults writes a human readable summary
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "\n=== BACKTEST RESULTS ===")
	fmt.Fprintf(w, "Steps: %d\n", result.Steps)
	fmt.Fprintf(w, "Starting Cash: $%.2f\n", result.StartingCash)
	fmt.Fprintf(w, "Final Equity: $%.2f\n", result.FinalEquity)
	fmt.Fprintf(w, "Net Profit: $%.2f\n", result.NetProfit)
	fmt.Fprintf(w, "ROI: %.2f%%\n", result.ROI)
	fmt.Fprintf(w, "Trades: %d (%d buys, %d sells)\n", result.TotalTrades, result.Buys, result.Sells)
	fmt.Fprintf(w, "Winning Exits: %d (%.1f%%)\n", result.WinningTrades, result.WinRate)
	fmt.Fprintf(w, "Losing Exits: %d\n", result.LosingTrades)
	fmt.Fprintf(w, "Max Drawdown: %.2f%%\n", result.MaxDrawdown)
	fmt.Fprintf(w, "Sharpe Ratio: %.2f\n", result.SharpeRatio)
	if result.GuardTripped {
		fmt.Fprintf(w, "Drawdown guard tripped at step %d\n", result.TrippedAtStep)
	}

	reasons := make([]string, 0, len(result.ByReason))
	for r := range result.ByReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	fmt.Fprintln(w, "\n=== BY REASON ===")
	for _, r := range reasons {
		fmt.Fprintf(w, "%s: %d\n", r, result.ByReason[r])
	}
}
