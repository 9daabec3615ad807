package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mohameddodda/paper-trading-bot/config"
	"github.com/mohameddodda/paper-trading-bot/internal/ai/llm"
	"github.com/mohameddodda/paper-trading-bot/internal/circuit"
	"github.com/mohameddodda/paper-trading-bot/internal/cryptocom"
	"github.com/mohameddodda/paper-trading-bot/internal/events"
	"github.com/mohameddodda/paper-trading-bot/internal/ledger"
	"github.com/mohameddodda/paper-trading-bot/internal/risk"
)

// Trade reasons
const (
	ReasonStopLoss   = "Stop-Loss"
	ReasonTakeProfit = "Take-Profit"
	ReasonAISell     = "AI-Sell"
	ReasonAIBuy      = "AI-Buy"
	ReasonDipBuy     = "Dip-Buy"
	ReasonForceBuy   = "Force-Buy"
	ReasonForceSell  = "Force-Sell"
)

// advisoryConcurrency caps simultaneous advisory calls within one tick
const advisoryConcurrency = 4

// Advisor supplies an optional buy/sell/hold opinion per symbol
type Advisor interface {
	Consult(ctx context.Context, req llm.AdvisoryRequest) (llm.Advice, error)
}

// EventPublisher receives every event the engine emits. Publishing must not
// block on, or report, sink failures.
type EventPublisher interface {
	Publish(event events.Event)
}

// SymbolState is the per-symbol position state
type SymbolState string

const (
	StateFlat     SymbolState = "FLAT"
	StateCooldown SymbolState = "COOLDOWN"
	StateOpen     SymbolState = "OPEN"
)

// AdviceRecord is the last advisory outcome for a symbol
type AdviceRecord struct {
	Signal llm.Signal `json:"signal,omitempty"`
	Reason string     `json:"reason,omitempty"`
	Error  string     `json:"error,omitempty"`
	At     time.Time  `json:"at"`
}

// TickResult summarises one engine tick
type TickResult struct {
	Tick      uint64              `json:"tick"`
	Consulted bool                `json:"consulted"`
	Trades    []events.TradeEvent `json:"trades"`
	Skipped   map[string]error    `json:"-"`
	Equity    float64             `json:"equity"`
	Tripped   bool                `json:"tripped"`
}

// Engine runs the per-symbol decision state machine once per tick. Ticks and
// commands are serialized by mu.
type Engine struct {
	config    config.TradingConfig
	sizer     *risk.Sizer
	ledger    *ledger.Ledger
	guard     *circuit.DrawdownGuard
	prices    cryptocom.PriceSource
	advisor   Advisor
	publisher EventPublisher
	logger    zerolog.Logger
	now       func() time.Time

	mu           sync.Mutex
	history      map[string]*PriceHistory
	lastPrices   map[string]float64
	schedule     *ConsultSchedule
	lastAdvice   map[string]AdviceRecord
	recentTrades []events.TradeEvent
	tracked      map[string]bool

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures an Engine
type Option func(*Engine)

// WithAdvisor enables advisory consultation
func WithAdvisor(a Advisor) Option {
	return func(e *Engine) { e.advisor = a }
}

// WithPublisher sets the event sink
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine with a fresh ledger funded from cfg
func NewEngine(cfg config.TradingConfig, prices cryptocom.PriceSource, opts ...Option) *Engine {
	e := &Engine{
		config: cfg,
		sizer: risk.NewSizer(risk.Config{
			MaxRiskPct:        cfg.MaxRiskPct,
			DefaultRiskPct:    cfg.DefaultRiskPct,
			BaseRiskPct:       0.01,
			BaseStopLossPct:   cfg.BaseStopLossPct,
			BaseTakeProfitPct: cfg.BaseTakeProfitPct,
			BuyDropPct:        cfg.BuyDropPct,
			MinVolatility:     cfg.MinVolatility,
			MaxVolatility:     cfg.MaxVolatility,
			VolatilityWindow:  cfg.VolatilityWindow,
		}),
		ledger: ledger.New(ledger.Config{
			StartingCash: cfg.StartingCash,
			MinTradeUSD:  cfg.MinTradeUSD,
			Cooldown:     cfg.Cooldown(),
		}),
		guard:      circuit.NewDrawdownGuard(cfg.MaxDrawdownPct, cfg.StartingCash),
		prices:     prices,
		logger:     zerolog.Nop(),
		now:        time.Now,
		history:    make(map[string]*PriceHistory),
		lastPrices: make(map[string]float64),
		schedule:   NewConsultSchedule(cfg.AIConsultInterval),
		lastAdvice: make(map[string]AdviceRecord),
		tracked:    make(map[string]bool, len(cfg.Symbols)),
	}
	for _, s := range cfg.Symbols {
		e.tracked[s] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().Str("component", "Engine").Logger()

	e.guard.OnTrip(func(reason string, drawdown float64) {
		e.logger.Error().Str("reason", reason).Float64("drawdown", drawdown).Msg("Drawdown guard tripped, entries halted")
		e.publish(events.Event{
			Type: events.EventDrawdownTripped,
			Data: map[string]interface{}{
				"reason":   reason,
				"drawdown": drawdown,
				"peak":     e.guard.Peak(),
			},
		})
	})
	return e
}

// Ledger exposes the engine's ledger for read access
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Guard exposes the drawdown guard
func (e *Engine) Guard() *circuit.DrawdownGuard {
	return e.guard
}

type candidate struct {
	symbol     string
	price      float64
	history    []float64
	assessment risk.Assessment
}

// Tick fetches prices and runs one decision pass over every symbol in
// configured order. Per-symbol failures are reported in the result and never
// abort the other symbols.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	start := time.Now()
	prices, fetchErr := e.prices.GetPrices(ctx)
	if fetchErr != nil {
		if len(prices) == 0 {
			e.logger.Error().Err(fetchErr).Msg("Price fetch failed, no prices this tick")
		} else {
			e.logger.Warn().Err(fetchErr).Msg("Using stale prices")
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	result := TickResult{Skipped: make(map[string]error)}
	result.Consulted = e.schedule.Advance()
	result.Tick = e.schedule.Count()

	if fetchErr != nil && len(prices) == 0 {
		e.publish(events.ErrorEvent("prices", fetchErr.Error()))
	}

	// Cached prices after a failed fetch only value the book. They are not
	// observations and never drive a decision.
	stale := errors.Is(fetchErr, cryptocom.ErrStalePrices)

	candidates := make([]candidate, 0, len(e.config.Symbols))
	for _, sym := range e.config.Symbols {
		price, ok := prices[sym]
		if stale && ok && price > 0 {
			e.lastPrices[sym] = price
		}
		if stale || !ok || !(price > 0) {
			err := &PriceUnavailableError{Symbol: sym, Err: fetchErr}
			result.Skipped[sym] = err
			e.publish(events.Event{
				Type: events.EventPriceUnavailable,
				Data: map[string]interface{}{"symbol": sym, "reason": err.Error()},
			})
			continue
		}

		h := e.historyFor(sym)
		h.Append(price)
		e.lastPrices[sym] = price
		if h.Len() < e.config.MinHistory {
			continue
		}

		hist := h.Values()
		candidates = append(candidates, candidate{
			symbol:     sym,
			price:      price,
			history:    hist,
			assessment: e.sizer.Assess(hist),
		})
	}

	var advice map[string]llm.Advice
	if result.Consulted && e.advisor != nil && len(candidates) > 0 {
		advice = e.consultAll(ctx, candidates, now)
	}

	for _, c := range candidates {
		adv, hasAdvice := advice[c.symbol]
		var signal *llm.Advice
		if hasAdvice {
			signal = &adv
		}
		if trade, ok := e.decide(c, signal, now); ok {
			result.Trades = append(result.Trades, trade)
		}
	}

	result.Equity = e.ledger.MarkToMarket(e.lastPrices)
	result.Tripped = e.guard.Observe(result.Equity, now)

	e.publish(events.Event{
		Type: events.EventTickCompleted,
		Data: map[string]interface{}{
			"tick":        result.Tick,
			"equity":      result.Equity,
			"cash":        e.ledger.Cash(),
			"drawdown":    e.guard.Drawdown(),
			"trades":      len(result.Trades),
			"skipped":     len(result.Skipped),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
		},
	})

	return result, nil
}

// consultAll runs the advisory for each candidate concurrently, each under its
// own timeout. A failed call leaves the symbol without a signal.
func (e *Engine) consultAll(ctx context.Context, candidates []candidate, now time.Time) map[string]llm.Advice {
	var mu sync.Mutex
	advice := make(map[string]llm.Advice, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(advisoryConcurrency)
	for _, c := range candidates {
		c := c
		g.Go(func() error {
			req := llm.AdvisoryRequest{
				Symbol:       c.symbol,
				RecentPrices: lastN(c.history, 10),
			}
			if drop, ok := risk.DropFromHigh(c.history); ok {
				req.DropPct = drop * 100
			}
			if gain, ok := risk.GainFromLow(c.history); ok {
				req.GainPct = gain * 100
			}

			cctx, cancel := context.WithTimeout(gctx, e.config.AdvisoryTimeout())
			defer cancel()

			adv, err := e.advisor.Consult(cctx, req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.lastAdvice[c.symbol] = AdviceRecord{Error: err.Error(), At: now}
				e.advisoryFailed(c.symbol, err)
				return nil
			}
			advice[c.symbol] = adv
			e.lastAdvice[c.symbol] = AdviceRecord{Signal: adv.Signal, Reason: adv.Reason, At: now}
			return nil
		})
	}
	_ = g.Wait()
	return advice
}

func (e *Engine) advisoryFailed(symbol string, err error) {
	kind := "unknown"
	var advErr *llm.AdvisoryError
	if errors.As(err, &advErr) {
		kind = advErr.Kind
	}
	e.logger.Warn().Err(err).Str("symbol", symbol).Str("kind", kind).Msg("Advisory unavailable, using rules only")
	e.publish(events.Event{
		Type: events.EventAdvisoryFailed,
		Data: map[string]interface{}{"symbol": symbol, "kind": kind, "reason": err.Error()},
	})
}

// decide applies the exit rules to an open position, otherwise the entry
// rule. At most one action is taken. Caller holds mu.
func (e *Engine) decide(c candidate, advice *llm.Advice, now time.Time) (events.TradeEvent, bool) {
	a := c.assessment
	pos := e.ledger.Position(c.symbol)

	if pos.IsOpen() {
		pnl, ok := risk.PnLFraction(c.price, pos.EntryPrice)
		if !ok {
			return events.TradeEvent{}, false
		}

		switch {
		case pnl <= a.StopLoss:
			return e.sell(c.symbol, c.price, 1, ReasonStopLoss, now)
		case pnl >= a.TakeProfit:
			return e.sell(c.symbol, c.price, 1, ReasonTakeProfit, now)
		case advice != nil && advice.Signal == llm.SignalSell:
			return e.sell(c.symbol, c.price, e.config.PartialSellFraction, ReasonAISell, now)
		}
		return events.TradeEvent{}, false
	}

	if !e.ledger.CanEnter(c.symbol, now) {
		return events.TradeEvent{}, false
	}

	drop, ok := risk.DropFromHigh(c.history)
	if !ok || drop > a.BuyThreshold {
		return events.TradeEvent{}, false
	}

	if advice != nil && advice.Signal != llm.SignalBuy {
		e.reject(c.symbol, "entry", fmt.Sprintf("advisory %s vetoed entry: %s", advice.Signal, advice.Reason))
		return events.TradeEvent{}, false
	}

	if ok, reason := e.guard.CanEnter(); !ok {
		e.reject(c.symbol, "entry", reason)
		return events.TradeEvent{}, false
	}

	usd := e.ledger.Cash() * a.RiskFraction
	if !(usd > e.config.MinTradeUSD) {
		e.reject(c.symbol, "entry", (&ledger.InsufficientFundsError{
			Symbol: c.symbol, Requested: usd, Available: e.ledger.Cash(), Minimum: e.config.MinTradeUSD,
		}).Error())
		return events.TradeEvent{}, false
	}

	reason := ReasonDipBuy
	if advice != nil {
		reason = ReasonAIBuy
	}

	e.logger.Debug().
		Str("symbol", c.symbol).
		Float64("drop", drop).
		Float64("threshold", a.BuyThreshold).
		Float64("volatility", a.Volatility).
		Float64("risk_fraction", a.RiskFraction).
		Msg("Entry signal")

	return e.buy(c.symbol, c.price, usd, reason, now)
}

func (e *Engine) buy(symbol string, price, usd float64, reason string, now time.Time) (events.TradeEvent, bool) {
	fill, err := e.ledger.ApplyBuy(symbol, price, usd, now)
	if err != nil {
		e.reject(symbol, "buy", err.Error())
		return events.TradeEvent{}, false
	}
	return e.record(fill, reason), true
}

func (e *Engine) sell(symbol string, price, fraction float64, reason string, now time.Time) (events.TradeEvent, bool) {
	fill, err := e.ledger.ApplySell(symbol, price, fraction, now)
	if err != nil {
		e.reject(symbol, "sell", err.Error())
		return events.TradeEvent{}, false
	}
	return e.record(fill, reason), true
}

// record turns a fill into a TradeEvent, keeps it and publishes it
func (e *Engine) record(fill ledger.Fill, reason string) events.TradeEvent {
	trade := events.NewTradeEvent(fill.Time, fill.Symbol, string(fill.Side), fill.Price, fill.Quantity, fill.CashAfter, fill.PnLPct, reason)

	e.recentTrades = append(e.recentTrades, trade)
	if limit := e.config.RecentTradesLimit; limit > 0 && len(e.recentTrades) > limit {
		e.recentTrades = append([]events.TradeEvent(nil), e.recentTrades[len(e.recentTrades)-limit:]...)
	}

	ev := e.logger.Info().
		Str("symbol", trade.Symbol).
		Str("side", trade.Side).
		Float64("price", trade.Price).
		Float64("quantity", trade.Quantity).
		Float64("cash", trade.ResultingCash).
		Str("reason", reason)
	if trade.PnLPct != nil {
		ev = ev.Float64("pnl_pct", *trade.PnLPct)
	}
	ev.Msg("Trade executed")

	e.publish(events.TradeExecuted(trade))
	return trade
}

func (e *Engine) reject(symbol, action, reason string) {
	e.logger.Info().Str("symbol", symbol).Str("action", action).Str("reason", reason).Msg("Action rejected")
	e.publish(events.ActionRejected(symbol, action, reason))
}

func (e *Engine) publish(event events.Event) {
	if e.publisher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	e.publisher.Publish(event)
}

func (e *Engine) historyFor(symbol string) *PriceHistory {
	h, ok := e.history[symbol]
	if !ok {
		h = NewPriceHistory(e.config.HistoryCapacity)
		e.history[symbol] = h
	}
	return h
}

func lastN(prices []float64, n int) []float64 {
	if len(prices) <= n {
		return prices
	}
	return prices[len(prices)-n:]
}
