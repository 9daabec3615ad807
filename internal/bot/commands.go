package bot

import (
	"context"
	"math"
	"time"

	"github.com/mohameddodda/paper-trading-bot/internal/circuit"
	"github.com/mohameddodda/paper-trading-bot/internal/events"
	"github.com/mohameddodda/paper-trading-bot/internal/ledger"
	"github.com/mohameddodda/paper-trading-bot/internal/risk"
)

// Start runs the tick loop in the background until Stop is called
func (e *Engine) Start() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.stopChan = make(chan struct{})
	e.running = true

	e.wg.Add(1)
	go e.run(ctx, e.stopChan)

	e.logger.Info().
		Strs("symbols", e.config.Symbols).
		Dur("interval", e.config.TickInterval()).
		Float64("cash", e.ledger.Cash()).
		Msg("Trading engine started")
	e.publish(events.Event{Type: events.EventBotStarted})
	return nil
}

// Stop halts the tick loop and waits for an in-flight tick to finish
func (e *Engine) Stop() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if !e.running {
		return ErrNotRunning
	}

	close(e.stopChan)
	e.cancel()
	e.wg.Wait()
	e.running = false

	e.logger.Info().Msg("Trading engine stopped")
	e.publish(events.Event{Type: events.EventBotStopped})
	return nil
}

// IsRunning reports whether the tick loop is active
func (e *Engine) IsRunning() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.running
}

func (e *Engine) run(ctx context.Context, stop <-chan struct{}) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.TickInterval())
	defer ticker.Stop()

	e.runTick(ctx)
	for {
		select {
		case <-ticker.C:
			e.runTick(ctx)
		case <-stop:
			return
		}
	}
}

func (e *Engine) runTick(ctx context.Context) {
	result, err := e.Tick(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Tick failed")
		return
	}
	e.logger.Debug().
		Uint64("tick", result.Tick).
		Int("trades", len(result.Trades)).
		Float64("equity", result.Equity).
		Msg("Tick completed")
}

// Reset restores the starting cash, clears every position, history and the
// drawdown guard. The run state is left unchanged.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ledger.Reset()
	e.guard.Reset(e.ledger.StartingCash())
	e.history = make(map[string]*PriceHistory)
	e.lastPrices = make(map[string]float64)
	e.lastAdvice = make(map[string]AdviceRecord)
	e.recentTrades = nil
	e.schedule.Reset()

	e.logger.Warn().Float64("cash", e.ledger.Cash()).Msg("Engine reset")
	e.publish(events.Event{
		Type: events.EventBotReset,
		Data: map[string]interface{}{"cash": e.ledger.Cash()},
	})
}

// ForceBuy opens a position in symbol at the last observed price, ignoring
// cooldown and the entry signal. Size is min(cash*ForceBuyPct, ForceBuyMaxUSD).
func (e *Engine) ForceBuy(symbol string) (events.TradeEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.tracked[symbol] {
		e.reject(symbol, "force_buy", ErrUnknownSymbol.Error())
		return events.TradeEvent{}, ErrUnknownSymbol
	}
	if e.guard.IsTripped() {
		e.reject(symbol, "force_buy", circuit.ErrDrawdownTripped.Error())
		return events.TradeEvent{}, circuit.ErrDrawdownTripped
	}
	if e.ledger.Position(symbol).IsOpen() {
		e.reject(symbol, "force_buy", ledger.ErrPositionOpen.Error())
		return events.TradeEvent{}, ledger.ErrPositionOpen
	}
	price, ok := e.lastPrices[symbol]
	if !ok || !(price > 0) {
		err := &PriceUnavailableError{Symbol: symbol}
		e.reject(symbol, "force_buy", err.Error())
		return events.TradeEvent{}, err
	}

	usd := math.Min(e.ledger.Cash()*e.config.ForceBuyPct, e.config.ForceBuyMaxUSD)
	fill, err := e.ledger.ApplyBuy(symbol, price, usd, e.now())
	if err != nil {
		e.reject(symbol, "force_buy", err.Error())
		return events.TradeEvent{}, err
	}
	return e.record(fill, ReasonForceBuy), nil
}

// ForceSell closes the whole position in symbol at the last observed price.
// Exits are allowed while the drawdown guard is tripped.
func (e *Engine) ForceSell(symbol string) (events.TradeEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.tracked[symbol] {
		e.reject(symbol, "force_sell", ErrUnknownSymbol.Error())
		return events.TradeEvent{}, ErrUnknownSymbol
	}
	if !e.ledger.Position(symbol).IsOpen() {
		err := &ledger.NoPositionError{Symbol: symbol}
		e.reject(symbol, "force_sell", err.Error())
		return events.TradeEvent{}, err
	}
	price, ok := e.lastPrices[symbol]
	if !ok || !(price > 0) {
		err := &PriceUnavailableError{Symbol: symbol}
		e.reject(symbol, "force_sell", err.Error())
		return events.TradeEvent{}, err
	}

	fill, err := e.ledger.ApplySell(symbol, price, 1, e.now())
	if err != nil {
		e.reject(symbol, "force_sell", err.Error())
		return events.TradeEvent{}, err
	}
	return e.record(fill, ReasonForceSell), nil
}

// SymbolStatus is the per-symbol view returned by Status
type SymbolStatus struct {
	Symbol        string           `json:"symbol"`
	State         SymbolState      `json:"state"`
	Price         float64          `json:"price"`
	Quantity      float64          `json:"quantity"`
	EntryPrice    float64          `json:"entry_price,omitempty"`
	Value         float64          `json:"value"`
	PnLPct        *float64         `json:"pnl_pct,omitempty"`
	CooldownUntil *time.Time       `json:"cooldown_until,omitempty"`
	HistoryLen    int              `json:"history_len"`
	Assessment    *risk.Assessment `json:"assessment,omitempty"`
	LastAdvice    *AdviceRecord    `json:"last_advice,omitempty"`
}

// Status is a point-in-time view of the engine
type Status struct {
	Running      bool                   `json:"running"`
	Tick         uint64                 `json:"tick"`
	Cash         float64                `json:"cash"`
	Equity       float64                `json:"equity"`
	StartingCash float64                `json:"starting_cash"`
	ReturnPct    float64                `json:"return_pct"`
	Guard        map[string]interface{} `json:"guard"`
	Symbols      []SymbolStatus         `json:"symbols"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Status reports cash, equity, guard state and every tracked symbol
func (e *Engine) Status() Status {
	running := e.IsRunning()

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	equity := e.ledger.MarkToMarket(e.lastPrices)
	start := e.ledger.StartingCash()

	st := Status{
		Running:      running,
		Tick:         e.schedule.Count(),
		Cash:         e.ledger.Cash(),
		Equity:       equity,
		StartingCash: start,
		Guard:        e.guard.GetStats(),
		Symbols:      make([]SymbolStatus, 0, len(e.config.Symbols)),
		Timestamp:    now,
	}
	if start > 0 {
		st.ReturnPct = (equity - start) / start * 100
	}

	for _, sym := range e.config.Symbols {
		pos := e.ledger.Position(sym)
		price := e.lastPrices[sym]
		ss := SymbolStatus{
			Symbol:     sym,
			State:      e.stateOf(pos, now),
			Price:      price,
			Quantity:   pos.Quantity,
			EntryPrice: pos.EntryPrice,
		}
		if h, ok := e.history[sym]; ok {
			ss.HistoryLen = h.Len()
			if ss.HistoryLen >= e.config.MinHistory {
				a := e.sizer.Assess(h.Values())
				ss.Assessment = &a
			}
		}
		if pos.IsOpen() {
			mark := price
			if !(mark > 0) {
				mark = pos.EntryPrice
			}
			ss.Value = pos.Quantity * mark
			if pnl, ok := risk.PnLFraction(mark, pos.EntryPrice); ok {
				pct := pnl * 100
				ss.PnLPct = &pct
			}
		}
		if !pos.CooldownUntil.IsZero() && now.Before(pos.CooldownUntil) {
			until := pos.CooldownUntil
			ss.CooldownUntil = &until
		}
		if adv, ok := e.lastAdvice[sym]; ok {
			adv := adv
			ss.LastAdvice = &adv
		}
		st.Symbols = append(st.Symbols, ss)
	}
	return st
}

func (e *Engine) stateOf(pos ledger.Position, now time.Time) SymbolState {
	switch {
	case pos.IsOpen():
		return StateOpen
	case !pos.CooldownUntil.IsZero() && now.Before(pos.CooldownUntil):
		return StateCooldown
	default:
		return StateFlat
	}
}

// RecentTrades returns up to limit trades, newest first
func (e *Engine) RecentTrades(limit int) []events.TradeEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.recentTrades)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]events.TradeEvent, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.recentTrades[i])
	}
	return out
}

// Symbols returns the tracked symbols in configured order
func (e *Engine) Symbols() []string {
	return append([]string(nil), e.config.Symbols...)
}
