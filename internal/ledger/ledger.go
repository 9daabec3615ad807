// Package ledger owns the paper account: free cash and per-symbol holdings.
// State changes only through ApplyBuy and ApplySell.
package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Side is the direction of a trade
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// dust is the remaining quantity treated as a full exit
const dust = 1e-12

// Config holds ledger parameters
type Config struct {
	StartingCash float64
	MinTradeUSD  float64
	Cooldown     time.Duration
}

// Position is the holding in one symbol. EntryPrice is zero exactly when
// Quantity is zero.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price,omitempty"`
	CooldownUntil time.Time `json:"cooldown_until"`
}

// IsOpen reports whether the position holds any quantity
func (p Position) IsOpen() bool {
	return p.Quantity > 0
}

// Diagnostic records a computed value that had to be clamped
type Diagnostic struct {
	Time     time.Time `json:"time"`
	Symbol   string    `json:"symbol"`
	Field    string    `json:"field"`
	Computed float64   `json:"computed"`
	Message  string    `json:"message"`
}

// Fill is the result of an applied trade
type Fill struct {
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Notional  float64   `json:"notional"`
	CashAfter float64   `json:"cash_after"`
	PnLPct    *float64  `json:"pnl_pct,omitempty"` // sells only, percent vs entry
	Closed    bool      `json:"closed"`            // sell emptied the position
	Position  Position  `json:"position"`
	Time      time.Time `json:"time"`
}

// Snapshot is a point-in-time copy of the ledger
type Snapshot struct {
	Cash        float64    `json:"cash"`
	Positions   []Position `json:"positions"`
	Diagnostics int        `json:"diagnostics"`
}

// Ledger is safe for concurrent use
type Ledger struct {
	mu          sync.RWMutex
	config      Config
	cash        float64
	positions   map[string]*Position
	diagnostics []Diagnostic
}

// New creates a ledger funded with the starting cash
func New(config Config) *Ledger {
	return &Ledger{
		config:    config,
		cash:      config.StartingCash,
		positions: make(map[string]*Position),
	}
}

// Reset restores the starting cash and drops every position
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cash = l.config.StartingCash
	l.positions = make(map[string]*Position)
	l.diagnostics = nil
}

// StartingCash returns the configured initial balance
func (l *Ledger) StartingCash() float64 {
	return l.config.StartingCash
}

// Cash returns free cash
func (l *Ledger) Cash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// Position returns a copy of the symbol's position (zero value when flat)
func (l *Ledger) Position(symbol string) Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if p, ok := l.positions[symbol]; ok {
		return *p
	}
	return Position{Symbol: symbol}
}

// CanEnter reports whether a new position may be opened: flat and out of cooldown
func (l *Ledger) CanEnter(symbol string, now time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	if !ok {
		return true
	}
	if p.Quantity > 0 {
		return false
	}
	return p.CooldownUntil.IsZero() || !now.Before(p.CooldownUntil)
}

// ApplyBuy spends usd of cash on symbol at price and starts the cooldown.
func (l *Ledger) ApplyBuy(symbol string, price, usd float64, now time.Time) (Fill, error) {
	if !validPrice(price) {
		return Fill{}, fmt.Errorf("buy %s at %v: %w", symbol, price, ErrInvalidPrice)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	qty := usd / price
	if !(usd > 0) || usd < l.config.MinTradeUSD || usd > l.cash || !(qty > 0) || math.IsInf(qty, 0) {
		return Fill{}, &InsufficientFundsError{
			Symbol:    symbol,
			Requested: usd,
			Available: l.cash,
			Minimum:   l.config.MinTradeUSD,
		}
	}

	p := l.position(symbol)
	if p.Quantity > 0 {
		return Fill{}, fmt.Errorf("buy %s: %w (qty %.8f)", symbol, ErrPositionOpen, p.Quantity)
	}
	l.cash = l.clamp(symbol, "cash", l.cash-usd, now)
	p.Quantity = qty
	p.EntryPrice = price
	p.CooldownUntil = now.Add(l.config.Cooldown)

	return Fill{
		Symbol:    symbol,
		Side:      SideBuy,
		Price:     price,
		Quantity:  qty,
		Notional:  usd,
		CashAfter: l.cash,
		Position:  *p,
		Time:      now,
	}, nil
}

// ApplySell sells fraction of the symbol's quantity at price. A full exit
// clears the entry price and the cooldown, so the symbol may be re-entered
// immediately. A partial exit keeps the entry price.
func (l *Ledger) ApplySell(symbol string, price, fraction float64, now time.Time) (Fill, error) {
	if !validPrice(price) {
		return Fill{}, fmt.Errorf("sell %s at %v: %w", symbol, price, ErrInvalidPrice)
	}
	if !(fraction > 0 && fraction <= 1) {
		return Fill{}, fmt.Errorf("sell %s: %w (got %v)", symbol, ErrInvalidFraction, fraction)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[symbol]
	if !ok || p.Quantity <= 0 {
		return Fill{}, &NoPositionError{Symbol: symbol}
	}

	sellQty := p.Quantity
	if fraction < 1 {
		sellQty = p.Quantity * fraction
	}
	remaining := l.clamp(symbol, "quantity", p.Quantity-sellQty, now)
	if remaining <= dust*p.Quantity {
		sellQty = p.Quantity
		remaining = 0
	}

	proceeds := sellQty * price
	pnl := (price - p.EntryPrice) / p.EntryPrice * 100
	l.cash = l.clamp(symbol, "cash", l.cash+proceeds, now)

	fill := Fill{
		Symbol:    symbol,
		Side:      SideSell,
		Price:     price,
		Quantity:  sellQty,
		Notional:  proceeds,
		CashAfter: l.cash,
		PnLPct:    &pnl,
		Time:      now,
	}

	if remaining == 0 {
		p.Quantity = 0
		p.EntryPrice = 0
		p.CooldownUntil = time.Time{}
		fill.Closed = true
	} else {
		p.Quantity = remaining
	}
	fill.Position = *p

	return fill, nil
}

// MarkToMarket returns cash plus holdings valued at prices. A held symbol
// missing from prices is valued at its entry price. It never mutates state.
func (l *Ledger) MarkToMarket(prices map[string]float64) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	equity := l.cash
	for sym, p := range l.positions {
		if p.Quantity <= 0 {
			continue
		}
		price, ok := prices[sym]
		if !ok || !validPrice(price) {
			price = p.EntryPrice
		}
		equity += p.Quantity * price
	}
	return equity
}

// Snapshot returns a copy of the ledger sorted by symbol
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		if p.Quantity > 0 || !p.CooldownUntil.IsZero() {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	return Snapshot{Cash: l.cash, Positions: positions, Diagnostics: len(l.diagnostics)}
}

// Diagnostics returns every clamp recorded since the last reset
func (l *Ledger) Diagnostics() []Diagnostic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Diagnostic, len(l.diagnostics))
	copy(out, l.diagnostics)
	return out
}

func (l *Ledger) position(symbol string) *Position {
	p, ok := l.positions[symbol]
	if !ok {
		p = &Position{Symbol: symbol}
		l.positions[symbol] = p
	}
	return p
}

// clamp floors v at zero, recording a diagnostic when it had to. Caller holds mu.
func (l *Ledger) clamp(symbol, field string, v float64, now time.Time) float64 {
	if v >= 0 {
		return v
	}
	l.diagnostics = append(l.diagnostics, Diagnostic{
		Time:     now,
		Symbol:   symbol,
		Field:    field,
		Computed: v,
		Message:  fmt.Sprintf("%s went negative (%.12f), clamped to 0", field, v),
	})
	return 0
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
}
