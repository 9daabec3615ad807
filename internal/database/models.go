package database

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohameddodda/paper-trading-bot/internal/events"
)

// TradeRecord is one row of the trade journal. Money and quantities are
// stored as exact decimals.
type TradeRecord struct {
	ID           string           `json:"id"`
	ExecutedAt   time.Time        `json:"timestamp"`
	Symbol       string           `json:"symbol"`
	Side         string           `json:"side"`
	Price        decimal.Decimal  `json:"price"`
	Quantity     decimal.Decimal  `json:"quantity"`
	BalanceAfter decimal.Decimal  `json:"balance_after"`
	PnLPercent   *decimal.Decimal `json:"pnl_pct,omitempty"`
	Reason       string           `json:"reason"`
	CreatedAt    time.Time        `json:"created_at"`
}

// FromTradeEvent converts an engine trade into a journal row
func FromTradeEvent(t events.TradeEvent) *TradeRecord {
	rec := &TradeRecord{
		ID:           t.ID,
		ExecutedAt:   t.Timestamp.UTC(),
		Symbol:       t.Symbol,
		Side:         t.Side,
		Price:        decimal.NewFromFloat(t.Price),
		Quantity:     decimal.NewFromFloat(t.Quantity),
		BalanceAfter: decimal.NewFromFloat(t.ResultingCash).Round(8),
		Reason:       t.Reason,
	}
	if t.PnLPct != nil {
		pnl := decimal.NewFromFloat(*t.PnLPct).Round(4)
		rec.PnLPercent = &pnl
	}
	return rec
}

// ToTradeEvent converts a journal row back into the engine's trade shape
func (r *TradeRecord) ToTradeEvent() events.TradeEvent {
	t := events.TradeEvent{
		ID:            r.ID,
		Timestamp:     r.ExecutedAt,
		Symbol:        r.Symbol,
		Side:          r.Side,
		Price:         r.Price.InexactFloat64(),
		Quantity:      r.Quantity.InexactFloat64(),
		ResultingCash: r.BalanceAfter.InexactFloat64(),
		Reason:        r.Reason,
	}
	if r.PnLPercent != nil {
		pnl := r.PnLPercent.InexactFloat64()
		t.PnLPct = &pnl
	}
	return t
}
