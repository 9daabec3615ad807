package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohameddodda/paper-trading-bot/config"
	"github.com/mohameddodda/paper-trading-bot/internal/events"
)

func TestFromTradeEvent(t *testing.T) {
	pnl := -6.18556701
	ts := time.Date(2025, 3, 1, 9, 30, 0, 0, time.FixedZone("X", 3600))
	trade := events.NewTradeEvent(ts, "BTC_USDT", "SELL", 91, 309.27835, 998144.329896, &pnl, "Stop-Loss")

	rec := FromTradeEvent(trade)

	if rec.ID != trade.ID {
		t.Errorf("Expected ID %s, got %s", trade.ID, rec.ID)
	}
	if rec.ExecutedAt.Location() != time.UTC {
		t.Errorf("Expected UTC timestamp, got %v", rec.ExecutedAt.Location())
	}
	if rec.Price.String() != "91" {
		t.Errorf("Expected price 91, got %s", rec.Price)
	}
	if rec.BalanceAfter.String() != "998144.329896" {
		t.Errorf("Expected balance 998144.329896, got %s", rec.BalanceAfter)
	}
	if rec.PnLPercent == nil || rec.PnLPercent.String() != "-6.1856" {
		t.Errorf("Expected pnl -6.1856, got %v", rec.PnLPercent)
	}

	back := rec.ToTradeEvent()
	if back.Reason != "Stop-Loss" || back.Side != "SELL" || back.Quantity != 309.27835 {
		t.Errorf("Expected round trip of trade fields, got %+v", back)
	}
}

func TestFromTradeEvent_BuyHasNoPnL(t *testing.T) {
	trade := events.NewTradeEvent(time.Now(), "ETH_USDT", "BUY", 3900, 0.25, 999025, nil, "Dip-Buy")
	if rec := FromTradeEvent(trade); rec.PnLPercent != nil {
		t.Errorf("Expected nil pnl on buy, got %v", rec.PnLPercent)
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	rows   []*TradeRecord
	failed bool
}

func (w *fakeWriter) CreateTrade(ctx context.Context, trade *TradeRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failed {
		return errors.New("connection refused")
	}
	w.rows = append(w.rows, trade)
	return nil
}

func TestTradeSink(t *testing.T) {
	w := &fakeWriter{}
	sink := NewTradeSink(w, zerolog.Nop())
	bus := events.NewEventBus()
	sink.Subscribe(bus)

	trade := events.NewTradeEvent(time.Now(), "SOL_USDT", "BUY", 220, 10, 997800, nil, "Force-Buy")
	bus.Publish(events.TradeExecuted(trade))
	bus.Publish(events.Event{Type: events.EventTickCompleted})
	bus.Wait()

	if len(w.rows) != 1 {
		t.Fatalf("Expected 1 journal row, got %d", len(w.rows))
	}
	if w.rows[0].Symbol != "SOL_USDT" {
		t.Errorf("Expected SOL_USDT, got %s", w.rows[0].Symbol)
	}

	// failures are swallowed
	w.failed = true
	sink.Handle(events.Event{Type: events.EventTradeExecuted, Trade: &trade})
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "paper"})
	want := "host=db port=5433 user=u password=p dbname=paper sslmode=disable"
	if dsn != want {
		t.Errorf("Expected %q, got %q", want, dsn)
	}
}
