package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mohameddodda/paper-trading-bot/internal/events"
)

// TradeWriter persists a journal row
type TradeWriter interface {
	CreateTrade(ctx context.Context, trade *TradeRecord) error
}

// TradeSink journals every executed trade. Write failures are logged and
// never reach the engine.
type TradeSink struct {
	writer  TradeWriter
	timeout time.Duration
	logger  zerolog.Logger
}

// NewTradeSink creates a sink writing through writer
func NewTradeSink(writer TradeWriter, logger zerolog.Logger) *TradeSink {
	return &TradeSink{
		writer:  writer,
		timeout: 5 * time.Second,
		logger:  logger.With().Str("component", "TradeSink").Logger(),
	}
}

// Subscribe attaches the sink to trade events on the bus
func (s *TradeSink) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventTradeExecuted, s.Handle)
}

// Handle writes the trade carried by event, if any
func (s *TradeSink) Handle(event events.Event) {
	if event.Trade == nil {
		return
	}
	rec := FromTradeEvent(*event.Trade)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.writer.CreateTrade(ctx, rec); err != nil {
		s.logger.Error().Err(err).
			Str("trade_id", rec.ID).
			Str("symbol", rec.Symbol).
			Msg("Failed to journal trade")
	}
}
