package logging

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := uuid.New().String()
	l := FromContext(ctx).WithField("trace_id", traceID)
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	return NewContext(ctx, l), l
}

// TradeContext creates a logger for a ledger trade
func TradeContext(symbol, side string, quantity, price float64) *Logger {
	return Default().WithComponent("trade").WithFields(map[string]interface{}{
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
		"price":    price,
	})
}

// AdvisoryContext creates a logger for advisory calls
func AdvisoryContext(symbol, model string) *Logger {
	return Default().WithComponent("advisory").WithFields(map[string]interface{}{
		"symbol": symbol,
		"model":  model,
	})
}

// TraceID returns the trace ID stored by WithTraceContext, if any
func TraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}
