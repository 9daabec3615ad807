package events

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeExecuted    EventType = "TRADE_EXECUTED"
	EventActionRejected   EventType = "ACTION_REJECTED"
	EventAdvisoryFailed   EventType = "ADVISORY_FAILED"
	EventPriceUnavailable EventType = "PRICE_UNAVAILABLE"
	EventDrawdownTripped  EventType = "DRAWDOWN_TRIPPED"
	EventTickCompleted    EventType = "TICK_COMPLETED"
	EventBotStarted       EventType = "BOT_STARTED"
	EventBotStopped       EventType = "BOT_STOPPED"
	EventBotReset         EventType = "BOT_RESET"
	EventError            EventType = "ERROR"
)

// TradeEvent is the immutable audit record of one ledger mutation
type TradeEvent struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Price         float64   `json:"price"`
	Quantity      float64   `json:"quantity"`
	ResultingCash float64   `json:"resulting_cash"`
	PnLPct        *float64  `json:"pnl_pct,omitempty"`
	Reason        string    `json:"reason"`
}

// NewTradeEvent stamps a trade record with a fresh ID
func NewTradeEvent(ts time.Time, symbol, side string, price, qty, cash float64, pnlPct *float64, reason string) TradeEvent {
	return TradeEvent{
		ID:            uuid.New().String(),
		Timestamp:     ts,
		Symbol:        symbol,
		Side:          side,
		Price:         price,
		Quantity:      qty,
		ResultingCash: cash,
		PnLPct:        pnlPct,
		Reason:        reason,
	}
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Trade     *TradeEvent            `json:"trade,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus fans events out to subscribers. Delivery is asynchronous and a
// failing subscriber never affects the publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
	inflight    sync.WaitGroup
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range eb.subscribers[event.Type] {
		eb.deliver(sub, event)
	}
	for _, sub := range eb.allSubs {
		eb.deliver(sub, event)
	}
}

func (eb *EventBus) deliver(sub Subscriber, event Event) {
	eb.inflight.Add(1)
	go func() {
		defer eb.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "event subscriber panicked on %s: %v\n", event.Type, r)
			}
		}()
		sub(event)
	}()
}

// Wait blocks until every delivery started so far has returned
func (eb *EventBus) Wait() {
	eb.inflight.Wait()
}

// TradeExecuted wraps an executed trade in an event
func TradeExecuted(trade TradeEvent) Event {
	return Event{
		Type:      EventTradeExecuted,
		Timestamp: trade.Timestamp,
		Trade:     &trade,
	}
}

// ActionRejected describes an action that was refused, with the reason
func ActionRejected(symbol, action, reason string) Event {
	return Event{
		Type: EventActionRejected,
		Data: map[string]interface{}{
			"symbol": symbol,
			"action": action,
			"reason": reason,
		},
	}
}

// ErrorEvent reports a failure in source
func ErrorEvent(source, message string) Event {
	return Event{
		Type: EventError,
		Data: map[string]interface{}{
			"source":  source,
			"message": message,
		},
	}
}
