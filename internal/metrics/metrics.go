// Package metrics exposes engine activity as Prometheus series. It is driven
// entirely by the event bus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohameddodda/paper-trading-bot/internal/events"
)

// Metrics holds every series the engine reports
type Metrics struct {
	registry *prometheus.Registry

	trades           *prometheus.CounterVec
	rejections       *prometheus.CounterVec
	advisoryFailures *prometheus.CounterVec
	priceMisses      *prometheus.CounterVec
	trips            prometheus.Counter
	ticks            prometheus.Counter
	equity           prometheus.Gauge
	cash             prometheus.Gauge
	drawdown         prometheus.Gauge
	running          prometheus.Gauge
	tickDuration     prometheus.Histogram
}

// New creates the series on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_trades_total", Help: "Executed paper trades",
		}, []string{"symbol", "side", "reason"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_actions_rejected_total", Help: "Trade actions refused by a rule or guard",
		}, []string{"action"}),
		advisoryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_advisory_failures_total", Help: "Advisory consultations that produced no signal",
		}, []string{"kind"}),
		priceMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paper_price_unavailable_total", Help: "Symbols skipped for lack of a price",
		}, []string{"symbol"}),
		trips:    prometheus.NewCounter(prometheus.CounterOpts{Name: "paper_drawdown_trips_total", Help: "Drawdown guard trips"}),
		ticks:    prometheus.NewCounter(prometheus.CounterOpts{Name: "paper_ticks_total", Help: "Completed engine ticks"}),
		equity:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "paper_equity_usd", Help: "Mark-to-market equity"}),
		cash:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "paper_cash_usd", Help: "Uncommitted cash"}),
		drawdown: prometheus.NewGauge(prometheus.GaugeOpts{Name: "paper_drawdown_ratio", Help: "Drawdown from peak equity, 0..1"}),
		running:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "paper_engine_running", Help: "1 while the tick loop runs"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paper_tick_duration_seconds",
			Help:    "Wall time of one engine tick",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		}),
	}

	m.registry.MustRegister(
		m.trades, m.rejections, m.advisoryFailures, m.priceMisses,
		m.trips, m.ticks, m.equity, m.cash, m.drawdown, m.running, m.tickDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Subscribe attaches the metrics to every event on the bus
func (m *Metrics) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(m.Observe)
}

// Observe updates series from one event
func (m *Metrics) Observe(event events.Event) {
	switch event.Type {
	case events.EventTradeExecuted:
		if t := event.Trade; t != nil {
			m.trades.WithLabelValues(t.Symbol, t.Side, t.Reason).Inc()
			m.cash.Set(t.ResultingCash)
		}
	case events.EventActionRejected:
		m.rejections.WithLabelValues(stringField(event.Data, "action")).Inc()
	case events.EventAdvisoryFailed:
		m.advisoryFailures.WithLabelValues(stringField(event.Data, "kind")).Inc()
	case events.EventPriceUnavailable:
		m.priceMisses.WithLabelValues(stringField(event.Data, "symbol")).Inc()
	case events.EventDrawdownTripped:
		m.trips.Inc()
	case events.EventTickCompleted:
		m.ticks.Inc()
		if v, ok := floatField(event.Data, "equity"); ok {
			m.equity.Set(v)
		}
		if v, ok := floatField(event.Data, "cash"); ok {
			m.cash.Set(v)
		}
		if v, ok := floatField(event.Data, "drawdown"); ok {
			m.drawdown.Set(v)
		}
		if v, ok := floatField(event.Data, "duration_ms"); ok {
			m.tickDuration.Observe(v / 1000)
		}
	case events.EventBotStarted:
		m.running.Set(1)
	case events.EventBotStopped:
		m.running.Set(0)
	case events.EventBotReset:
		m.drawdown.Set(0)
		if v, ok := floatField(event.Data, "cash"); ok {
			m.cash.Set(v)
			m.equity.Set(v)
		}
	}
}

func stringField(data map[string]interface{}, key string) string {
	if s, ok := data[key].(string); ok && s != "" {
		return s
	}
	return "unknown"
}

func floatField(data map[string]interface{}, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
