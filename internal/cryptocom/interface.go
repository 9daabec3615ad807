package cryptocom

import (
	"context"
	"time"
)

// PriceSource returns the latest price per symbol. On a transient failure it
// may return a stale mapping together with the error. Prices are always > 0.
type PriceSource interface {
	GetPrices(ctx context.Context) (map[string]float64, error)
}

// CandleSource returns historical candles for replay
type CandleSource interface {
	GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error)
}

// MarketClient is the full public market data surface
type MarketClient interface {
	PriceSource
	CandleSource
}

// PriceStore persists the last good price map
type PriceStore interface {
	SavePrices(ctx context.Context, prices map[string]float64) error
	LoadPrices(ctx context.Context) (map[string]float64, error)
}

// Candle represents a candlestick
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Ensure both Client and MockClient implement MarketClient
var _ MarketClient = (*Client)(nil)
var _ MarketClient = (*MockClient)(nil)
