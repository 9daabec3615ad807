package cryptocom

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// MockClient provides simulated market data for development and tests
type MockClient struct {
	prices map[string]float64
	rng    *rand.Rand
	step   float64 // max fractional move per call
	mu     sync.Mutex
}

// defaultMockPrices are realistic starting points for the stock symbols
var defaultMockPrices = map[string]float64{
	"BTC_USDT":  104500.00,
	"ETH_USDT":  3900.00,
	"SOL_USDT":  220.00,
	"DOGE_USDT": 0.40,
	"SHIB_USDT": 0.000024,
	"CRO_USDT":  0.16,
	"XRP_USDT":  2.35,
	"ADA_USDT":  1.05,
}

// NewMockClient creates a mock tracking symbols. Unknown symbols start at 100.
func NewMockClient(symbols []string, seed int64) *MockClient {
	prices := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		if p, ok := defaultMockPrices[s]; ok {
			prices[s] = p
		} else {
			prices[s] = 100
		}
	}
	return &MockClient{
		prices: prices,
		rng:    rand.New(rand.NewSource(seed)),
		step:   0.005,
	}
}

// SetPrice pins a symbol's current price
func (mc *MockClient) SetPrice(symbol string, price float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.prices[symbol] = price
}

// SetStep sets the random walk amplitude; zero freezes prices
func (mc *MockClient) SetStep(step float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.step = step
}

// GetPrices returns the current prices, then moves each by up to +/-step
func (mc *MockClient) GetPrices(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	out := make(map[string]float64, len(mc.prices))
	for symbol, price := range mc.prices {
		out[symbol] = price
		change := (mc.rng.Float64()*2 - 1) * mc.step
		mc.prices[symbol] = price * (1 + change)
	}
	return out, nil
}

// GetCandles returns a synthetic one-minute walk ending at the current price
func (mc *MockClient) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	price, ok := mc.prices[symbol]
	if !ok {
		price = 100
	}

	candles := make([]Candle, count)
	end := time.Now().UTC().Truncate(time.Minute)
	for i := count - 1; i >= 0; i-- {
		open := price * (1 + (mc.rng.Float64()*2-1)*mc.step)
		high, low := price, open
		if open > high {
			high, low = open, price
		}
		candles[i] = Candle{
			Time:   end.Add(-time.Duration(count-1-i) * time.Minute),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: 1000 * mc.rng.Float64(),
		}
		price = open
	}
	return candles, nil
}
