package cryptocom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrStalePrices accompanies a cached price map returned after a failed fetch
var ErrStalePrices = errors.New("serving cached prices")

// Client reads public market data from the Crypto.com Exchange API
type Client struct {
	baseURL    string
	symbols    map[string]bool
	httpClient *http.Client
	store      PriceStore
	logger     zerolog.Logger

	mu       sync.RWMutex
	lastGood map[string]float64
}

// NewClient creates a client that reports prices for symbols only. store may be nil.
func NewClient(baseURL string, symbols []string, timeout time.Duration, store PriceStore, logger zerolog.Logger) *Client {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[s] = true
	}
	return &Client{
		baseURL:    baseURL,
		symbols:    set,
		httpClient: &http.Client{Timeout: timeout},
		store:      store,
		logger:     logger.With().Str("component", "cryptocom").Logger(),
	}
}

// flexFloat accepts both JSON numbers and numeric strings
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type tickerResponse struct {
	Code   int `json:"code"`
	Result struct {
		Data []struct {
			Instrument string    `json:"i"`
			Last       flexFloat `json:"a"`
		} `json:"data"`
	} `json:"result"`
}

type candleResponse struct {
	Code   int `json:"code"`
	Result struct {
		Data []struct {
			T int64     `json:"t"`
			O flexFloat `json:"o"`
			H flexFloat `json:"h"`
			L flexFloat `json:"l"`
			C flexFloat `json:"c"`
			V flexFloat `json:"v"`
		} `json:"data"`
	} `json:"result"`
}

// GetPrices fetches all tickers and keeps the tracked symbols. On failure it
// returns the last good map (memory first, then the store) with the error.
func (c *Client) GetPrices(ctx context.Context) (map[string]float64, error) {
	prices, err := c.fetchTickers(ctx)
	if err == nil {
		c.mu.Lock()
		c.lastGood = copyPrices(prices)
		c.mu.Unlock()
		if c.store != nil {
			if serr := c.store.SavePrices(ctx, prices); serr != nil {
				c.logger.Warn().Err(serr).Msg("Failed to persist prices")
			}
		}
		return prices, nil
	}

	c.logger.Warn().Err(err).Msg("Ticker fetch failed, falling back to cached prices")

	c.mu.RLock()
	cached := copyPrices(c.lastGood)
	c.mu.RUnlock()
	if len(cached) == 0 && c.store != nil {
		if stored, serr := c.store.LoadPrices(ctx); serr == nil {
			cached = stored
		}
	}
	if len(cached) == 0 {
		return nil, fmt.Errorf("error fetching tickers: %w", err)
	}
	return cached, fmt.Errorf("%w: %v", ErrStalePrices, err)
}

func (c *Client) fetchTickers(ctx context.Context) (map[string]float64, error) {
	body, err := c.get(ctx, "/public/get-tickers", nil)
	if err != nil {
		return nil, err
	}

	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing tickers: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("API error code %d", resp.Code)
	}

	prices := make(map[string]float64, len(c.symbols))
	for _, t := range resp.Result.Data {
		if !c.symbols[t.Instrument] || t.Last <= 0 {
			continue
		}
		prices[t.Instrument] = float64(t.Last)
	}
	if len(prices) == 0 {
		return nil, errors.New("no tracked symbols in ticker response")
	}
	return prices, nil
}

// GetCandles fetches candlesticks oldest first
func (c *Client) GetCandles(ctx context.Context, symbol, timeframe string, count int) ([]Candle, error) {
	params := url.Values{}
	params.Set("instrument_name", symbol)
	params.Set("timeframe", timeframe)
	params.Set("count", strconv.Itoa(count))

	body, err := c.get(ctx, "/public/get-candlestick", params)
	if err != nil {
		return nil, err
	}

	var resp candleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("error parsing candles: %w", err)
	}
	if resp.Code != 0 {
		return nil, fmt.Errorf("API error code %d", resp.Code)
	}

	candles := make([]Candle, 0, len(resp.Result.Data))
	for _, d := range resp.Result.Data {
		if d.C <= 0 {
			continue
		}
		candles = append(candles, Candle{
			Time:   time.UnixMilli(d.T).UTC(),
			Open:   float64(d.O),
			High:   float64(d.H),
			Low:    float64(d.L),
			Close:  float64(d.C),
			Volume: float64(d.V),
		})
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return candles, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func copyPrices(in map[string]float64) map[string]float64 {
	if in == nil {
		return nil
	}
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
