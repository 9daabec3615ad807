package cryptocom

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const tickersBody = `{"id":-1,"method":"public/get-tickers","code":0,"result":{"data":[
	{"i":"BTC_USDT","a":"104500.5","b":"104500.1"},
	{"i":"ETH_USDT","a":3900.25},
	{"i":"DOGE_USDT","a":"0"},
	{"i":"PEPE_USDT","a":"0.00001"}
]}}`

type memStore struct {
	prices map[string]float64
	saves  int
}

func (m *memStore) SavePrices(ctx context.Context, prices map[string]float64) error {
	m.prices = copyPrices(prices)
	m.saves++
	return nil
}

func (m *memStore) LoadPrices(ctx context.Context) (map[string]float64, error) {
	if m.prices == nil {
		return nil, errors.New("empty")
	}
	return copyPrices(m.prices), nil
}

func newTestClient(url string, store PriceStore) *Client {
	return NewClient(url, []string{"BTC_USDT", "ETH_USDT", "DOGE_USDT"}, 2*time.Second, store, zerolog.Nop())
}

func TestClient_GetPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/public/get-tickers" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(tickersBody))
	}))
	defer server.Close()

	store := &memStore{}
	prices, err := newTestClient(server.URL, store).GetPrices(context.Background())
	if err != nil {
		t.Fatalf("GetPrices failed: %v", err)
	}

	if len(prices) != 2 {
		t.Fatalf("Expected 2 tracked positive prices, got %v", prices)
	}
	if prices["BTC_USDT"] != 104500.5 {
		t.Errorf("Expected BTC 104500.5, got %v", prices["BTC_USDT"])
	}
	if prices["ETH_USDT"] != 3900.25 {
		t.Errorf("Expected ETH 3900.25, got %v", prices["ETH_USDT"])
	}
	if _, ok := prices["DOGE_USDT"]; ok {
		t.Error("Expected zero price to be dropped")
	}
	if store.saves != 1 {
		t.Errorf("Expected prices persisted once, got %d", store.saves)
	}
}

func TestClient_GetPrices_FallsBackToCache(t *testing.T) {
	var fail atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(tickersBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)
	if _, err := client.GetPrices(context.Background()); err != nil {
		t.Fatalf("Initial GetPrices failed: %v", err)
	}

	fail.Store(true)
	prices, err := client.GetPrices(context.Background())
	if !errors.Is(err, ErrStalePrices) {
		t.Fatalf("Expected ErrStalePrices, got %v", err)
	}
	if prices["BTC_USDT"] != 104500.5 {
		t.Errorf("Expected cached BTC price, got %v", prices["BTC_USDT"])
	}
}

func TestClient_GetPrices_StoreFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := &memStore{prices: map[string]float64{"ETH_USDT": 3000}}
	prices, err := newTestClient(server.URL, store).GetPrices(context.Background())
	if !errors.Is(err, ErrStalePrices) {
		t.Fatalf("Expected ErrStalePrices, got %v", err)
	}
	if prices["ETH_USDT"] != 3000 {
		t.Errorf("Expected stored ETH price, got %v", prices["ETH_USDT"])
	}

	_, err = newTestClient(server.URL, nil).GetPrices(context.Background())
	if err == nil || errors.Is(err, ErrStalePrices) {
		t.Errorf("Expected hard failure without any cache, got %v", err)
	}
}

func TestClient_GetCandles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("instrument_name") != "BTC_USDT" || q.Get("timeframe") != "1m" || q.Get("count") != "2" {
			t.Errorf("Unexpected query %v", q)
		}
		w.Write([]byte(`{"code":0,"result":{"data":[
			{"t":1700000060000,"o":"101","h":"102","l":"100","c":"101.5","v":"3"},
			{"t":1700000000000,"o":"100","h":"101","l":"99","c":"100.5","v":"2"}
		]}}`))
	}))
	defer server.Close()

	candles, err := newTestClient(server.URL, nil).GetCandles(context.Background(), "BTC_USDT", "1m", 2)
	if err != nil {
		t.Fatalf("GetCandles failed: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(candles))
	}
	if candles[0].Close != 100.5 || candles[1].Close != 101.5 {
		t.Errorf("Expected candles sorted oldest first, got %+v", candles)
	}
}

func TestMockClient(t *testing.T) {
	mc := NewMockClient([]string{"BTC_USDT", "NEW_USDT"}, 1)

	first, err := mc.GetPrices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if first["BTC_USDT"] != 104500 {
		t.Errorf("Expected BTC seed price 104500, got %v", first["BTC_USDT"])
	}
	if first["NEW_USDT"] != 100 {
		t.Errorf("Expected unknown symbol to start at 100, got %v", first["NEW_USDT"])
	}

	second, _ := mc.GetPrices(context.Background())
	move := second["BTC_USDT"]/first["BTC_USDT"] - 1
	if move < -0.005 || move > 0.005 {
		t.Errorf("Expected move within 0.5%%, got %v", move)
	}

	mc.SetStep(0)
	mc.SetPrice("BTC_USDT", 50)
	a, _ := mc.GetPrices(context.Background())
	b, _ := mc.GetPrices(context.Background())
	if a["BTC_USDT"] != 50 || b["BTC_USDT"] != 50 {
		t.Errorf("Expected frozen price 50, got %v and %v", a["BTC_USDT"], b["BTC_USDT"])
	}
}
