package risk

import (
	"math"

	"github.com/mohameddodda/paper-trading-bot/internal/volatility"
)

// Config holds sizing and threshold parameters
type Config struct {
	MaxRiskPct        float64 // cap on the fraction of cash committed per entry
	DefaultRiskPct    float64 // fraction used when no sizing volatility is available
	BaseRiskPct       float64 // floor of the risk curve
	BaseStopLossPct   float64 // negative, e.g. -0.05
	BaseTakeProfitPct float64 // positive, e.g. 0.10
	BuyDropPct        float64 // negative, e.g. -0.02
	MinVolatility     float64
	MaxVolatility     float64
	VolatilityWindow  int
}

// DefaultConfig returns the stock parameters
func DefaultConfig() Config {
	return Config{
		MaxRiskPct:        0.03,
		DefaultRiskPct:    0.02,
		BaseRiskPct:       0.01,
		BaseStopLossPct:   -0.05,
		BaseTakeProfitPct: 0.10,
		BuyDropPct:        -0.02,
		MinVolatility:     0.01,
		MaxVolatility:     0.05,
		VolatilityWindow:  10,
	}
}

// Assessment is the full set of sizing outputs for one price history
type Assessment struct {
	Volatility       float64 `json:"volatility"`        // clamped range volatility, drives thresholds
	SizingVolatility float64 `json:"sizing_volatility"` // mean abs % change, drives risk fraction
	RiskFraction     float64 `json:"risk_fraction"`
	StopLoss         float64 `json:"stop_loss"`
	TakeProfit       float64 `json:"take_profit"`
	BuyThreshold     float64 `json:"buy_threshold"`
}

// Sizer derives trade size and exit thresholds from volatility.
// It holds no mutable state.
type Sizer struct {
	config    Config
	estimator volatility.Estimator
}

// NewSizer creates a sizer
func NewSizer(config Config) *Sizer {
	return &Sizer{
		config:    config,
		estimator: volatility.NewEstimator(config.MinVolatility, config.MaxVolatility, config.VolatilityWindow),
	}
}

// RiskFraction returns min(base + vol/10, max). Non-decreasing in vol.
func (s *Sizer) RiskFraction(vol float64) float64 {
	if math.IsNaN(vol) || math.IsInf(vol, 0) || vol < 0 {
		return s.config.DefaultRiskPct
	}
	return math.Min(s.config.BaseRiskPct+vol/10, s.config.MaxRiskPct)
}

// StopLoss returns the dynamic stop threshold, widening with volatility
func (s *Sizer) StopLoss(vol float64) float64 {
	return s.config.BaseStopLossPct * (1 + vol)
}

// TakeProfit returns the dynamic profit target, tightening with volatility
func (s *Sizer) TakeProfit(vol float64) float64 {
	return s.config.BaseTakeProfitPct * (1 - vol/2)
}

// BuyThreshold returns the drop from the recent high required to enter
func (s *Sizer) BuyThreshold(vol float64) float64 {
	return s.config.BuyDropPct * (1 + vol)
}

// Assess computes every sizing output for a price history
func (s *Sizer) Assess(history []float64) Assessment {
	vol := s.estimator.Range(history)

	risk := s.config.DefaultRiskPct
	sizingVol, ok := s.estimator.MeanAbsChange(history)
	if ok {
		risk = s.RiskFraction(sizingVol)
	}
	if risk > s.config.MaxRiskPct {
		risk = s.config.MaxRiskPct
	}

	return Assessment{
		Volatility:       vol,
		SizingVolatility: sizingVol,
		RiskFraction:     risk,
		StopLoss:         s.StopLoss(vol),
		TakeProfit:       s.TakeProfit(vol),
		BuyThreshold:     s.BuyThreshold(vol),
	}
}

// DropFromHigh returns the fractional move of the last price from the highest
// earlier price in history. ok is false when it cannot be computed.
func DropFromHigh(history []float64) (float64, bool) {
	if len(history) < 2 {
		return 0, false
	}
	high := history[0]
	for _, p := range history[:len(history)-1] {
		if p > high {
			high = p
		}
	}
	return relative(history[len(history)-1], high)
}

// GainFromLow returns the fractional move of the last price from the lowest
// earlier price in history.
func GainFromLow(history []float64) (float64, bool) {
	if len(history) < 2 {
		return 0, false
	}
	low := history[0]
	for _, p := range history[:len(history)-1] {
		if p < low {
			low = p
		}
	}
	return relative(history[len(history)-1], low)
}

func relative(price, ref float64) (float64, bool) {
	if ref <= 0 {
		return 0, false
	}
	v := (price - ref) / ref
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// PnLFraction returns (price-entry)/entry
func PnLFraction(price, entry float64) (float64, bool) {
	return relative(price, entry)
}
