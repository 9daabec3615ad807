// Package volatility turns a window of recent prices into a volatility scalar.
// All functions are pure: the result depends only on the slice passed in.
package volatility

import "math"

// Estimator computes volatility over a price window.
type Estimator struct {
	MinVolatility float64 // lower clamp and fallback for short windows
	MaxVolatility float64
	Window        int // lookback for MeanAbsChange, in price changes
}

// NewEstimator returns an estimator with the given clamp and lookback
func NewEstimator(minVol, maxVol float64, window int) Estimator {
	return Estimator{MinVolatility: minVol, MaxVolatility: maxVol, Window: window}
}

// Range returns (max-min)/min over prices, clamped to [MinVolatility, MaxVolatility].
// Fewer than two samples, a zero minimum or a non-finite result yield MinVolatility.
func (e Estimator) Range(prices []float64) float64 {
	if len(prices) < 2 {
		return e.MinVolatility
	}

	lo, hi := prices[0], prices[0]
	for _, p := range prices[1:] {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	if lo <= 0 {
		return e.MinVolatility
	}

	vol := (hi - lo) / lo
	if math.IsNaN(vol) || math.IsInf(vol, 0) {
		return e.MinVolatility
	}
	return e.clamp(vol)
}

// MeanAbsChange returns the mean absolute percentage change (in percent, so
// 1.5 means 1.5%) over the last Window changes. ok is false when there is no
// change to measure.
func (e Estimator) MeanAbsChange(prices []float64) (vol float64, ok bool) {
	if len(prices) < 2 {
		return 0, false
	}

	start := 1
	if e.Window > 0 && len(prices)-1 > e.Window {
		start = len(prices) - e.Window
	}

	var sum float64
	var n int
	for i := start; i < len(prices); i++ {
		prev := prices[i-1]
		if prev <= 0 {
			continue
		}
		sum += math.Abs((prices[i]-prev)/prev) * 100
		n++
	}
	if n == 0 {
		return 0, false
	}

	vol = sum / float64(n)
	if math.IsNaN(vol) || math.IsInf(vol, 0) {
		return 0, false
	}
	return vol, true
}

func (e Estimator) clamp(v float64) float64 {
	if v < e.MinVolatility {
		return e.MinVolatility
	}
	if v > e.MaxVolatility {
		return e.MaxVolatility
	}
	return v
}
