package bot

// PriceHistory is a bounded, append-only window of positive prices. The
// oldest price is evicted once capacity is reached.
type PriceHistory struct {
	prices   []float64
	capacity int
}

// NewPriceHistory creates an empty history
func NewPriceHistory(capacity int) *PriceHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &PriceHistory{prices: make([]float64, 0, capacity), capacity: capacity}
}

// Append adds a price, ignoring non-positive values
func (h *PriceHistory) Append(price float64) bool {
	if !(price > 0) {
		return false
	}
	if len(h.prices) == h.capacity {
		copy(h.prices, h.prices[1:])
		h.prices = h.prices[:len(h.prices)-1]
	}
	h.prices = append(h.prices, price)
	return true
}

// Len returns the number of stored prices
func (h *PriceHistory) Len() int {
	return len(h.prices)
}

// Values returns a copy, oldest first
func (h *PriceHistory) Values() []float64 {
	out := make([]float64, len(h.prices))
	copy(out, h.prices)
	return out
}
