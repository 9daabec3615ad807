package circuit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrDrawdownTripped is returned for entries attempted after the guard tripped
var ErrDrawdownTripped = errors.New("drawdown guard tripped: entries halted until reset")

// GuardState represents the drawdown guard state
type GuardState string

const (
	StateClosed  GuardState = "closed"  // Normal operation
	StateTripped GuardState = "tripped" // Entries halted, exits allowed
)

// DrawdownGuard tracks portfolio equity against its running peak and halts
// new entries once the drawdown reaches the limit. The trip is one-way until
// Reset.
type DrawdownGuard struct {
	maxDrawdown float64
	peak        float64
	lastEquity  float64
	state       GuardState
	tripReason  string
	trippedAt   time.Time
	mu          sync.RWMutex
	onTrip      func(reason string, drawdown float64)
}

// NewDrawdownGuard creates a guard with peak equal to the initial equity
func NewDrawdownGuard(maxDrawdown, initialEquity float64) *DrawdownGuard {
	return &DrawdownGuard{
		maxDrawdown: maxDrawdown,
		peak:        initialEquity,
		lastEquity:  initialEquity,
		state:       StateClosed,
	}
}

// OnTrip sets the callback fired once when the guard trips
func (g *DrawdownGuard) OnTrip(handler func(reason string, drawdown float64)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTrip = handler
}

// Observe records current equity, raising the peak if needed. It returns
// true only on the observation that trips the guard.
func (g *DrawdownGuard) Observe(equity float64, now time.Time) bool {
	if math.IsNaN(equity) || math.IsInf(equity, 0) {
		return false
	}

	g.mu.Lock()
	g.lastEquity = equity
	if equity > g.peak {
		g.peak = equity
	}

	dd := g.drawdown()
	if g.state == StateTripped || dd < g.maxDrawdown {
		g.mu.Unlock()
		return false
	}

	g.state = StateTripped
	g.trippedAt = now
	g.tripReason = fmt.Sprintf("drawdown %.2f%% from peak $%.2f reached limit %.2f%%",
		dd*100, g.peak, g.maxDrawdown*100)
	handler, reason := g.onTrip, g.tripReason
	g.mu.Unlock()

	if handler != nil {
		handler(reason, dd)
	}
	return true
}

// CanEnter reports whether new positions are allowed
func (g *DrawdownGuard) CanEnter() (bool, string) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.state == StateTripped {
		return false, g.tripReason
	}
	return true, ""
}

// IsTripped reports whether the guard has tripped
func (g *DrawdownGuard) IsTripped() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == StateTripped
}

// Drawdown returns the current fractional drawdown from peak
func (g *DrawdownGuard) Drawdown() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.drawdown()
}

// Peak returns the running peak equity
func (g *DrawdownGuard) Peak() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.peak
}

// Reset closes the guard and restarts peak tracking from initialEquity
func (g *DrawdownGuard) Reset(initialEquity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateClosed
	g.peak = initialEquity
	g.lastEquity = initialEquity
	g.tripReason = ""
	g.trippedAt = time.Time{}
}

// GetStats returns current statistics
func (g *DrawdownGuard) GetStats() map[string]interface{} {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return map[string]interface{}{
		"state":        string(g.state),
		"peak_equity":  g.peak,
		"last_equity":  g.lastEquity,
		"drawdown":     g.drawdown(),
		"max_drawdown": g.maxDrawdown,
		"trip_reason":  g.tripReason,
		"tripped_at":   g.trippedAt,
	}
}

func (g *DrawdownGuard) drawdown() float64 {
	if g.peak <= 0 {
		return 0
	}
	return (g.peak - g.lastEquity) / g.peak
}
