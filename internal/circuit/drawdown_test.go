package circuit

import (
	"math"
	"testing"
	"time"
)

func TestDrawdownGuard_Trips(t *testing.T) {
	g := NewDrawdownGuard(0.20, 1_000_000)
	now := time.Now()

	var calls int
	var gotDD float64
	g.OnTrip(func(reason string, dd float64) {
		calls++
		gotDD = dd
	})

	if g.Observe(850_000, now) {
		t.Fatal("Expected no trip at 15% drawdown")
	}
	if ok, _ := g.CanEnter(); !ok {
		t.Error("Expected entries allowed before trip")
	}

	if !g.Observe(790_000, now) {
		t.Fatal("Expected trip at 21% drawdown")
	}
	if ok, reason := g.CanEnter(); ok || reason == "" {
		t.Errorf("Expected entries blocked with a reason, got ok=%v reason=%q", ok, reason)
	}
	if calls != 1 {
		t.Errorf("Expected one trip callback, got %d", calls)
	}
	if math.Abs(gotDD-0.21) > 1e-9 {
		t.Errorf("Expected drawdown 0.21, got %v", gotDD)
	}

	// Recovery does not close the guard
	if g.Observe(1_100_000, now) {
		t.Error("Expected no second trip")
	}
	if !g.IsTripped() {
		t.Error("Expected guard to stay tripped until reset")
	}
	if calls != 1 {
		t.Errorf("Expected callback to fire once, got %d", calls)
	}
}

func TestDrawdownGuard_PeakTracking(t *testing.T) {
	g := NewDrawdownGuard(0.20, 1_000_000)
	now := time.Now()

	g.Observe(1_200_000, now)
	if g.Peak() != 1_200_000 {
		t.Errorf("Expected peak 1200000, got %v", g.Peak())
	}

	// 20% off the new peak is exactly the limit
	if !g.Observe(960_000, now) {
		t.Error("Expected trip when drawdown equals the limit")
	}
}

func TestDrawdownGuard_IgnoresNonFinite(t *testing.T) {
	g := NewDrawdownGuard(0.20, 1_000_000)

	g.Observe(math.NaN(), time.Now())
	g.Observe(math.Inf(1), time.Now())

	if g.Peak() != 1_000_000 {
		t.Errorf("Expected peak unchanged, got %v", g.Peak())
	}
	if g.Drawdown() != 0 {
		t.Errorf("Expected zero drawdown, got %v", g.Drawdown())
	}
}

func TestDrawdownGuard_Reset(t *testing.T) {
	g := NewDrawdownGuard(0.20, 1_000_000)
	g.Observe(700_000, time.Now())

	g.Reset(1_000_000)

	if g.IsTripped() {
		t.Error("Expected guard closed after reset")
	}
	if ok, _ := g.CanEnter(); !ok {
		t.Error("Expected entries allowed after reset")
	}
	stats := g.GetStats()
	if stats["state"] != string(StateClosed) {
		t.Errorf("Expected state %s, got %v", StateClosed, stats["state"])
	}
	if stats["peak_equity"] != 1_000_000.0 {
		t.Errorf("Expected peak reset to 1000000, got %v", stats["peak_equity"])
	}
}
