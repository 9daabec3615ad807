package risk

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestRiskFraction_MonotonicAndCapped(t *testing.T) {
	s := NewSizer(DefaultConfig())

	vols := []float64{0, 0.01, 0.05, 0.1, 0.15, 0.2, 0.5, 1, 5}
	prev := -1.0
	for _, v := range vols {
		rf := s.RiskFraction(v)
		if rf < prev {
			t.Errorf("Expected non-decreasing risk fraction, got %v after %v at vol %v", rf, prev, v)
		}
		if rf > 0.03 {
			t.Errorf("Expected risk fraction capped at 0.03, got %v at vol %v", rf, v)
		}
		prev = rf
	}

	if got := s.RiskFraction(0.1); !almostEqual(got, 0.02) {
		t.Errorf("Expected 0.02 at vol 0.1, got %v", got)
	}
	if got := s.RiskFraction(math.NaN()); got != 0.02 {
		t.Errorf("Expected default risk for NaN volatility, got %v", got)
	}
}

func TestThresholds(t *testing.T) {
	s := NewSizer(DefaultConfig())

	tests := []struct {
		name     string
		got      float64
		expected float64
	}{
		{"take profit at vol 0.02", s.TakeProfit(0.02), 0.099},
		{"stop loss at vol 0.05", s.StopLoss(0.05), -0.0525},
		{"stop loss at vol 0.01", s.StopLoss(0.01), -0.0505},
		{"buy threshold at vol 0.05", s.BuyThreshold(0.05), -0.021},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if math.Abs(tt.got-tt.expected) > 1e-12 {
				t.Errorf("Expected %v, got %v", tt.expected, tt.got)
			}
		})
	}

	// Stop loss widens and take profit tightens as volatility rises
	if s.StopLoss(0.05) >= s.StopLoss(0.01) {
		t.Error("Expected stop loss to widen with volatility")
	}
	if s.TakeProfit(0.05) >= s.TakeProfit(0.01) {
		t.Error("Expected take profit to tighten with volatility")
	}
}

func TestAssess(t *testing.T) {
	s := NewSizer(DefaultConfig())
	history := []float64{100, 99, 98, 97}

	a := s.Assess(history)

	vol := 3.0 / 97.0
	if !almostEqual(a.Volatility, vol) {
		t.Errorf("Expected volatility %v, got %v", vol, a.Volatility)
	}
	if !almostEqual(a.BuyThreshold, -0.02*(1+vol)) {
		t.Errorf("Expected buy threshold %v, got %v", -0.02*(1+vol), a.BuyThreshold)
	}
	// ~1% average moves put the risk curve above its cap
	if a.RiskFraction != 0.03 {
		t.Errorf("Expected capped risk fraction 0.03, got %v", a.RiskFraction)
	}

	again := s.Assess(history)
	if again != a {
		t.Errorf("Expected identical assessment, got %+v and %+v", a, again)
	}
}

func TestAssess_ShortHistoryUsesDefaultRisk(t *testing.T) {
	s := NewSizer(DefaultConfig())

	a := s.Assess([]float64{100})
	if a.RiskFraction != 0.02 {
		t.Errorf("Expected default risk 0.02, got %v", a.RiskFraction)
	}
	if a.Volatility != 0.01 {
		t.Errorf("Expected minimum volatility 0.01, got %v", a.Volatility)
	}
}

func TestDropAndGain(t *testing.T) {
	tests := []struct {
		name    string
		history []float64
		drop    float64
		gain    float64
		ok      bool
	}{
		{"falling", []float64{100, 99, 98, 97}, -0.03, 97.0/98.0 - 1, true},
		{"rising", []float64{90, 95, 99}, 99.0/95.0 - 1, 0.1, true},
		{"too short", []float64{100}, 0, 0, false},
		{"zero reference", []float64{0, 0, 5}, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drop, ok := DropFromHigh(tt.history)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			gain, _ := GainFromLow(tt.history)
			if !tt.ok {
				return
			}
			if math.Abs(drop-tt.drop) > 1e-12 {
				t.Errorf("Expected drop %v, got %v", tt.drop, drop)
			}
			if math.Abs(gain-tt.gain) > 1e-12 {
				t.Errorf("Expected gain %v, got %v", tt.gain, gain)
			}
		})
	}
}
