package bot

import "testing"

func TestPriceHistory_EvictsOldest(t *testing.T) {
	h := NewPriceHistory(3)
	for _, p := range []float64{1, 2, 3, 4} {
		h.Append(p)
	}
	got := h.Values()
	want := []float64{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("Expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v at %d, got %v", want[i], i, got[i])
		}
	}
}

func TestPriceHistory_IgnoresNonPositive(t *testing.T) {
	h := NewPriceHistory(5)
	if h.Append(0) || h.Append(-3) {
		t.Error("Expected non-positive prices to be rejected")
	}
	if h.Len() != 0 {
		t.Errorf("Expected empty history, got %d", h.Len())
	}
}

func TestConsultSchedule(t *testing.T) {
	s := NewConsultSchedule(15)
	fired := 0
	for i := 0; i < 45; i++ {
		if s.Advance() {
			fired++
		}
	}
	if fired != 3 {
		t.Errorf("Expected 3 consultations in 45 ticks, got %d", fired)
	}
	s.Reset()
	if s.Count() != 0 {
		t.Errorf("Expected count 0 after reset, got %d", s.Count())
	}
}
