package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCompleter struct {
	responses []string
	errs      []error
	calls     int
	delay     time.Duration
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	i := f.calls
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func testAdvisorConfig() AdvisorConfig {
	cfg := DefaultAdvisorConfig()
	cfg.Retry = fastRetry()
	return cfg
}

func TestAdvisor_Consult(t *testing.T) {
	fc := &fakeCompleter{
		errs:      []error{&HTTPError{StatusCode: 429}, nil},
		responses: []string{"", `{"signal":"buy","reason":"oversold"}`},
	}
	a := NewAdvisor(fc, "test-model", testAdvisorConfig())

	advice, err := a.Consult(context.Background(), AdvisoryRequest{Symbol: "BTC_USDT", RecentPrices: []float64{1, 2, 3}})
	if err != nil {
		t.Fatalf("Consult failed: %v", err)
	}
	if advice.Signal != SignalBuy || advice.Reason != "oversold" {
		t.Errorf("Unexpected advice %+v", advice)
	}
	if fc.calls != 2 {
		t.Errorf("Expected rate-limited call to be retried once, got %d calls", fc.calls)
	}
}

func TestAdvisor_Failures(t *testing.T) {
	tests := []struct {
		name     string
		fc       *fakeCompleter
		timeout  time.Duration
		wantKind string
	}{
		{"malformed", &fakeCompleter{responses: []string{"no idea"}}, time.Second, KindMalformed},
		{"timeout", &fakeCompleter{delay: time.Second}, 20 * time.Millisecond, KindTimeout},
		{"transport", &fakeCompleter{errs: []error{errors.New("dial"), errors.New("dial"), errors.New("dial")}}, time.Second, KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdvisor(tt.fc, "test-model", testAdvisorConfig())
			ctx, cancel := context.WithTimeout(context.Background(), tt.timeout)
			defer cancel()

			_, err := a.Consult(ctx, AdvisoryRequest{Symbol: "ETH_USDT"})

			var advErr *AdvisoryError
			if !errors.As(err, &advErr) {
				t.Fatalf("Expected AdvisoryError, got %v", err)
			}
			if advErr.Kind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s (%v)", tt.wantKind, advErr.Kind, advErr.Err)
			}
		})
	}
}

func TestAdvisor_RateLimited(t *testing.T) {
	cfg := testAdvisorConfig()
	cfg.RequestsPerMinute = 1
	cfg.Burst = 1
	fc := &fakeCompleter{responses: []string{`{"signal":"hold","reason":""}`, `{"signal":"hold","reason":""}`}}
	a := NewAdvisor(fc, "test-model", cfg)

	if _, err := a.Consult(context.Background(), AdvisoryRequest{Symbol: "SOL_USDT"}); err != nil {
		t.Fatalf("First consult failed: %v", err)
	}

	_, err := a.Consult(context.Background(), AdvisoryRequest{Symbol: "SOL_USDT"})
	var advErr *AdvisoryError
	if !errors.As(err, &advErr) || advErr.Kind != KindRateLimited {
		t.Fatalf("Expected rate limited AdvisoryError, got %v", err)
	}
	if fc.calls != 1 {
		t.Errorf("Expected no model call when rate limited, got %d", fc.calls)
	}
}
