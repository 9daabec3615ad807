package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mohameddodda/paper-trading-bot/internal/logging"
)

// Advisory failure kinds
const (
	KindRateLimited = "rate_limited"
	KindTimeout     = "timeout"
	KindTransport   = "transport"
	KindMalformed   = "malformed"
	KindBusy        = "busy"
)

// AdvisoryError means no signal could be obtained. Callers treat it as an
// absent signal.
type AdvisoryError struct {
	Symbol string
	Kind   string
	Err    error
}

func (e *AdvisoryError) Error() string {
	return fmt.Sprintf("advisory %s for %s: %v", e.Kind, e.Symbol, e.Err)
}

func (e *AdvisoryError) Unwrap() error {
	return e.Err
}

var errRateLimited = errors.New("advisory rate limit exceeded")

// AdvisoryRequest is the market context sent to the model. DropPct and
// GainPct are percentages.
type AdvisoryRequest struct {
	Symbol       string
	RecentPrices []float64
	DropPct      float64
	GainPct      float64
}

// AdvisorConfig holds advisor configuration
type AdvisorConfig struct {
	Retry             RetryPolicy
	RequestsPerMinute int
	Burst             int // requests allowed at once, normally one per symbol
	RecentPrices      int // prices included in the prompt
}

// DefaultAdvisorConfig returns default configuration
func DefaultAdvisorConfig() AdvisorConfig {
	return AdvisorConfig{
		Retry:             DefaultRetryPolicy(),
		RequestsPerMinute: 60,
		Burst:             8,
		RecentPrices:      10,
	}
}

// Advisor turns a Completer into buy/sell/hold signals
type Advisor struct {
	completer Completer
	model     string
	config    AdvisorConfig
	limiter   *rate.Limiter
	logger    *logging.Logger

	mu       sync.Mutex
	inflight map[string]bool
}

// NewAdvisor creates an advisor. model is used for logging only.
func NewAdvisor(completer Completer, model string, config AdvisorConfig) *Advisor {
	limit := rate.Inf
	if config.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.RequestsPerMinute))
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}
	if config.RecentPrices < 1 {
		config.RecentPrices = 10
	}

	return &Advisor{
		completer: completer,
		model:     model,
		config:    config,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logging.WithComponent("advisor"),
		inflight:  make(map[string]bool),
	}
}

// Consult asks the model for a signal. Every failure is an *AdvisoryError.
func (a *Advisor) Consult(ctx context.Context, req AdvisoryRequest) (Advice, error) {
	if !a.acquire(req.Symbol) {
		return Advice{}, &AdvisoryError{Symbol: req.Symbol, Kind: KindBusy, Err: errors.New("consultation already in flight")}
	}
	defer a.release(req.Symbol)

	if !a.limiter.Allow() {
		return Advice{}, &AdvisoryError{Symbol: req.Symbol, Kind: KindRateLimited, Err: errRateLimited}
	}

	prices := req.RecentPrices
	if len(prices) > a.config.RecentPrices {
		prices = prices[len(prices)-a.config.RecentPrices:]
	}
	prompt := BuildSignalPrompt(req.Symbol, prices, req.DropPct, req.GainPct)

	var advice Advice
	err := a.config.Retry.Do(ctx, func() error {
		raw, err := a.completer.Complete(ctx, SystemPromptSignal, prompt)
		if err != nil {
			return err
		}
		advice, err = ParseAdvice(raw)
		return err
	}, func(err error, wait time.Duration) {
		a.logger.Debug("Retrying advisory call", "symbol", req.Symbol, "error", err, "wait", wait.String())
	})
	if err != nil {
		return Advice{}, &AdvisoryError{Symbol: req.Symbol, Kind: classify(ctx, err), Err: err}
	}

	logging.AdvisoryContext(req.Symbol, a.model).Debug("Advisory signal received",
		"signal", string(advice.Signal), "reason", advice.Reason)
	return advice, nil
}

func (a *Advisor) acquire(symbol string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inflight[symbol] {
		return false
	}
	a.inflight[symbol] = true
	return true
}

func (a *Advisor) release(symbol string) {
	a.mu.Lock()
	delete(a.inflight, symbol)
	a.mu.Unlock()
}

func classify(ctx context.Context, err error) string {
	var parseErr *ParseError
	var httpErr *HTTPError
	switch {
	case errors.As(err, &parseErr):
		return KindMalformed
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		return KindTimeout
	case errors.As(err, &httpErr) && httpErr.StatusCode == 429:
		return KindRateLimited
	default:
		return KindTransport
	}
}
