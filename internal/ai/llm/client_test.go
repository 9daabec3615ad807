package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string) *Client {
	cfg := DefaultClientConfig()
	cfg.Endpoint = url
	cfg.APIKey = "sk-test"
	cfg.Referer = "https://example.invalid"
	cfg.Timeout = 2 * time.Second
	return NewClient(cfg)
}

func chatBody(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("HTTP-Referer") != "https://example.invalid" {
			t.Errorf("Expected referer header, got %q", r.Header.Get("HTTP-Referer"))
		}
		if r.Header.Get("X-Title") != "Paper Trading Bot" {
			t.Errorf("Expected title header, got %q", r.Header.Get("X-Title"))
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		if req.Model != "deepseek/deepseek-chat" || req.MaxTokens != 80 {
			t.Errorf("Unexpected request %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[1].Content != "hello" {
			t.Errorf("Unexpected messages %+v", req.Messages)
		}

		w.Write([]byte(chatBody(`{"signal":"hold","reason":"flat"}`)))
	}))
	defer server.Close()

	out, err := newTestClient(server.URL).Complete(context.Background(), "sys", "hello")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != `{"signal":"hold","reason":"flat"}` {
		t.Errorf("Unexpected content %q", out)
	}
}

func TestClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Complete(context.Background(), "", "hello")

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusTooManyRequests || !httpErr.Retryable() {
		t.Errorf("Expected retryable 429, got %+v", httpErr)
	}
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, Multiplier: 1.5}
}

func TestRetryPolicy_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	err := fastRetry().Do(context.Background(), func() error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return &HTTPError{StatusCode: 503}
		}
		return nil
	}, nil)

	if err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}

func TestRetryPolicy_StopsOnPermanentError(t *testing.T) {
	var calls int32
	err := fastRetry().Do(context.Background(), func() error {
		atomic.AddInt32(&calls, 1)
		return &HTTPError{StatusCode: 401}
	}, nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 401 {
		t.Fatalf("Expected the 401 back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected a single attempt, got %d", calls)
	}
}

func TestRetryPolicy_ExhaustsAttempts(t *testing.T) {
	var calls int32
	err := fastRetry().Do(context.Background(), func() error {
		atomic.AddInt32(&calls, 1)
		return errors.New("connection reset")
	}, nil)

	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
}
