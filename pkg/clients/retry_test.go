package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDoWithRetry_SucceedsWithoutRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := DoWithRetry(context.Background(), server.Client(), req, DefaultRetryConfig())
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("expected 200 without error; got %v %d", err, resp.StatusCode)
	}
}

func TestDoWithRetry_RetriesOn500(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	defer server.Close()

	cfg := DefaultRetryConfig()
	cfg.BaseDelay = 1 * time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := DoWithRetry(context.Background(), server.Client(), req, cfg)
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("expected eventual 200; got %v %d", err, resp.StatusCode)
	}
}

func TestDoWithRetry_RespectsContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { time.Sleep(50 * time.Millisecond); w.WriteHeader(200) }))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequest("GET", server.URL, nil)
	cfg := DefaultRetryConfig()
	_, err := DoWithRetry(ctx, server.Client(), req, cfg)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}
}

func TestDoWithRetry_ReplaysBodyOnRetry(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if len(bodies) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultRetryConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.Jitter = false

	req, _ := http.NewRequest("POST", server.URL, strings.NewReader(`{"jobId":"NC123456"}`))
	resp, err := DoWithRetry(context.Background(), server.Client(), req, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if len(bodies) != 2 || bodies[0] != bodies[1] || bodies[1] != `{"jobId":"NC123456"}` {
		t.Fatalf("expected identical body on both attempts, got %q", bodies)
	}
}

func TestDoWithRetry_CircuitBreakerOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := DefaultRetryConfig()
	cfg.MaxRetries = 0
	cfg.CircuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "retry-test",
		MinRequests:  2,
		FailureRatio: 1,
		Timeout:      time.Minute,
	})

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest("GET", server.URL, nil)
		if _, err := DoWithRetry(context.Background(), server.Client(), req, cfg); err == nil {
			t.Fatalf("expected server error on attempt %d", i)
		}
	}

	req, _ := http.NewRequest("GET", server.URL, nil)
	_, err := DoWithRetry(context.Background(), server.Client(), req, cfg)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}
}

func TestDoWithRetry_CountsRetriesPerUpstream(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := DefaultRetryConfig()
	cfg.Name = "retry-count-test"
	cfg.BaseDelay = time.Millisecond
	cfg.Jitter = false
	before := testutil.ToFloat64(httpRetriesTotal.WithLabelValues("retry-count-test", "429"))

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := DoWithRetry(context.Background(), server.Client(), req, cfg)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected eventual 200; got %v", err)
	}
	resp.Body.Close()
	if got := testutil.ToFloat64(httpRetriesTotal.WithLabelValues("retry-count-test", "429")) - before; got != 2 {
		t.Fatalf("expected 2 counted retries, got %v", got)
	}
}

func TestDoWithRetry_DoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	req, _ := http.NewRequest("POST", server.URL, strings.NewReader(`{}`))
	resp, err := DoWithRetry(context.Background(), server.Client(), req, UpstreamRetryConfig("retry-4xx-test", time.Millisecond, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || attempts != 1 {
		t.Fatalf("expected a single 400 attempt, got %d after %d attempts", resp.StatusCode, attempts)
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		resp *http.Response
		err  error
		want bool
	}{
		{"transport error", nil, errors.New("connection reset"), true},
		{"cancelled", nil, context.Canceled, false},
		{"deadline", nil, context.DeadlineExceeded, false},
		{"rate limited", &http.Response{StatusCode: http.StatusTooManyRequests}, nil, true},
		{"server error", &http.Response{StatusCode: 599}, nil, true},
		{"not found", &http.Response{StatusCode: http.StatusNotFound}, nil, false},
	}
	for _, tc := range cases {
		if got := DefaultShouldRetry(tc.resp, tc.err); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestUpstreamRetryConfigNamesBreaker(t *testing.T) {
	cfg := UpstreamRetryConfig("llm-openai", 0, nil)
	if cfg.Name != "llm-openai" || cfg.CircuitBreaker == nil || cfg.CircuitBreaker.Name() != "llm-openai" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.BaseDelay != DefaultRetryConfig().BaseDelay {
		t.Fatalf("zero base delay should keep the default, got %v", cfg.BaseDelay)
	}
}
