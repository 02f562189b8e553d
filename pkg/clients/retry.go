package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/Ahabibm4/chatbot/pkg/logging"
)

// RetryConfig is the retry and breaker policy for one upstream. Name labels
// the retry counter and should match the breaker name.
type RetryConfig struct {
	Name           string
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	Jitter         bool
	RetryFunc      func(resp *http.Response, err error) bool
	CircuitBreaker *CircuitBreaker
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Name:       "http",
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
		RetryFunc:  DefaultShouldRetry,
	}
}

// UpstreamRetryConfig is the policy for a named upstream (LLM provider,
// embeddings, operations API): default backoff behind its own breaker.
func UpstreamRetryConfig(name string, baseDelay time.Duration, logger logging.Logger) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.Name = name
	if baseDelay > 0 {
		cfg.BaseDelay = baseDelay
	}
	breaker := DefaultCircuitBreakerConfig()
	breaker.Name = name
	breaker.Logger = logger
	cfg.CircuitBreaker = NewCircuitBreaker(breaker)
	return cfg
}

// DefaultShouldRetry retries transport errors, 429 and any 5xx. A cancelled
// or expired context is never retried.
func DefaultShouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}

// DoWithRetry sends req with exponential backoff. With a breaker configured,
// the whole retry sequence counts as one breaker call and a final 5xx is a
// breaker failure, surfaced as an error with the body closed.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, config RetryConfig) (*http.Response, error) {
	if config.RetryFunc == nil {
		config.RetryFunc = DefaultShouldRetry
	}
	if config.CircuitBreaker == nil {
		return doRetryAttempts(ctx, client, req, config)
	}

	var resp *http.Response
	var err error
	cbErr := config.CircuitBreaker.Call(func() error {
		resp, err = doRetryAttempts(ctx, client, req, config)
		if err != nil {
			return err
		}
		if resp != nil && resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%s: server error: %d", config.Name, resp.StatusCode)
		}
		return nil
	})
	if cbErr != nil && err == nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return nil, cbErr
	}
	return resp, err
}

func doRetryAttempts(ctx context.Context, client *http.Client, req *http.Request, config RetryConfig) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	var resp *http.Response
	var err error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(config.backoff(attempt)):
			}
		}

		attemptReq := req.Clone(ctx)
		if body != nil {
			attemptReq.Body = io.NopCloser(bytes.NewReader(body))
			attemptReq.ContentLength = int64(len(body))
			attemptReq.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
		}

		resp, err = client.Do(attemptReq)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !config.RetryFunc(resp, err) || attempt == config.MaxRetries {
			return resp, err
		}

		recordRetry(config.Name, resp, err)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
	}
	return resp, err
}

func (c RetryConfig) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt-1)))
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	if c.Jitter {
		delay += time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
	}
	return delay
}

func recordRetry(name string, resp *http.Response, err error) {
	reason := "transport"
	if err == nil && resp != nil {
		reason = strconv.Itoa(resp.StatusCode)
	}
	httpRetriesTotal.WithLabelValues(name, reason).Inc()
}
