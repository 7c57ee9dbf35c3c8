package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"
)

// APIError is a non-2xx response from an LLM backend.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Transient reports whether the failure is worth retrying. Rate limits and
// server-side errors are transient; auth and validation errors are not.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryConfig controls the retry loop around a single provider call.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
}

// DefaultRetryConfig retries twice after the first failure with exponential
// backoff and a little jitter to avoid thundering herds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.2,
	}
}

// retryDo runs fn up to cfg.MaxAttempts times, sleeping between attempts.
// A Retry-After hint from the server overrides the computed backoff.
func retryDo[T any](ctx context.Context, cfg RetryConfig, provider string, fn func() (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isTransient(err) || attempt == cfg.MaxAttempts {
			return zero, err
		}

		delay := backoffDelay(cfg, attempt)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			delay = apiErr.RetryAfter
		}
		slog.Warn("provider call failed, retrying",
			"provider", provider, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, lastErr
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := time.Duration(float64(cfg.InitialDelay) * math.Pow(2, float64(attempt-1)))
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if cfg.JitterFraction > 0 {
		jitter := cfg.JitterFraction * float64(d)
		d = time.Duration(float64(d) - jitter/2 + rand.Float64()*jitter)
	}
	return d
}

// isTransient classifies an error as retryable. Network-level failures and
// transient API statuses qualify; everything else fails fast.
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// parseRetryAfter reads the Retry-After response header, seconds form only.
func parseRetryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
