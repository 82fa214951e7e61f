// Package httpretry provides an HTTP client with automatic retry logic,
// exponential backoff, and jitter for calls to external collaborators.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/wa-outreach/internal/pkg/logger"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both *http.Client and *RetryClient satisfy this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes the retry policy. Zero values take the defaults.
type Options struct {
	// MaxRetries is the number of attempts after the first one (default 3).
	MaxRetries int
	BaseDelay  time.Duration // default 1s
	MaxDelay   time.Duration // default 30s
	// MinDelay floors every wait to avoid busy looping (default 100ms).
	MinDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.MinDelay <= 0 {
		o.MinDelay = 100 * time.Millisecond
	}
	if o.MinDelay > o.MaxDelay {
		o.MinDelay = o.MaxDelay
	}
	return o
}

// RetryClient wraps an HTTPDoer with retry logic using exponential backoff and jitter.
type RetryClient struct {
	client HTTPDoer
	opts   Options
}

// NewRetryClient creates a new RetryClient that wraps the given HTTPDoer.
// If client is nil, a default http.Client with 30s timeout is used.
func NewRetryClient(client HTTPDoer, opts Options) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RetryClient{client: client, opts: opts.withDefaults()}
}

// Do executes the HTTP request with retry logic.
// It retries on retryable status codes (429, 500, 502, 503, 504) and
// transport errors. It does NOT retry on other client errors or on
// context cancellation. On the final attempt the response is returned
// as-is so the caller can inspect the status code and body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.opts.MaxRetries; attempt++ {
		if req.Context().Err() != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, req.Context().Err()
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.calculateDelay(attempt)
			logger.Warn("httpretry: retrying request",
				"attempt", attempt, "max", rc.opts.MaxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path,
				"wait", delay, "last_error", lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !IsRetryableStatus(resp.StatusCode) || attempt == rc.opts.MaxRetries {
			return resp, nil
		}

		// Drain for connection reuse before the next attempt.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// calculateDelay uses full jitter: random(0, min(maxDelay, baseDelay * 2^(attempt-1))),
// floored at MinDelay.
func (rc *RetryClient) calculateDelay(attempt int) time.Duration {
	expDelay := float64(rc.opts.BaseDelay) * math.Pow(2, float64(attempt-1))
	if expDelay > float64(rc.opts.MaxDelay) {
		expDelay = float64(rc.opts.MaxDelay)
	}
	jittered := time.Duration(rand.Float64() * expDelay)
	if jittered < rc.opts.MinDelay {
		jittered = rc.opts.MinDelay
	}
	return jittered
}

// IsRetryableStatus reports whether a status code indicates a transient
// server-side condition: 429, 500, 502, 503 or 504.
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
