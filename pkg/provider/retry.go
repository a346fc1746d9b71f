package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"colloquy/pkg/logger"
)

const defaultBackoffBase = 500 * time.Millisecond

// RetryingClient wraps a Client with bounded retry for retryable
// failures and an optional outgoing rate limit. Auth and invalid-request
// errors are never retried.
type RetryingClient struct {
	inner       Client
	maxRetries  int
	limiter     *rate.Limiter
	backoffBase time.Duration
}

// NewRetryingClient wraps inner. maxRetries bounds retry attempts after
// the first call; rps throttles outgoing calls (0 disables).
func NewRetryingClient(inner Client, maxRetries int, rps float64) *RetryingClient {
	var lim *rate.Limiter
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), 1)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryingClient{inner: inner, maxRetries: maxRetries, limiter: lim, backoffBase: defaultBackoffBase}
}

// Send calls the wrapped client, retrying retryable failures with
// exponential backoff. A rate-limit error with a reset time sleeps until
// the reset instead of the computed backoff.
func (c *RetryingClient) Send(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		resp, err := c.inner.Send(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == c.maxRetries {
			break
		}
		delay := c.backoffBase << attempt
		var rl *RateLimitError
		if errors.As(err, &rl) && !rl.ResetAt.IsZero() {
			if until := time.Until(rl.ResetAt); until > delay {
				delay = until
			}
		}
		logger.Warn("provider_retrying", "attempt", attempt+1, "max", c.maxRetries,
			"delay", delay.String(), "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("provider call failed after %d retries: %w", c.maxRetries, lastErr)
}
