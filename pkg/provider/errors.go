package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies provider failures for retry decisions.
type ErrorKind string

const (
	KindRateLimited    ErrorKind = "rate_limited"
	KindTransient      ErrorKind = "transient"
	KindTimeout        ErrorKind = "timeout"
	KindAuth           ErrorKind = "auth"
	KindInvalidRequest ErrorKind = "invalid_request"
)

// Error is a typed provider failure.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider error (%s, status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTransient, KindTimeout:
		return true
	}
	return false
}

// RateLimitError is the retryable rate-limit sub-kind carrying quota and
// reset information from the provider's response headers.
type RateLimitError struct {
	Message           string
	RequestsRemaining int
	TokensRemaining   int
	ResetAt           time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider rate limited: %s (requests_remaining=%d, reset=%s)",
		e.Message, e.RequestsRemaining, e.ResetAt.Format(time.RFC3339))
}

// IsRetryable reports whether err is a retryable provider failure.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	var rl *RateLimitError
	return errors.As(err, &rl)
}
