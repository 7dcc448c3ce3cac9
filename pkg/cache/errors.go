package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNetwork is returned when a remote cache backend cannot be reached.
var ErrNetwork = errors.New("network error")

// RetryableError wraps an error to indicate it should trigger a retry.
type RetryableError struct{ Err error }

// Retryable wraps an error as a RetryableError.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable checks if an error is wrapped with RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// networkError reports a failed backend operation as a retryable ErrNetwork.
func networkError(op string, err error) error {
	return Retryable(fmt.Errorf("%w: %s: %v", ErrNetwork, op, err))
}

// retryPolicy bounds how often a backend call is repeated.
type retryPolicy struct {
	attempts int
	delay    time.Duration
}

// defaultRetry gives a Redis server that is still starting about three
// seconds to come up.
var defaultRetry = retryPolicy{attempts: 3, delay: time.Second}

// do calls fn until it succeeds, returns an error that is not retryable, or
// the attempts are used up. The delay doubles after every failure.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	delay := p.delay
	var lastErr error
	for i := 0; i < p.attempts; i++ {
		if lastErr = fn(); lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		if i == p.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
	return lastErr
}
