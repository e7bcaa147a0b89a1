package embedder

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBackendUnavailable marks a configuration failure: the backend address or
// model is wrong, or the backend stayed unreachable after provisioning. It is
// never retried.
var ErrBackendUnavailable = errors.New("embedding backend unavailable")

// errModelMissing is the internal trigger for the one-shot model pull.
var errModelMissing = errors.New("embedding model not available")

// transientError wraps timeouts, connection failures, and 5xx responses,
// the class of errors worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(format string, args ...any) error {
	return &transientError{err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err is a retryable backend failure.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// retryLinear runs fn up to attempts times, sleeping base + n*step between
// tries. Only transient errors are retried; anything else surfaces as-is.
func retryLinear(ctx context.Context, attempts int, base, step time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(base + time.Duration(attempt)*step):
		}
	}
	return lastErr
}
