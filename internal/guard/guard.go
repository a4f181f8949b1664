// Package guard wraps external calls with timeout, bounded retry, upstream
// error classification and fallback-value semantics.
package guard

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Upstream failures where another attempt cannot help.
var (
	ErrQuotaExhausted     = errors.New("upstream quota exhausted")
	ErrInvalidCredentials = errors.New("invalid upstream credentials")
	ErrInputTooLarge      = errors.New("input too large for upstream")
)

// nonRetryableError marks an arbitrary upstream error as terminal.
type nonRetryableError struct {
	cause error
}

func (e *nonRetryableError) Error() string { return "non-retryable: " + e.cause.Error() }
func (e *nonRetryableError) Unwrap() error { return e.cause }

// MarkNonRetryable flags err so Protect aborts instead of retrying.
func MarkNonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{cause: err}
}

// Retryable classifies an upstream error. Quota, credential and input-size
// failures are terminal; everything else (transient timeouts, provider-side
// rate limits) is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var terminal *nonRetryableError
	if errors.As(err, &terminal) {
		return false
	}
	switch {
	case errors.Is(err, ErrQuotaExhausted),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInputTooLarge),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// Options tune a Protect call.
type Options struct {
	// Retries is the number of attempts after the first (default 2).
	Retries int
	// Timeout bounds each individual attempt (default 30s).
	Timeout time.Duration
	// Delay is the base backoff; attempt n waits Delay*n (default 500ms).
	Delay time.Duration
	// Propagate returns the final error instead of the fallback value.
	// Used only where a fallback makes no sense (speech synthesis).
	Propagate bool

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Retries == 0 {
		o.Retries = 2
	}
	if o.Timeout == 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Delay == 0 {
		o.Delay = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Protect runs op under a per-attempt timeout, retrying retryable failures
// with linear backoff. When every attempt fails it returns fallback with a
// nil error, unless opts.Propagate is set.
func Protect[T any](ctx context.Context, name string, op func(ctx context.Context) (T, error), fallback T, opts Options) (T, error) {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= opts.Retries+1; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		result, err := op(attemptCtx)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Retryable(err) {
			opts.Logger.Warn("Operation failed with non-retryable error",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Error(err))
			break
		}

		opts.Logger.Warn("Operation failed, will retry",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt <= opts.Retries {
			select {
			case <-time.After(opts.Delay * time.Duration(attempt)):
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = opts.Retries + 1
			}
		}
	}

	if opts.Propagate {
		var zero T
		return zero, lastErr
	}

	opts.Logger.Error("Operation exhausted all attempts, using fallback",
		zap.String("operation", name),
		zap.Error(lastErr))
	return fallback, nil
}
