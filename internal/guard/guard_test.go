package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() Options {
	return Options{Retries: 2, Timeout: time.Second, Delay: time.Millisecond}
}

func TestProtectSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Protect(context.Background(), "op", func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	}, "fallback", fastOptions())

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestProtectRetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	result, err := Protect(context.Background(), "op", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient upstream hiccup")
		}
		return 42, nil
	}, -1, fastOptions())

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, calls)
}

func TestProtectReturnsFallbackWhenExhausted(t *testing.T) {
	calls := 0
	result, err := Protect(context.Background(), "op", func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("still broken")
	}, "canned reply", fastOptions())

	require.NoError(t, err)
	assert.Equal(t, "canned reply", result)
	assert.Equal(t, 3, calls, "initial attempt plus two retries")
}

func TestProtectNonRetryableAbortsImmediately(t *testing.T) {
	calls := 0
	result, err := Protect(context.Background(), "op", func(ctx context.Context) (string, error) {
		calls++
		return "", ErrQuotaExhausted
	}, "fallback", fastOptions())

	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
	assert.Equal(t, 1, calls, "quota exhaustion must not consume retries")
}

func TestProtectMarkedNonRetryable(t *testing.T) {
	calls := 0
	_, err := Protect(context.Background(), "op", func(ctx context.Context) (string, error) {
		calls++
		return "", MarkNonRetryable(errors.New("payload rejected"))
	}, "fallback", fastOptions())

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestProtectPropagates(t *testing.T) {
	boom := errors.New("synthesis down")
	result, err := Protect(context.Background(), "op", func(ctx context.Context) (string, error) {
		return "", boom
	}, "unused", Options{Retries: 1, Timeout: time.Second, Delay: time.Millisecond, Propagate: true})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, result)
}

func TestProtectTimesOutPerAttempt(t *testing.T) {
	calls := 0
	start := time.Now()
	result, err := Protect(context.Background(), "op", func(ctx context.Context) (string, error) {
		calls++
		<-ctx.Done()
		return "", ctx.Err()
	}, "fallback", Options{Retries: 1, Timeout: 20 * time.Millisecond, Delay: time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
	assert.Equal(t, 2, calls, "deadline errors are retryable")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(ErrInvalidCredentials))
	assert.False(t, Retryable(ErrInputTooLarge))
	assert.False(t, Retryable(MarkNonRetryable(errors.New("bad"))))
	assert.True(t, Retryable(context.DeadlineExceeded))
	assert.True(t, Retryable(errors.New("connection reset")))
}
