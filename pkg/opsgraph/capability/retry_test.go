package capability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     5 * time.Millisecond,
	BackoffFactor:  2.0,
}

func TestWithRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesTransientErrors(t *testing.T) {
	calls := 0
	got, err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Transient("op", errors.New("flaky"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	permanent := errors.New("bad request")
	_, err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), fastRetry, func(ctx context.Context) (int, error) {
		calls++
		return 0, Transient("op", errors.New("always down"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var te *TransientError
	assert.ErrorAs(t, err, &te)
}

func TestWithRetry_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := WithRetry(ctx, fastRetry, func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(errors.New("plain")))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(context.DeadlineExceeded))
	assert.True(t, Retryable(Transient("op", errors.New("x"))))
	assert.True(t, Retryable(errors.Join(errors.New("wrap"), Transient("op", errors.New("x")))))
}

func TestJittered_StaysNearBase(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := jittered(base, 0.1)
		assert.InDelta(t, float64(base), float64(d), float64(base)*0.11)
	}
	assert.Equal(t, base, jittered(base, 0))
}
