package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestDo_RetriesOnUnavailableThenSucceeds(t *testing.T) {
	calls := 0
	cfg := Config{
		MaxAttempts: 4,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Retryable:   Codes(codes.Unavailable),
	}

	result, err := Do(t.Context(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", status.Error(codes.Unavailable, "try again")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryableCode(t *testing.T) {
	calls := 0
	cfg := Config{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Retryable:   Codes(codes.Unavailable),
	}

	_, err := Do(t.Context(), cfg, func(_ context.Context) (string, error) {
		calls++
		return "", status.Error(codes.InvalidArgument, "bad request")
	})

	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, 1, calls, "no retries")
}

func TestDo_RespectsContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	cfg := Config{
		MaxAttempts: 100,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		Retryable:   Codes(codes.Unavailable),
	}

	_, err := Do(ctx, cfg, func(_ context.Context) (int, error) {
		return 0, status.Error(codes.Unavailable, "down")
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_MaxAttemptsExhausted(t *testing.T) {
	calls := 0
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Retryable:   Codes(codes.Unavailable),
	}

	_, err := Do(t.Context(), cfg, func(_ context.Context) (string, error) {
		calls++
		return "", status.Error(codes.Unavailable, "still down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
		Retryable:   Codes(codes.Unavailable),
	}

	result, err := Do(t.Context(), cfg, func(_ context.Context) (int, error) {
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestBackoff_ExponentialWithCap(t *testing.T) {
	cfg := Config{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
	}

	assert.Equal(t, 100*time.Millisecond, backoff(cfg, 0))
	assert.Equal(t, 200*time.Millisecond, backoff(cfg, 1))
	assert.Equal(t, 400*time.Millisecond, backoff(cfg, 2))
	assert.Equal(t, 500*time.Millisecond, backoff(cfg, 3), "800ms capped at 500ms")
}

func TestDo_OnRetryReportsEachPause(t *testing.T) {
	var attempts []int
	cfg := Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Retryable:   func(error) bool { return true },
		OnRetry: func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
			assert.Positive(t, delay, "attempt %d", attempt)
		},
	}

	_, err := Do(t.Context(), cfg, func(_ context.Context) (int, error) {
		return 0, errors.New("flaky")
	})

	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDo_NilRetryableNeverRetries(t *testing.T) {
	calls := 0
	_, err := Do(t.Context(), Config{MaxAttempts: 5}, func(_ context.Context) (int, error) {
		calls++
		return 0, status.Error(codes.Unavailable, "down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBackoff_JitterStaysInBand(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, Jitter: 0.2}

	for range 100 {
		d := backoff(cfg, 0)
		require.GreaterOrEqual(t, d, 80*time.Millisecond)
		require.LessOrEqual(t, d, 120*time.Millisecond)
	}
}

func TestDefaultConfig_RetriesUnavailableOnly(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Retryable(status.Error(codes.Unavailable, "down")))
	assert.False(t, cfg.Retryable(status.Error(codes.NotFound, "gone")))
	assert.False(t, cfg.Retryable(errors.New("plain")))
}
