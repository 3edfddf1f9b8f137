// Package retry retries calls to remote dependencies with exponential
// backoff and jitter. The caching core uses it around health probes that
// feed the cache gate; loaders are free to use it too.
package retry

import (
	"context"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay. Zero means no cap.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// Retryable decides whether an error is worth another attempt. Nil
	// retries nothing.
	Retryable func(error) bool

	// OnRetry, if set, is called before each pause with the number of the
	// failed attempt (starting at 1), its error and the pause.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig retries gRPC Unavailable errors three times over roughly
// half a second.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Jitter:      0.2,
		Retryable:   Codes(codes.Unavailable),
	}
}

// Codes returns a Retryable that accepts errors carrying one of the given
// gRPC status codes.
func Codes(retry ...codes.Code) func(error) bool {
	return func(err error) bool {
		st, ok := status.FromError(err)
		return ok && slices.Contains(retry, st.Code())
	}
}

// Do calls fn up to cfg.MaxAttempts times, retrying only errors accepted by
// cfg.Retryable. The context is checked during every pause; once it is done
// Do returns the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if i == attempts-1 || cfg.Retryable == nil || !cfg.Retryable(err) {
			return zero, err
		}

		delay := backoff(cfg, i)
		if cfg.OnRetry != nil {
			cfg.OnRetry(i+1, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, nil
}
