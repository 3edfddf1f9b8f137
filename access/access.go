// Package access composes a loader with a cache. It offers three access
// patterns:
//
//   - [Sync.Get]: read-through. A hit returns the cached value; a miss
//     loads, stores and returns. Concurrent misses each load.
//   - [Async.Get]: single-flight read-through over a cache of deferred
//     values. Concurrent misses share one load.
//   - [Sync.GetWithFallback]: always loads; when the load fails, the cached
//     value is served instead.
//
// Cache malfunctions never fail a call. A store that errors or panics is
// logged, counted and otherwise ignored: the value is simply not cached.
package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/Keksclan/goRawrStash/cache"
	"github.com/Keksclan/goRawrStash/tracing"
)

// Flags are per-call switches.
type Flags struct {
	// SkipCache bypasses the cache read: the loader always runs. Its result
	// is still stored unless SkipWrite is set.
	SkipCache bool

	// SkipWrite keeps the call from storing anything.
	SkipWrite bool
}

// ErrNoStaleValue is matched by a [FallbackError]: the loader failed and the
// cache had nothing to serve instead.
var ErrNoStaleValue = errors.New("access: no cached value to fall back to")

var errNoFuture = errors.New("store returned no future")

// FallbackError reports a failed load that could not be covered by a
// cached value. It wraps the loader's error.
type FallbackError struct {
	Cache string
	Key   string
	Err   error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("access: load of %q in cache %q failed with no cached fallback: %v", e.Key, e.Cache, e.Err)
}

func (e *FallbackError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNoStaleValue) hold.
func (e *FallbackError) Is(target error) bool { return target == ErrNoStaleValue }

type options struct {
	name    string
	logger  *slog.Logger
	metrics *cache.Metrics
	tracing *tracing.Config
}

// Option configures an accessor.
type Option func(*options)

// WithName overrides the cache name used in logs, metrics and spans. By
// default it is taken from the store when it has one.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics records loads, store failures and fallbacks in m.
func WithMetrics(m *cache.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracerProvider sets the provider of the spans around each call.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracing = &tracing.Config{TracerProvider: tp} }
}

func newOptions(store any, opts []Option) options {
	o := options{logger: slog.Default()}
	if n, ok := store.(cache.Named); ok {
		o.name = n.Name()
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(slog.String("cache", o.name))
	return o
}

func (o *options) storeFailed(ctx context.Context, op, key string, err error) {
	o.metrics.StoreFailed(o.name)
	o.logger.WarnContext(ctx, "access: cache "+op+" failed, continuing without cache",
		slog.String("key", key),
		slog.Any("error", err),
	)
}

func recovered(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
