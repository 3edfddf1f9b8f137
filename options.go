package gorawrstash

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/Keksclan/goRawrStash/breaker"
	"github.com/Keksclan/goRawrStash/cache"
)

// options holds the configuration assembled via functional options.
type options struct {
	logger       *slog.Logger
	registry     *prometheus.Registry
	tracer       trace.TracerProvider
	redis        redis.UniversalClient
	redisBreaker *breaker.Config
	factory      []cache.Option
}

// Option configures a Registry.
type Option func(*options)

// WithLogger sets the logger used by the registry, its caches and accessors.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the time source of every cache.
func WithClock(c cache.Clock) Option {
	return func(o *options) { o.factory = append(o.factory, cache.WithClock(c)) }
}

// WithEvictionListener adds a listener notified of evictions from every cache.
func WithEvictionListener(l cache.EvictionListener) Option {
	return func(o *options) { o.factory = append(o.factory, cache.WithEvictionListener(l)) }
}

// WithEvictionLogRate limits the eviction debug logs.
func WithEvictionLogRate(perSecond float64, burst int) Option {
	return func(o *options) {
		o.factory = append(o.factory, cache.WithEvictionLogRate(perSecond, burst))
	}
}

// WithExecutor replaces the executor shared by caches without a dedicated
// one.
func WithExecutor(e cache.Executor) Option {
	return func(o *options) { o.factory = append(o.factory, cache.WithExecutor(e)) }
}

// WithPoolOptions configures the dedicated executors of caches with
// custom-executor enabled.
func WithPoolOptions(opts ...cache.PoolOption) Option {
	return func(o *options) { o.factory = append(o.factory, cache.WithPoolOptions(opts...)) }
}

// WithPrometheusRegistry registers the cache metrics with reg instead of a
// registry private to the Registry.
func WithPrometheusRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithTracerProvider sets the provider of the spans opened by accessors
// handed out by the registry. The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithRedis enables [Tiered] caches backed by rdb. The caller keeps
// ownership of rdb.
func WithRedis(rdb redis.UniversalClient) Option {
	return func(o *options) { o.redis = rdb }
}

// WithRedisBreaker sets the circuit breaker guarding each remote tier.
func WithRedisBreaker(cfg breaker.Config) Option {
	return func(o *options) { o.redisBreaker = &cfg }
}
