// Package gorawrstash is a configuration-driven caching core. Caches are
// declared by name under the "caching" configuration root, built once on
// first use and handed out as typed handles:
//
//	v, _ := config.Load(config.WithFile("app.yaml"))
//	reg, _ := gorawrstash.FromViper(v)
//	defer reg.Close()
//
//	profiles, _ := gorawrstash.Access[Profile](reg, "profile")
//	p, err := profiles.Get(ctx, id, loadProfile, gate.Open.Flags(false)).Await(ctx)
//
// See the access package for the three access patterns and the gate
// package for switching caches off at run time.
package gorawrstash

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"

	"github.com/Keksclan/goRawrStash/access"
	"github.com/Keksclan/goRawrStash/cache"
	"github.com/Keksclan/goRawrStash/config"
)

var (
	// ErrUnconfigured is returned for a cache name with no configuration.
	ErrUnconfigured = errors.New("gorawrstash: cache is not configured")

	// ErrTypeMismatch is returned when a cache is requested with a value
	// type or variant other than the one it was first built with.
	ErrTypeMismatch = errors.New("gorawrstash: cache was built with a different type")

	// ErrDuplicate is returned by [New] when two configurations share a name.
	ErrDuplicate = errors.New("gorawrstash: duplicate cache name")

	// ErrNoRemote is returned by [Tiered] when no Redis client is configured.
	ErrNoRemote = errors.New("gorawrstash: no redis client configured")

	// ErrClosed is returned after [Registry.Close].
	ErrClosed = errors.New("gorawrstash: registry is closed")
)

type closer interface {
	Close() error
}

// Registry owns the configurations of all caches of a process and the
// instances built from them. Each named cache is built at most once and
// lives until [Registry.Close]. Safe for concurrent use.
type Registry struct {
	opts    options
	configs map[string]config.CacheConfig
	factory *cache.Factory
	metrics *cache.Metrics
	prom    *prometheus.Registry

	mu     sync.Mutex
	built  map[string]closer
	tiers  map[string]any
	closed bool
}

// New creates a registry for configs.
func New(configs []config.CacheConfig, opts ...Option) (*Registry, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}

	byName := make(map[string]config.CacheConfig, len(configs))
	for _, c := range configs {
		if _, dup := byName[c.Name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, c.Name)
		}
		byName[c.Name] = c
	}

	metrics := cache.NewMetrics(o.registry)
	factoryOpts := append([]cache.Option{
		cache.WithLogger(o.logger),
		cache.WithMetrics(metrics),
	}, o.factory...)

	return &Registry{
		opts:    o,
		configs: byName,
		factory: cache.NewFactory(factoryOpts...),
		metrics: metrics,
		prom:    o.registry,
		built:   make(map[string]closer),
		tiers:   make(map[string]any),
	}, nil
}

// FromViper resolves every cache configured in v and creates a registry for
// them. Caches whose configuration fails to resolve are reported in the
// error and left out; the registry is still returned.
func FromViper(v *viper.Viper, opts ...Option) (*Registry, error) {
	configs, resolveErr := config.ResolveAll(v)
	r, err := New(configs, opts...)
	if err != nil {
		return nil, err
	}
	if resolveErr != nil {
		r.opts.logger.Warn("gorawrstash: some caches are not configured correctly",
			slog.Any("error", resolveErr),
		)
	}
	return r, resolveErr
}

// Names returns the configured cache names in order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.configs))
}

// Config returns the configuration of name.
func (r *Registry) Config(name string) (config.CacheConfig, bool) {
	c, ok := r.configs[name]
	return c, ok
}

// Metrics returns the counters shared by the registry's caches.
func (r *Registry) Metrics() *cache.Metrics { return r.metrics }

// MetricsHandler serves the cache metrics in the Prometheus text format.
func (r *Registry) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}

// Close closes every cache built so far. Further lookups fail with
// [ErrClosed].
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var result *multierror.Error
	for _, name := range slices.Sorted(maps.Keys(r.built)) {
		if err := r.built[name].Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close cache %q: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

// instance returns the cache built for name, building it with build on
// first use.
func instance[C closer](r *Registry, name string, build func(config.CacheConfig) (C, error)) (C, error) {
	var zero C
	cfg, ok := r.configs[name]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrUnconfigured, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return zero, ErrClosed
	}
	if existing, ok := r.built[name]; ok {
		c, ok := existing.(C)
		if !ok {
			return zero, fmt.Errorf("%w: %q is a %T, not a %T", ErrTypeMismatch, name, existing, zero)
		}
		return c, nil
	}

	c, err := build(cfg)
	if err != nil {
		return zero, fmt.Errorf("gorawrstash: build cache %q: %w", name, err)
	}
	r.built[name] = c
	return c, nil
}

// Sync returns the synchronous cache configured as name.
func Sync[V any](r *Registry, name string) (*cache.Instance[V], error) {
	return instance(r, name, func(cfg config.CacheConfig) (*cache.Instance[V], error) {
		return cache.Build[V](r.factory, cfg)
	})
}

// Async returns the cache of deferred values configured as name.
func Async[V any](r *Registry, name string) (*cache.AsyncInstance[V], error) {
	return instance(r, name, func(cfg config.CacheConfig) (*cache.AsyncInstance[V], error) {
		return cache.BuildAsync[V](r.factory, cfg)
	})
}

// Tiered returns the synchronous cache configured as name, backed by a
// Redis tier that keeps entries for the configured expire duration.
func Tiered[V any](r *Registry, name string) (*cache.Tiered[V], error) {
	if r.opts.redis == nil {
		return nil, ErrNoRemote
	}
	l1, err := Sync[V](r, name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tiers[name].(*cache.Tiered[V]); ok {
		return t, nil
	}

	redisOpts := []cache.RedisOption{cache.WithRedisLogger(r.opts.logger)}
	if ttl, ok := l1.Config().ExpiresAfter(); ok {
		redisOpts = append(redisOpts, cache.WithRedisTTL(ttl))
	}
	if r.opts.redisBreaker != nil {
		redisOpts = append(redisOpts, cache.WithRedisBreaker(*r.opts.redisBreaker))
	}
	t := cache.NewTiered(l1, cache.NewRedis[V](r.opts.redis, name, redisOpts...))
	r.tiers[name] = t
	return t, nil
}

func (r *Registry) accessOptions() []access.Option {
	opts := []access.Option{
		access.WithLogger(r.opts.logger),
		access.WithMetrics(r.metrics),
	}
	if r.opts.tracer != nil {
		opts = append(opts, access.WithTracerProvider(r.opts.tracer))
	}
	return opts
}

// Access returns a read-through and fail-over accessor for the synchronous
// cache configured as name.
func Access[V any](r *Registry, name string) (*access.Sync[V], error) {
	c, err := Sync[V](r, name)
	if err != nil {
		return nil, err
	}
	return access.NewSync[V](c, r.accessOptions()...), nil
}

// AccessTiered is like [Access] over the [Tiered] cache configured as name.
func AccessTiered[V any](r *Registry, name string) (*access.Sync[V], error) {
	t, err := Tiered[V](r, name)
	if err != nil {
		return nil, err
	}
	return access.NewSync[V](t, r.accessOptions()...), nil
}

// AccessAsync returns a single-flight accessor for the cache of deferred
// values configured as name.
func AccessAsync[V any](r *Registry, name string) (*access.Async[V], error) {
	c, err := Async[V](r, name)
	if err != nil {
		return nil, err
	}
	return access.NewAsync[V](c, r.accessOptions()...), nil
}
