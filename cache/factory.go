package cache

import (
	"fmt"
	"log/slog"

	"github.com/Keksclan/goRawrStash/config"
	"github.com/Keksclan/goRawrStash/future"
	"github.com/Keksclan/goRawrStash/ratelimit"
)

// Factory builds cache instances from configurations. It carries the
// collaborators shared by every instance it builds: clock, logger, metrics,
// eviction listeners and the shared background executor.
type Factory struct {
	clock     Clock
	logger    *slog.Logger
	metrics   *Metrics
	sampler   *ratelimit.Sampler
	listeners []EvictionListener
	shared    Executor
	poolOpts  []PoolOption
}

// Option configures a Factory.
type Option func(*Factory)

// WithClock sets the time source used for entry age.
func WithClock(c Clock) Option {
	return func(f *Factory) { f.clock = c }
}

// WithLogger sets the logger. Instances log with a "cache" attribute.
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// WithMetrics records hits, misses, refreshes and evictions in m.
func WithMetrics(m *Metrics) Option {
	return func(f *Factory) { f.metrics = m }
}

// WithEvictionListener adds a listener called for every eviction of every
// instance built by the factory.
func WithEvictionListener(l EvictionListener) Option {
	return func(f *Factory) { f.listeners = append(f.listeners, l) }
}

// WithEvictionLogRate limits eviction debug logs to perSecond with the given
// burst. The default is 10 per second with a burst of 100.
func WithEvictionLogRate(perSecond float64, burst int) Option {
	return func(f *Factory) { f.sampler = ratelimit.NewSampler(perSecond, burst) }
}

// WithExecutor replaces the shared executor used by instances that are not
// configured with a dedicated one.
func WithExecutor(e Executor) Option {
	return func(f *Factory) { f.shared = e }
}

// WithPoolOptions configures the dedicated executors of instances with
// custom-executor enabled.
func WithPoolOptions(opts ...PoolOption) Option {
	return func(f *Factory) { f.poolOpts = append(f.poolOpts, opts...) }
}

// NewFactory creates a Factory.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		clock:   SystemClock{},
		logger:  slog.Default(),
		sampler: ratelimit.NewSampler(10, 100),
	}
	for _, o := range opts {
		o(f)
	}
	if f.shared == nil {
		f.shared = GoExecutor{Logger: f.logger}
	}
	return f
}

// Build creates a synchronous instance from cfg.
func Build[V any](f *Factory, cfg config.CacheConfig) (*Instance[V], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("cache: configuration has no name")
	}
	if cfg.MaxSize < 0 {
		return nil, fmt.Errorf("cache %q: negative max size %d", cfg.Name, cfg.MaxSize)
	}

	c := &Instance[V]{
		name:    cfg.Name,
		cfg:     cfg,
		clock:   f.clock,
		metrics: f.metrics,
		logger:  f.logger.With(slog.String("cache", cfg.Name)),
		notifier: &evictionNotifier{
			logger:    f.logger,
			sampler:   f.sampler,
			metrics:   f.metrics,
			listeners: f.listeners,
		},
	}
	c.expireAfter, c.expires = cfg.ExpiresAfter()
	c.refreshAfter, c.refreshes = cfg.RefreshesAfter()

	eng, err := newEngine(cfg, func(e *entry[V], cause Cause) {
		c.notify(e.key, cause)
	})
	if err != nil {
		return nil, fmt.Errorf("cache %q: %w", cfg.Name, err)
	}
	c.eng = eng

	c.exec = f.shared
	if cfg.CustomExecutor {
		opts := append([]PoolOption{WithPoolLogger(f.logger)}, f.poolOpts...)
		c.exec = NewPool(ExecutorName(cfg.Name), opts...)
		c.ownsExec = true
	}

	f.logger.Debug("cache: built",
		slog.String("cache", cfg.Name),
		slog.Int64("max_size", cfg.MaxSize),
		slog.Duration("refresh", c.refreshAfter),
		slog.Duration("expire", c.expireAfter),
		slog.Bool("custom_executor", cfg.CustomExecutor),
		slog.String("engine", string(cfg.Engine)),
	)
	return c, nil
}

// BuildAsync creates an instance of deferred values from cfg.
func BuildAsync[V any](f *Factory, cfg config.CacheConfig) (*AsyncInstance[V], error) {
	inner, err := Build[*future.Future[V]](f, cfg)
	if err != nil {
		return nil, err
	}
	return &AsyncInstance[V]{
		inner:    inner,
		inflight: make(map[string]*future.Future[V]),
	}, nil
}

// Metrics returns the metrics the factory records into, possibly nil.
func (f *Factory) Metrics() *Metrics { return f.metrics }

// Logger returns the factory logger.
func (f *Factory) Logger() *slog.Logger { return f.logger }
