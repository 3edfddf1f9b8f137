package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Keksclan/goRawrStash/config"
	"github.com/Keksclan/goRawrStash/future"
)

var errNilFuture = errors.New("cache: loader returned a nil future")

// Load invokes the loader. A panicking loader or a nil future becomes a
// failed future, so callers can always attach continuations.
func (l Loader[V]) Load(ctx context.Context, key string) (f *future.Future[V]) {
	defer func() {
		if r := recover(); r != nil {
			f = future.Failed[V](fmt.Errorf("cache: loader for %q panicked: %v", key, r))
		}
	}()
	if f = l(ctx, key); f == nil {
		return future.Failed[V](errNilFuture)
	}
	return f
}

// Instance is a bounded, named key to value cache built from one
// CacheConfig. It implements [Store] and [Refreshable].
//
// Entries older than the expire duration are treated as absent. Entries
// older than the refresh duration are still served, and the first access
// after that age reloads them in the background with the loader that
// produced them.
type Instance[V any] struct {
	name string
	cfg  config.CacheConfig

	expireAfter  time.Duration
	expires      bool
	refreshAfter time.Duration
	refreshes    bool

	eng      engine[V]
	clock    Clock
	exec     Executor
	ownsExec bool
	notifier *evictionNotifier
	metrics  *Metrics
	logger   *slog.Logger
	closed   atomic.Bool
}

var (
	_ Store[int]       = (*Instance[int])(nil)
	_ Refreshable[int] = (*Instance[int])(nil)
)

// Name returns the cache name.
func (c *Instance[V]) Name() string { return c.name }

// Config returns the configuration the instance was built from.
func (c *Instance[V]) Config() config.CacheConfig { return c.cfg }

// Executor returns the executor running the instance's refreshes.
func (c *Instance[V]) Executor() Executor { return c.exec }

// Get returns the live value for key. A hit past the refresh age schedules
// a background reload and still returns the current value.
func (c *Instance[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if c.closed.Load() {
		return zero, false, ErrClosed
	}

	e, ok := c.lookup(key)
	if !ok {
		c.metrics.miss(c.name)
		return zero, false, nil
	}
	c.metrics.hit(c.name)
	c.maybeRefresh(ctx, e)
	return e.value, true, nil
}

// Set stores val under key. Values stored without a loader are never
// refreshed.
func (c *Instance[V]) Set(ctx context.Context, key string, val V) error {
	return c.SetLoaded(ctx, key, val, nil)
}

// SetLoaded stores val under key and remembers loader for refresh-ahead.
func (c *Instance[V]) SetLoaded(_ context.Context, key string, val V, loader Loader[V]) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.store(&entry[V]{
		key:     key,
		value:   val,
		written: c.clock.Now(),
		loader:  loader,
	})
}

// Invalidate removes key.
func (c *Instance[V]) Invalidate(_ context.Context, key string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if e, ok := c.eng.get(key); ok {
		c.remove(e, CauseExplicit)
	}
	return nil
}

// InvalidateAll removes every entry.
func (c *Instance[V]) InvalidateAll(context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.eng.clear()
	return nil
}

// Close releases the engine and, when the instance owns one, its dedicated
// executor. It does not wait for running refreshes.
func (c *Instance[V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.eng.close()
	if c.ownsExec {
		c.exec.Close()
	}
	return nil
}

func (c *Instance[V]) lookup(key string) (*entry[V], bool) {
	e, ok := c.eng.get(key)
	if !ok {
		return nil, false
	}
	if c.expires && c.age(e) >= c.expireAfter {
		c.remove(e, CauseExpired)
		return nil, false
	}
	return e, true
}

func (c *Instance[V]) age(e *entry[V]) time.Duration {
	return c.clock.Now().Sub(e.written)
}

// store writes e, reporting the entry it displaced as replaced.
func (c *Instance[V]) store(e *entry[V]) error {
	prev, had := c.eng.get(e.key)

	var ttl time.Duration
	if c.expires {
		ttl = c.expireAfter
	}
	if !c.eng.set(e, ttl) {
		return fmt.Errorf("cache %q: key %q: %w", c.name, e.key, ErrRejected)
	}
	if had && prev != e {
		c.notify(e.key, CauseReplaced)
	}
	return nil
}

// remove deletes e unless it was already replaced by another entry.
func (c *Instance[V]) remove(e *entry[V], cause Cause) {
	cur, ok := c.eng.get(e.key)
	if !ok || cur != e {
		return
	}
	c.eng.del(e.key)
	c.notify(e.key, cause)
}

func (c *Instance[V]) notify(key string, cause Cause) {
	c.notifier.notify(Eviction{Cache: c.name, Key: key, Cause: cause})
}

func (c *Instance[V]) maybeRefresh(ctx context.Context, e *entry[V]) {
	if !c.refreshes || e.loader == nil || c.age(e) < c.refreshAfter {
		return
	}
	if !e.refreshing.CompareAndSwap(false, true) {
		return
	}

	// The reload outlives the request that triggered it.
	rctx := context.WithoutCancel(ctx)
	if !c.exec.Submit(func(context.Context) { c.reload(rctx, e) }) {
		e.refreshing.Store(false)
		c.logger.Debug("cache: refresh not scheduled, executor refused it",
			slog.String("key", e.key),
		)
	}
}

func (c *Instance[V]) reload(ctx context.Context, e *entry[V]) {
	c.metrics.refreshStarted(c.name)
	c.logger.Debug("cache: refreshing entry", slog.String("key", e.key))

	e.loader.Load(ctx, e.key).OnComplete(func(v V, err error) {
		if err != nil {
			e.refreshing.Store(false)
			c.metrics.refreshFailed(c.name)
			c.logger.Warn("cache: refresh failed, serving previous value",
				slog.String("key", e.key),
				slog.Any("error", err),
			)
			return
		}
		if c.closed.Load() {
			return
		}
		// A write or invalidation that happened during the reload wins.
		if cur, ok := c.eng.get(e.key); !ok || cur != e {
			return
		}
		next := &entry[V]{key: e.key, value: v, written: c.clock.Now(), loader: e.loader}
		if err := c.store(next); err != nil {
			e.refreshing.Store(false)
			c.metrics.StoreFailed(c.name)
			c.logger.Warn("cache: storing refreshed value failed",
				slog.String("key", e.key),
				slog.Any("error", err),
			)
		}
	})
}
