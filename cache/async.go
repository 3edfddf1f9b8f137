package cache

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Keksclan/goRawrStash/config"
	"github.com/Keksclan/goRawrStash/future"
)

// AsyncInstance is a cache of deferred values. It implements [AsyncStore].
//
// Loads in progress live in an in-flight table until they complete, so a
// key is never absent while its loader runs: concurrent callers share the
// pending future and at most one loader per key is in flight. A completed
// load is stored as a resolved future; a failed one is dropped so the next
// caller retries.
type AsyncInstance[V any] struct {
	inner *Instance[*future.Future[V]]

	mu       sync.Mutex
	inflight map[string]*future.Future[V]
}

var _ AsyncStore[int] = (*AsyncInstance[int])(nil)

// Name returns the cache name.
func (a *AsyncInstance[V]) Name() string { return a.inner.Name() }

// Config returns the configuration the instance was built from.
func (a *AsyncInstance[V]) Config() config.CacheConfig { return a.inner.Config() }

// GetIfPresent returns the pending or resolved entry for key.
func (a *AsyncInstance[V]) GetIfPresent(ctx context.Context, key string) (*future.Future[V], bool) {
	if p, ok := a.pending(key); ok {
		return p, true
	}

	f, ok, err := a.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	return f, true
}

// GetOrLoad returns the entry for key, starting a load only when there is
// neither a stored nor an in-flight one.
func (a *AsyncInstance[V]) GetOrLoad(ctx context.Context, key string, loader Loader[V]) *future.Future[V] {
	if a.inner.closed.Load() {
		return a.invoke(ctx, key, loader)
	}

	if p, ok := a.pending(key); ok {
		a.inner.metrics.hit(a.Name())
		return p
	}
	// Not under a.mu: the lookup may run listeners and refresh loaders.
	if f, ok, err := a.inner.Get(ctx, key); err == nil && ok {
		return f
	}

	a.mu.Lock()
	if p, ok := a.inflight[key]; ok {
		a.mu.Unlock()
		return p
	}
	p := future.New[V]()
	a.inflight[key] = p
	a.mu.Unlock()

	a.settle(ctx, key, p, loader)
	return p
}

// Reload invokes loader regardless of what is cached and, on success,
// replaces the entry for key with the result. The reload takes over the
// in-flight slot for key, so readers arriving meanwhile share it and an
// older load still in progress no longer gets stored.
func (a *AsyncInstance[V]) Reload(ctx context.Context, key string, loader Loader[V]) *future.Future[V] {
	if a.inner.closed.Load() {
		return a.invoke(ctx, key, loader)
	}

	p := future.New[V]()
	a.mu.Lock()
	a.inflight[key] = p
	a.mu.Unlock()

	a.settle(ctx, key, p, loader)
	return p
}

func (a *AsyncInstance[V]) pending(key string) (*future.Future[V], bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.inflight[key]
	return p, ok
}

// settle runs loader for the in-flight entry p. The result is stored only
// while p still owns the slot for key; p completes after that.
func (a *AsyncInstance[V]) settle(ctx context.Context, key string, p *future.Future[V], loader Loader[V]) {
	a.invoke(ctx, key, loader).OnComplete(func(v V, err error) {
		a.mu.Lock()
		current := a.inflight[key] == p
		a.mu.Unlock()

		if current && err == nil && !a.inner.closed.Load() {
			a.store(ctx, key, v, loader)
		}

		a.mu.Lock()
		if a.inflight[key] == p {
			delete(a.inflight, key)
		}
		a.mu.Unlock()

		p.Complete(v, err)
	})
}

// Invalidate drops the stored entry for key and forgets any in-flight load,
// whose result will then not be stored.
func (a *AsyncInstance[V]) Invalidate(ctx context.Context, key string) error {
	a.mu.Lock()
	delete(a.inflight, key)
	a.mu.Unlock()
	return a.inner.Invalidate(ctx, key)
}

// Close closes the underlying instance.
func (a *AsyncInstance[V]) Close() error {
	return a.inner.Close()
}

func (a *AsyncInstance[V]) invoke(ctx context.Context, key string, loader Loader[V]) *future.Future[V] {
	f := loader.Load(ctx, key)
	f.OnComplete(func(_ V, err error) {
		a.inner.metrics.Loaded(a.Name(), err)
	})
	return f
}

// store writes a resolved future. Failures are logged and swallowed: the
// value simply is not cached.
func (a *AsyncInstance[V]) store(ctx context.Context, key string, v V, loader Loader[V]) {
	err := a.inner.SetLoaded(context.WithoutCancel(ctx), key, future.Resolved(v), lift(loader))
	if err != nil {
		a.inner.metrics.StoreFailed(a.Name())
		a.inner.logger.Warn("cache: storing loaded value failed",
			slog.String("key", key),
			slog.Any("error", err),
		)
	}
}

// lift turns a value loader into a loader of resolved futures, so the inner
// instance can refresh entries without exposing a pending one.
func lift[V any](loader Loader[V]) Loader[*future.Future[V]] {
	return func(ctx context.Context, key string) *future.Future[*future.Future[V]] {
		return future.Map(loader.Load(ctx, key), future.Resolved[V])
	}
}
