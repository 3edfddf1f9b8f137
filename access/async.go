package access

import (
	"context"

	"github.com/Keksclan/goRawrStash/cache"
	"github.com/Keksclan/goRawrStash/future"
	"github.com/Keksclan/goRawrStash/tracing"
)

// Async serves the single-flight pattern over a cache of deferred values.
type Async[V any] struct {
	store cache.AsyncStore[V]
	options
}

// NewAsync creates an accessor for store.
func NewAsync[V any](store cache.AsyncStore[V], opts ...Option) *Async[V] {
	return &Async[V]{store: store, options: newOptions(store, opts)}
}

// Get returns the entry for key, loading it at most once no matter how many
// callers miss concurrently. With flags.SkipCache the loader always runs
// and, unless flags.SkipWrite, replaces the entry. With only
// flags.SkipWrite a present entry is served and a miss loads without
// storing.
//
// A loader failure is returned to every caller sharing the load and is
// never cached.
func (a *Async[V]) Get(ctx context.Context, key string, loader cache.Loader[V], flags Flags) *future.Future[V] {
	ctx, span := a.tracing.Start(ctx, "rawrstash.get_async", a.name, key,
		tracing.AttrSkipCache.Bool(flags.SkipCache),
		tracing.AttrSkipWrite.Bool(flags.SkipWrite),
	)

	var f *future.Future[V]
	switch {
	case flags.SkipCache && flags.SkipWrite:
		f = a.load(ctx, key, loader)
	case flags.SkipCache:
		f = a.guard(ctx, key, loader, func() *future.Future[V] {
			return a.store.Reload(ctx, key, loader)
		})
	case flags.SkipWrite:
		if p, ok := a.peek(ctx, key); ok {
			span.SetAttributes(tracing.AttrHit.Bool(true))
			f = p
		} else {
			f = a.load(ctx, key, loader)
		}
	default:
		f = a.guard(ctx, key, loader, func() *future.Future[V] {
			return a.store.GetOrLoad(ctx, key, loader)
		})
	}
	return tracing.EndWhenDone(span, f)
}

// load runs loader without touching the store.
func (a *Async[V]) load(ctx context.Context, key string, loader cache.Loader[V]) *future.Future[V] {
	f := loader.Load(ctx, key)
	f.OnComplete(func(_ V, err error) {
		a.metrics.Loaded(a.name, err)
	})
	return f
}

func (a *Async[V]) peek(ctx context.Context, key string) (p *future.Future[V], ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.storeFailed(ctx, "read", key, recovered(r))
			p, ok = nil, false
		}
	}()
	return a.store.GetIfPresent(ctx, key)
}

// guard runs a store operation. When the store panics or hands back no
// future, the loader is called directly instead.
func (a *Async[V]) guard(ctx context.Context, key string, loader cache.Loader[V], op func() *future.Future[V]) (f *future.Future[V]) {
	defer func() {
		if r := recover(); r != nil {
			a.storeFailed(ctx, "load", key, recovered(r))
			f = a.load(ctx, key, loader)
		}
	}()
	if f = op(); f == nil {
		a.storeFailed(ctx, "load", key, errNoFuture)
		return a.load(ctx, key, loader)
	}
	return f
}
