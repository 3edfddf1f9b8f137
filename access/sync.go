package access

import (
	"context"
	"log/slog"

	"github.com/Keksclan/goRawrStash/cache"
	"github.com/Keksclan/goRawrStash/future"
	"github.com/Keksclan/goRawrStash/tracing"
)

// Sync serves the read-through and fail-over patterns over a synchronous
// store. It holds no locks and no mutable state.
type Sync[V any] struct {
	store cache.Store[V]
	options
}

// NewSync creates an accessor for store.
func NewSync[V any](store cache.Store[V], opts ...Option) *Sync[V] {
	return &Sync[V]{store: store, options: newOptions(store, opts)}
}

// Get is the read-through pattern. Unless flags.SkipCache is set, a cached
// value is returned without invoking loader. Otherwise loader runs, its
// successful result is stored (unless flags.SkipWrite) and then returned.
// A loader failure is returned unchanged and nothing is stored.
func (a *Sync[V]) Get(ctx context.Context, key string, loader cache.Loader[V], flags Flags) *future.Future[V] {
	ctx, span := a.tracing.Start(ctx, "rawrstash.get", a.name, key,
		tracing.AttrSkipCache.Bool(flags.SkipCache),
		tracing.AttrSkipWrite.Bool(flags.SkipWrite),
	)

	if !flags.SkipCache {
		if v, ok := a.read(ctx, key); ok {
			span.SetAttributes(tracing.AttrHit.Bool(true))
			return tracing.EndWhenDone(span, future.Resolved(v))
		}
	}
	span.SetAttributes(tracing.AttrHit.Bool(false))

	out := future.New[V]()
	loader.Load(ctx, key).OnComplete(func(v V, err error) {
		a.metrics.Loaded(a.name, err)
		if err == nil && !flags.SkipWrite {
			a.write(ctx, key, v, loader)
		}
		out.Complete(v, err)
	})
	return tracing.EndWhenDone(span, out)
}

// GetWithFallback is the fail-over pattern. loader always runs; a success
// is stored and returned. On failure the cached value is returned if there
// is one. If not, the result fails with a [*FallbackError] wrapping the
// loader's error.
func (a *Sync[V]) GetWithFallback(ctx context.Context, key string, loader cache.Loader[V]) *future.Future[V] {
	ctx, span := a.tracing.Start(ctx, "rawrstash.get_with_fallback", a.name, key)

	out := future.New[V]()
	loader.Load(ctx, key).OnComplete(func(v V, err error) {
		a.metrics.Loaded(a.name, err)
		if err == nil {
			a.write(ctx, key, v, loader)
			out.Resolve(v)
			return
		}

		a.logger.WarnContext(ctx, "access: upstream load failed, trying cached value",
			slog.String("key", key),
			slog.Any("error", err),
		)
		if stale, ok := a.read(ctx, key); ok {
			a.metrics.FellBack(a.name)
			span.SetAttributes(tracing.AttrStale.Bool(true))
			out.Resolve(stale)
			return
		}
		out.Fail(&FallbackError{Cache: a.name, Key: key, Err: err})
	})
	return tracing.EndWhenDone(span, out)
}

// read looks key up. Store errors and panics count as a miss.
func (a *Sync[V]) read(ctx context.Context, key string) (v V, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.storeFailed(ctx, "read", key, recovered(r))
			var zero V
			v, ok = zero, false
		}
	}()

	v, ok, err := a.store.Get(ctx, key)
	if err != nil {
		a.storeFailed(ctx, "read", key, err)
		var zero V
		return zero, false
	}
	return v, ok
}

// write stores v. Store errors and panics are logged and dropped.
func (a *Sync[V]) write(ctx context.Context, key string, v V, loader cache.Loader[V]) {
	defer func() {
		if r := recover(); r != nil {
			a.storeFailed(ctx, "write", key, recovered(r))
		}
	}()

	// The write must not be cut short by the caller giving up.
	ctx = context.WithoutCancel(ctx)

	var err error
	if r, ok := a.store.(cache.Refreshable[V]); ok {
		err = r.SetLoaded(ctx, key, v, loader)
	} else {
		err = a.store.Set(ctx, key, v)
	}
	if err != nil {
		a.storeFailed(ctx, "write", key, err)
	}
}
