package cache

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/Keksclan/goRawrStash/future"
)

// Tiered combines an in-process instance (L1) with a remote store (L2).
// Reads check L1 first, then L2, promoting L2 hits into L1. Writes populate
// both tiers. It does no load deduplication of its own; pair it with the
// read-through or fail-over accessor.
type Tiered[V any] struct {
	l1 *Instance[V]
	l2 Store[V]
}

var (
	_ Store[int]       = (*Tiered[int])(nil)
	_ Refreshable[int] = (*Tiered[int])(nil)
)

// NewTiered creates a two-level store.
func NewTiered[V any](l1 *Instance[V], l2 Store[V]) *Tiered[V] {
	return &Tiered[V]{l1: l1, l2: l2}
}

// Name returns the name of the L1 cache.
func (t *Tiered[V]) Name() string { return t.l1.Name() }

// Get checks L1, then L2. An L2 hit is copied into L1. A failing tier is
// skipped; the error is returned only with a miss.
func (t *Tiered[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var errs *multierror.Error

	v, ok, err := t.l1.Get(ctx, key)
	if err == nil && ok {
		return v, true, nil
	}
	errs = multierror.Append(errs, err)

	v, ok, err = t.l2.Get(ctx, key)
	if err == nil && ok {
		// Promotion failure only costs a future L2 round trip.
		_ = t.l1.Set(ctx, key, v)
		return v, true, nil
	}
	errs = multierror.Append(errs, err)

	var zero V
	return zero, false, errs.ErrorOrNil()
}

// Set writes val to L2, then L1.
func (t *Tiered[V]) Set(ctx context.Context, key string, val V) error {
	return t.SetLoaded(ctx, key, val, nil)
}

// SetLoaded writes val to both tiers and lets L1 refresh it with loader.
// Refreshed values are written to L2 as well.
func (t *Tiered[V]) SetLoaded(ctx context.Context, key string, val V, loader Loader[V]) error {
	var errs *multierror.Error
	errs = multierror.Append(errs, t.l2.Set(ctx, key, val))
	errs = multierror.Append(errs, t.l1.SetLoaded(ctx, key, val, t.writeThrough(loader)))
	return errs.ErrorOrNil()
}

func (t *Tiered[V]) writeThrough(loader Loader[V]) Loader[V] {
	if loader == nil {
		return nil
	}
	return func(ctx context.Context, key string) *future.Future[V] {
		f := loader.Load(ctx, key)
		f.OnComplete(func(v V, err error) {
			if err == nil {
				// A failed remote write leaves L2 one refresh behind.
				_ = t.l2.Set(context.WithoutCancel(ctx), key, v)
			}
		})
		return f
	}
}

// Invalidate removes key from both tiers.
func (t *Tiered[V]) Invalidate(ctx context.Context, key string) error {
	var errs *multierror.Error
	errs = multierror.Append(errs, t.l2.Invalidate(ctx, key))
	errs = multierror.Append(errs, t.l1.Invalidate(ctx, key))
	return errs.ErrorOrNil()
}
