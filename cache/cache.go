// Package cache builds bounded, named cache instances from a
// [config.CacheConfig] and provides the remote and tiered stores that can sit
// behind the same contract.
//
// Two capability variants exist. [Store] is a synchronous key to value
// store. [AsyncStore] holds deferred values and deduplicates concurrent loads
// of the same key.
package cache

import (
	"context"
	"errors"

	"github.com/Keksclan/goRawrStash/future"
)

var (
	// ErrRejected is returned when the engine declined to store an entry
	// (admission policy, contended write buffer).
	ErrRejected = errors.New("cache: entry rejected")

	// ErrClosed is returned by operations on a closed instance.
	ErrClosed = errors.New("cache: closed")
)

// Loader produces the value for key. It returns immediately; the value
// arrives through the returned future on the loader's own schedule.
type Loader[V any] func(ctx context.Context, key string) *future.Future[V]

// Store is the synchronous cache contract used by the read-through and
// fail-over accessors.
type Store[V any] interface {
	// Get returns the value cached under key. The boolean reports a hit.
	Get(ctx context.Context, key string) (V, bool, error)

	// Set stores val under key, replacing any previous value.
	Set(ctx context.Context, key string, val V) error

	// Invalidate removes key. Removing an absent key is not an error.
	Invalidate(ctx context.Context, key string) error
}

// Refreshable is implemented by stores that can reload an entry in the
// background with the loader that produced it.
type Refreshable[V any] interface {
	SetLoaded(ctx context.Context, key string, val V, loader Loader[V]) error
}

// AsyncStore is the deferred-value cache contract used by the single-flight
// accessor.
type AsyncStore[V any] interface {
	// GetIfPresent returns the pending or resolved entry for key, if any.
	GetIfPresent(ctx context.Context, key string) (*future.Future[V], bool)

	// GetOrLoad returns the entry for key, invoking loader only when the key
	// is absent. At most one loader runs per key at a time.
	GetOrLoad(ctx context.Context, key string, loader Loader[V]) *future.Future[V]

	// Reload invokes loader unconditionally. Once the result completes
	// successfully it replaces the entry for key.
	Reload(ctx context.Context, key string, loader Loader[V]) *future.Future[V]

	Invalidate(ctx context.Context, key string) error
}

// Named is implemented by stores that carry the name of their cache.
type Named interface {
	Name() string
}
