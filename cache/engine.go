package cache

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Keksclan/goRawrStash/config"
)

// entry is what an engine stores. The engine only bounds memory; age,
// expiry and refresh are decided by the instance from written.
type entry[V any] struct {
	key     string
	value   V
	written time.Time
	loader  Loader[V]

	// refreshing is set while a background reload of this entry runs.
	refreshing atomic.Bool
}

// engine is the bounded data structure behind an instance. Implementations
// report size, expiry and admission evictions through the callback given at
// construction; removals requested through del are not reported.
type engine[V any] interface {
	get(key string) (*entry[V], bool)
	// set stores e. ttl is a reclamation deadline, zero meaning none. It
	// reports false when the entry was dropped before being stored.
	set(e *entry[V], ttl time.Duration) bool
	del(key string)
	// clear removes every entry, reporting each as explicit.
	clear()
	close()
}

type evictFunc[V any] func(e *entry[V], cause Cause)

func newEngine[V any](cfg config.CacheConfig, onEvict evictFunc[V]) (engine[V], error) {
	if cfg.MaxSize == 0 {
		return nopEngine[V]{onEvict: onEvict}, nil
	}
	switch cfg.Engine {
	case config.EngineLRU:
		var sweep time.Duration
		if _, ok := cfg.ExpiresAfter(); ok {
			sweep = time.Second
		}
		return newLRU(cfg.MaxSize, sweep, onEvict), nil
	case config.EngineRistretto, "":
		return newRistretto(cfg.MaxSize, onEvict)
	default:
		return nil, fmt.Errorf("cache: unknown engine %q", cfg.Engine)
	}
}

// nopEngine backs a cache with a size bound of zero: every stored entry is
// evicted immediately.
type nopEngine[V any] struct {
	onEvict evictFunc[V]
}

func (nopEngine[V]) get(string) (*entry[V], bool) { return nil, false }

func (n nopEngine[V]) set(e *entry[V], _ time.Duration) bool {
	n.onEvict(e, CauseSize)
	return true
}

func (nopEngine[V]) del(string) {}
func (nopEngine[V]) clear() {}
func (nopEngine[V]) close() {}
