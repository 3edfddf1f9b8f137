package cache

import (
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// ristrettoEngine is the default engine: sampled LFU eviction with TinyLFU
// admission. Each entry costs 1, so MaxCost is the entry bound.
type ristrettoEngine[V any] struct {
	rc       *ristretto.Cache[string, *entry[V]]
	clearing atomic.Bool
}

func newRistretto[V any](maxSize int64, onEvict evictFunc[V]) (*ristrettoEngine[V], error) {
	r := &ristrettoEngine[V]{}
	rc, err := ristretto.NewCache(&ristretto.Config[string, *entry[V]]{
		NumCounters:        max(maxSize*10, 100),
		MaxCost:            maxSize,
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnEvict: func(item *ristretto.Item[*entry[V]]) {
			if item.Value == nil {
				return
			}
			onEvict(item.Value, r.cause(item))
		},
		OnReject: func(item *ristretto.Item[*entry[V]]) {
			if item.Value != nil {
				onEvict(item.Value, CauseRejected)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	r.rc = rc
	return r, nil
}

// cause infers why ristretto dropped an item: it reports size and TTL
// evictions (and Clear) through the same callback.
func (r *ristrettoEngine[V]) cause(item *ristretto.Item[*entry[V]]) Cause {
	switch {
	case r.clearing.Load():
		return CauseExplicit
	case !item.Expiration.IsZero() && !time.Now().Before(item.Expiration):
		return CauseExpired
	default:
		return CauseSize
	}
}

func (r *ristrettoEngine[V]) get(key string) (*entry[V], bool) {
	return r.rc.Get(key)
}

func (r *ristrettoEngine[V]) set(e *entry[V], ttl time.Duration) bool {
	if !r.rc.SetWithTTL(e.key, e, 1, ttl) {
		return false
	}
	r.rc.Wait()
	return true
}

func (r *ristrettoEngine[V]) del(key string) {
	r.rc.Del(key)
}

func (r *ristrettoEngine[V]) clear() {
	r.clearing.Store(true)
	defer r.clearing.Store(false)
	r.rc.Clear()
}

func (r *ristrettoEngine[V]) close() {
	r.rc.Close()
}
