package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// lruEngine is an exact least-recently-used engine. Evictions are delivered
// by ttlcache on their own goroutines.
type lruEngine[V any] struct {
	c           *ttlcache.Cache[string, *entry[V]]
	unsubscribe func()
	onEvict     evictFunc[V]

	done      chan struct{}
	closeOnce sync.Once
}

// newLRU builds an engine holding at most maxSize entries. When sweep is
// positive, entries past their reclamation deadline are removed at that
// interval.
func newLRU[V any](maxSize int64, sweep time.Duration, onEvict evictFunc[V]) *lruEngine[V] {
	c := ttlcache.New[string, *entry[V]](
		ttlcache.WithCapacity[string, *entry[V]](uint64(maxSize)),
		ttlcache.WithDisableTouchOnHit[string, *entry[V]](),
	)
	l := &lruEngine[V]{
		c:       c,
		onEvict: onEvict,
		done:    make(chan struct{}),
	}
	l.unsubscribe = c.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *entry[V]]) {
		switch reason {
		case ttlcache.EvictionReasonCapacityReached, ttlcache.EvictionReasonMaxCostExceeded:
			onEvict(item.Value(), CauseSize)
		case ttlcache.EvictionReasonExpired:
			onEvict(item.Value(), CauseExpired)
		}
		// EvictionReasonDeleted is requested by the instance, which reports
		// it itself.
	})
	if sweep > 0 {
		go l.sweep(sweep)
	}
	return l
}

func (l *lruEngine[V]) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			l.c.DeleteExpired()
		}
	}
}

func (l *lruEngine[V]) get(key string) (*entry[V], bool) {
	item := l.c.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (l *lruEngine[V]) set(e *entry[V], ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	l.c.Set(e.key, e, ttl)
	return true
}

func (l *lruEngine[V]) del(key string) {
	l.c.Delete(key)
}

func (l *lruEngine[V]) clear() {
	for _, item := range l.c.Items() {
		l.onEvict(item.Value(), CauseExplicit)
	}
	l.c.DeleteAll()
}

func (l *lruEngine[V]) close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.unsubscribe()
	})
}
