package cache

import (
	"context"
	"log/slog"

	"github.com/Keksclan/goRawrStash/ratelimit"
)

// Cause is the reason an entry left a cache.
type Cause int

const (
	// CauseSize means the entry was evicted to respect the size bound.
	CauseSize Cause = iota
	// CauseExpired means the entry outlived its expire duration.
	CauseExpired
	// CauseExplicit means the entry was invalidated by a caller.
	CauseExplicit
	// CauseReplaced means a newer value was stored under the same key.
	CauseReplaced
	// CauseRejected means the admission policy refused a new entry.
	CauseRejected
)

func (c Cause) String() string {
	switch c {
	case CauseSize:
		return "size"
	case CauseExpired:
		return "expired"
	case CauseExplicit:
		return "explicit"
	case CauseReplaced:
		return "replaced"
	case CauseRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Eviction describes an entry leaving a cache.
type Eviction struct {
	Cache string
	Key   string
	Cause Cause
}

// EvictionListener observes evictions. Listeners run on housekeeping
// goroutines shared by every entry of a cache and must return quickly.
type EvictionListener func(Eviction)

// evictionNotifier fans an eviction out to the log, the metrics and the
// configured listeners. It never panics and never blocks on a listener.
type evictionNotifier struct {
	logger    *slog.Logger
	sampler   *ratelimit.Sampler
	metrics   *Metrics
	listeners []EvictionListener
}

func (n *evictionNotifier) notify(ev Eviction) {
	n.metrics.evicted(ev.Cache, ev.Cause)

	if n.logger.Enabled(context.Background(), slog.LevelDebug) && n.sampler.Allow() {
		n.logger.Debug("cache: entry evicted",
			slog.String("cache", ev.Cache),
			slog.String("key", ev.Key),
			slog.String("cause", ev.Cause.String()),
			slog.Uint64("suppressed", n.sampler.TakeSuppressed()),
		)
	}

	for _, l := range n.listeners {
		n.call(l, ev)
	}
}

func (n *evictionNotifier) call(l EvictionListener, ev Eviction) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("cache: eviction listener panicked",
				slog.String("cache", ev.Cache),
				slog.Any("panic", r),
			)
		}
	}()
	l(ev)
}
