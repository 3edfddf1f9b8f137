package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rawrstash"

// Metrics holds the Prometheus counters shared by every cache of a process,
// labelled by cache name. A nil *Metrics records nothing.
type Metrics struct {
	hits            *prometheus.CounterVec
	misses          *prometheus.CounterVec
	loads           *prometheus.CounterVec
	loadFailures    *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshFailures *prometheus.CounterVec
	evictions       *prometheus.CounterVec
	storeFailures   *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, append([]string{"cache"}, labels...))
	}

	m := &Metrics{
		hits:            counter("hits_total", "Lookups that found a live entry."),
		misses:          counter("misses_total", "Lookups that found no live entry."),
		loads:           counter("loads_total", "Loader invocations."),
		loadFailures:    counter("load_failures_total", "Loader invocations that failed."),
		refreshes:       counter("refreshes_total", "Background refreshes started."),
		refreshFailures: counter("refresh_failures_total", "Background refreshes that failed."),
		evictions:       counter("evictions_total", "Entries that left the cache.", "cause"),
		storeFailures:   counter("store_failures_total", "Cache reads or writes that failed and were swallowed."),
		fallbacks:       counter("stale_fallbacks_total", "Stale values served after a loader failure."),
	}
	if reg != nil {
		reg.MustRegister(
			m.hits, m.misses, m.loads, m.loadFailures, m.refreshes,
			m.refreshFailures, m.evictions, m.storeFailures, m.fallbacks,
		)
	}
	return m
}

func (m *Metrics) hit(cache string) {
	if m != nil {
		m.hits.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) miss(cache string) {
	if m != nil {
		m.misses.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) refreshStarted(cache string) {
	if m != nil {
		m.refreshes.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) refreshFailed(cache string) {
	if m != nil {
		m.refreshFailures.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) evicted(cache string, cause Cause) {
	if m != nil {
		m.evictions.WithLabelValues(cache, cause.String()).Inc()
	}
}

// Loaded records a loader invocation and its outcome.
func (m *Metrics) Loaded(cache string, err error) {
	if m == nil {
		return
	}
	m.loads.WithLabelValues(cache).Inc()
	if err != nil {
		m.loadFailures.WithLabelValues(cache).Inc()
	}
}

// StoreFailed records a swallowed cache read or write failure.
func (m *Metrics) StoreFailed(cache string) {
	if m != nil {
		m.storeFailures.WithLabelValues(cache).Inc()
	}
}

// FellBack records a stale value served in place of a failed load.
func (m *Metrics) FellBack(cache string) {
	if m != nil {
		m.fallbacks.WithLabelValues(cache).Inc()
	}
}
