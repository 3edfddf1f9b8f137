package cache

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keksclan/goRawrStash/config"
)

func TestMetrics_CountsCacheActivity(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	fx := newFixture(t, WithMetrics(m))
	c := build[int](t, fx.factory, config.CacheConfig{
		Name:           "profile",
		ExpireDuration: time.Minute,
		MaxSize:        10,
	})
	ctx := t.Context()

	_, _, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "a", 1))
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "a")
	fx.clock.Advance(2 * time.Minute)
	_, _, _ = c.Get(ctx, "a")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.hits.WithLabelValues("profile")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.misses.WithLabelValues("profile")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evictions.WithLabelValues("profile", "expired")))

	n, err := testutil.GatherAndCount(reg, "rawrstash_hits_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.hit("c")
		m.miss("c")
		m.evicted("c", CauseSize)
		m.Loaded("c", nil)
		m.StoreFailed("c")
		m.FellBack("c")
	})
}

func TestCause_String(t *testing.T) {
	assert.Equal(t, "size", CauseSize.String())
	assert.Equal(t, "expired", CauseExpired.String())
	assert.Equal(t, "explicit", CauseExplicit.String())
	assert.Equal(t, "replaced", CauseReplaced.String())
	assert.Equal(t, "rejected", CauseRejected.String())
	assert.Equal(t, "unknown", Cause(42).String())
}
