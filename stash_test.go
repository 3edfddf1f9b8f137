package gorawrstash

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Keksclan/goRawrStash/access"
	"github.com/Keksclan/goRawrStash/cache"
	"github.com/Keksclan/goRawrStash/config"
	"github.com/Keksclan/goRawrStash/future"
	"github.com/Keksclan/goRawrStash/gate"
	"github.com/Keksclan/goRawrStash/internal/fakeclock"
)

const yamlConfig = `
caching:
  profile:
    refresh-duration: 5s
    expire-duration: 60s
    max-size: 100
  orders:
    refresh-duration: 0
    custom-executor: true
  broken:
    expire-duration: 1m
`

func loadViper(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return v
}

func newRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r, err := New([]config.CacheConfig{
		{Name: "profile", RefreshDuration: 5 * time.Second, ExpireDuration: time.Minute, MaxSize: 100},
		{Name: "orders", MaxSize: 10},
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestFromViper_KeepsGoodCaches(t *testing.T) {
	r, err := FromViper(loadViper(t, yamlConfig))
	require.Error(t, err, "broken has no refresh-duration")
	require.NotNil(t, r)
	t.Cleanup(func() { _ = r.Close() })

	assert.Equal(t, []string{"orders", "profile"}, r.Names())

	cfg, ok := r.Config("orders")
	require.True(t, ok)
	assert.True(t, cfg.CustomExecutor)
	assert.Equal(t, int64(config.DefaultMaxSize), cfg.MaxSize)

	_, err = Sync[string](r, "broken")
	assert.ErrorIs(t, err, ErrUnconfigured)
}

func TestNew_RejectsDuplicateNames(t *testing.T) {
	_, err := New([]config.CacheConfig{{Name: "a"}, {Name: "a"}})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestSync_BuiltOnce(t *testing.T) {
	r := newRegistry(t)

	var wg sync.WaitGroup
	got := make([]*cache.Instance[string], 8)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := Sync[string](r, "profile")
			assert.NoError(t, err)
			got[i] = c
		}()
	}
	wg.Wait()

	for _, c := range got[1:] {
		assert.Same(t, got[0], c)
	}
	assert.Equal(t, "profile", got[0].Name())
}

func TestSync_Unconfigured(t *testing.T) {
	r := newRegistry(t)
	_, err := Sync[string](r, "missing")
	assert.ErrorIs(t, err, ErrUnconfigured)
}

func TestSync_TypeMismatch(t *testing.T) {
	r := newRegistry(t)

	_, err := Sync[string](r, "profile")
	require.NoError(t, err)

	_, err = Sync[int](r, "profile")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Async[string](r, "profile")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestTiered_RequiresRedis(t *testing.T) {
	r := newRegistry(t)
	_, err := Tiered[string](r, "profile")
	assert.ErrorIs(t, err, ErrNoRemote)
}

func TestClose(t *testing.T) {
	r, err := New([]config.CacheConfig{
		{Name: "a", MaxSize: 10},
		{Name: "b", MaxSize: 10, CustomExecutor: true},
	})
	require.NoError(t, err)

	a, err := Sync[int](r, "a")
	require.NoError(t, err)
	b, err := Async[int](r, "b")
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "idempotent")

	assert.ErrorIs(t, a.Set(t.Context(), "k", 1), cache.ErrClosed)
	_, ok := b.GetIfPresent(t.Context(), "k")
	assert.False(t, ok)

	_, err = Sync[int](r, "a")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAccess_ProfileScenario(t *testing.T) {
	clock := fakeclock.New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	r, err := FromViper(loadViper(t, `
caching:
  profile:
    refresh-duration: 5s
    expire-duration: 60s
    max-size: 100
`), WithClock(clock), WithExecutor(cache.GoExecutor{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	profiles, err := Access[string](r, "profile")
	require.NoError(t, err)

	var calls atomic.Int32
	loader := cache.Loader[string](func(context.Context, string) *future.Future[string] {
		if calls.Add(1) == 1 {
			return future.Resolved("A")
		}
		return future.Resolved("B")
	})
	ctx := t.Context()
	get := func() string {
		p, err := gate.Resolve(ctx, gate.Static(gate.Open)).Await(ctx)
		require.NoError(t, err)
		v, err := profiles.Get(ctx, "acct-1", loader, p.Flags(false)).Await(ctx)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "A", get())

	clock.Advance(6 * time.Second)
	assert.Equal(t, "A", get())
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return get() == "B" }, time.Second, 5*time.Millisecond)

	// t=61s: still the cached "B", which starts another refresh.
	clock.Advance(55 * time.Second)
	assert.Equal(t, "B", get())
	require.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestAccessAsync_SharesLoads(t *testing.T) {
	r := newRegistry(t)
	orders, err := AccessAsync[int](r, "orders")
	require.NoError(t, err)

	release := future.New[int]()
	var calls atomic.Int32
	loader := cache.Loader[int](func(context.Context, string) *future.Future[int] {
		calls.Add(1)
		return release
	})

	a := orders.Get(t.Context(), "o-1", loader, access.Flags{})
	b := orders.Get(t.Context(), "o-1", loader, access.Flags{})
	release.Resolve(42)

	for _, f := range []*future.Future[int]{a, b} {
		v, err := f.Await(t.Context())
		require.NoError(t, err)
		assert.Equal(t, 42, v)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestMetricsHandler(t *testing.T) {
	r := newRegistry(t)
	c, err := Sync[string](r, "profile")
	require.NoError(t, err)
	_, _, _ = c.Get(t.Context(), "nope")

	rec := httptest.NewRecorder()
	r.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rawrstash_misses_total{cache="profile"} 1`)
}

func TestDefaultOptions(t *testing.T) {
	r := newRegistry(t, DefaultOptions()...)
	_, err := Sync[string](r, "orders")
	assert.NoError(t, err)
}
