package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fromYAML(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return v
}

func TestResolve_FullBlock(t *testing.T) {
	v := fromYAML(t, `
caching:
  profile:
    refresh-duration: 5s
    expire-duration: 60s
    max-size: 100
    custom-executor: true
    engine: lru
`)

	cfg, ok, err := Resolve(v, "profile")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, CacheConfig{
		Name:            "profile",
		RefreshDuration: 5 * time.Second,
		ExpireDuration:  60 * time.Second,
		MaxSize:         100,
		CustomExecutor:  true,
		Engine:          EngineLRU,
	}, cfg)
}

func TestResolve_Defaults(t *testing.T) {
	v := fromYAML(t, `
caching:
  orders:
    refresh-duration: 10s
`)

	cfg, ok, err := Resolve(v, "orders")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, int64(DefaultMaxSize), cfg.MaxSize)
	assert.False(t, cfg.CustomExecutor)
	assert.Equal(t, EngineRistretto, cfg.Engine)
	_, expires := cfg.ExpiresAfter()
	assert.False(t, expires)
}

func TestResolve_MalformedOptionalFieldsFallBack(t *testing.T) {
	v := fromYAML(t, `
caching:
  orders:
    refresh-duration: 10s
    expire-duration: soon
    max-size: lots
    custom-executor: maybe
    engine: btree
`)

	cfg, ok, err := Resolve(v, "orders")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, time.Duration(0), cfg.ExpireDuration)
	assert.Equal(t, int64(DefaultMaxSize), cfg.MaxSize)
	assert.False(t, cfg.CustomExecutor)
	assert.Equal(t, EngineRistretto, cfg.Engine)
}

func TestResolve_NegativeMaxSizeFallsBack(t *testing.T) {
	v := fromYAML(t, `
caching:
  orders:
    refresh-duration: 10s
    max-size: -5
`)

	cfg, _, err := Resolve(v, "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultMaxSize), cfg.MaxSize)
}

func TestResolve_Absent(t *testing.T) {
	v := fromYAML(t, `
caching:
  profile:
    refresh-duration: 5s
`)

	_, ok, err := Resolve(v, "nonexistent")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = Resolve(viper.New(), "profile")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolve_RefreshDurationRequired(t *testing.T) {
	v := fromYAML(t, `
caching:
  missing:
    max-size: 10
  garbage:
    refresh-duration: whenever
  negative:
    refresh-duration: -3s
`)

	_, ok, err := Resolve(v, "missing")
	assert.True(t, ok)
	require.ErrorIs(t, err, ErrMissingRefreshDuration)

	_, _, err = Resolve(v, "garbage")
	require.ErrorIs(t, err, ErrInvalidRefreshDuration)

	_, _, err = Resolve(v, "negative")
	require.ErrorIs(t, err, ErrInvalidRefreshDuration)
}

func TestResolve_NotATable(t *testing.T) {
	v := fromYAML(t, `
caching:
  profile: 5s
`)

	_, ok, err := Resolve(v, "profile")
	assert.True(t, ok)
	require.ErrorIs(t, err, ErrNotATable)
}

func TestResolve_InfiniteExpiry(t *testing.T) {
	v := fromYAML(t, `
caching:
  forever:
    refresh-duration: 0
    expire-duration: infinite
`)

	cfg, ok, err := Resolve(v, "forever")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, Infinite, cfg.ExpireDuration)
	_, expires := cfg.ExpiresAfter()
	assert.False(t, expires)
	_, refreshes := cfg.RefreshesAfter()
	assert.False(t, refreshes)
}

func TestResolveAll(t *testing.T) {
	v := fromYAML(t, `
caching:
  good:
    refresh-duration: 1s
  bad:
    max-size: 3
  oops: 3
`)

	cfgs, err := ResolveAll(v)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMissingRefreshDuration)
	require.ErrorIs(t, err, ErrNotATable)

	require.Len(t, cfgs, 1)
	assert.Equal(t, "good", cfgs[0].Name)
	assert.Equal(t, []string{"bad", "good", "oops"}, Names(v))
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "caches.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
caching:
  profile:
    refresh-duration: 1s
    max-size: 10
`), 0o600))

	t.Setenv("RAWRSTASH_CACHING_PROFILE_MAX_SIZE", "250")
	t.Setenv("RAWRSTASH_CACHING_SESSIONS_REFRESH_DURATION", "30 seconds")

	v, err := Load(WithFile(path))
	require.NoError(t, err)

	cfg, ok, err := Resolve(v, "profile")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Second, cfg.RefreshDuration)
	assert.Equal(t, int64(250), cfg.MaxSize)

	sessions, ok, err := Resolve(v, "sessions")
	require.NoError(t, err)
	require.True(t, ok, "a cache declared only through the environment is configured")
	assert.Equal(t, 30*time.Second, sessions.RefreshDuration)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(WithFile(filepath.Join(t.TempDir(), "nope.yaml")))
	require.Error(t, err)
}

func TestLoad_NoFileInSearchPath(t *testing.T) {
	v, err := Load(WithSearchPath(t.TempDir()))
	require.NoError(t, err)
	assert.Empty(t, Names(v))
}
