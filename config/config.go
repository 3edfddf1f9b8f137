// Package config resolves the tuning parameters of named caches from a
// hierarchical configuration tree.
//
// Every cache lives under its own block:
//
//	caching:
//	  profile:
//	    refresh-duration: 5s
//	    expire-duration: 60s
//	    max-size: 100
//	    custom-executor: true
//
// Only refresh-duration is required. The other fields fall back to their
// defaults when they are missing or cannot be parsed.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Root is the configuration path under which named caches are declared.
const Root = "caching"

// DefaultMaxSize is used when max-size is absent or malformed.
const DefaultMaxSize = 1500

// Configuration keys inside a caching.<name> block.
const (
	KeyRefreshDuration = "refresh-duration"
	KeyExpireDuration  = "expire-duration"
	KeyMaxSize         = "max-size"
	KeyCustomExecutor  = "custom-executor"
	KeyEngine          = "engine"
)

// Engine selects the in-process data structure backing a cache.
type Engine string

const (
	// EngineRistretto is a sampled-LFU cache with TinyLFU admission. Default.
	EngineRistretto Engine = "ristretto"
	// EngineLRU is an exact least-recently-used cache.
	EngineLRU Engine = "lru"
)

var (
	// ErrMissingRefreshDuration is returned when a configured cache has no
	// refresh-duration.
	ErrMissingRefreshDuration = errors.New("config: refresh-duration is required")

	// ErrInvalidRefreshDuration is returned when refresh-duration cannot be
	// parsed or is negative.
	ErrInvalidRefreshDuration = errors.New("config: invalid refresh-duration")

	// ErrNotATable is returned when caching.<name> holds a scalar instead of
	// a block of settings.
	ErrNotATable = errors.New("config: cache entry is not a table")
)

// CacheConfig holds the resolved parameters of one named cache. It is
// immutable once resolved.
type CacheConfig struct {
	Name string

	// RefreshDuration is the entry age after which an access triggers a
	// background reload. Zero disables refresh-ahead.
	RefreshDuration time.Duration

	// ExpireDuration is the entry age after which it is dropped. Zero,
	// negative and Infinite all mean "never expire".
	ExpireDuration time.Duration

	// MaxSize bounds the number of entries.
	MaxSize int64

	// CustomExecutor requests a dedicated background worker pool.
	CustomExecutor bool

	Engine Engine
}

// ExpiresAfter returns the time-based expiry, and false when entries never
// expire by time.
func (c CacheConfig) ExpiresAfter() (time.Duration, bool) {
	if c.ExpireDuration <= 0 || c.ExpireDuration == Infinite {
		return 0, false
	}
	return c.ExpireDuration, true
}

// RefreshesAfter returns the refresh-ahead age, and false when refresh-ahead
// is disabled.
func (c CacheConfig) RefreshesAfter() (time.Duration, bool) {
	if c.RefreshDuration <= 0 || c.RefreshDuration == Infinite {
		return 0, false
	}
	return c.RefreshDuration, true
}

// Path returns the configuration path of the named cache.
func Path(name string) string {
	return Root + "." + name
}

// Resolve reads the caching.<name> block from v. It returns ok=false and a
// nil error when the block does not exist: an unconfigured cache is not an
// error, it simply does not exist.
func Resolve(v *viper.Viper, name string) (CacheConfig, bool, error) {
	path := Path(name)
	if !v.IsSet(path) && !v.IsSet(path+"."+KeyRefreshDuration) {
		return CacheConfig{}, false, nil
	}
	if raw := v.Get(path); raw != nil {
		if _, err := cast.ToStringMapE(raw); err != nil {
			return CacheConfig{}, true, fmt.Errorf("cache %q: %w", name, ErrNotATable)
		}
	}

	rawRefresh := v.Get(path + "." + KeyRefreshDuration)
	if rawRefresh == nil {
		return CacheConfig{}, true, fmt.Errorf("cache %q: %w", name, ErrMissingRefreshDuration)
	}
	refresh, err := ParseDuration(rawRefresh)
	if err != nil {
		return CacheConfig{}, true, fmt.Errorf("cache %q: %w: %w", name, ErrInvalidRefreshDuration, err)
	}
	if refresh < 0 {
		return CacheConfig{}, true, fmt.Errorf("cache %q: %w: negative value %s", name, ErrInvalidRefreshDuration, refresh)
	}

	return CacheConfig{
		Name:            name,
		RefreshDuration: refresh,
		ExpireDuration:  valueOr(v.Get(path+"."+KeyExpireDuration), ParseDuration, 0),
		MaxSize:         valueOr(v.Get(path+"."+KeyMaxSize), parseSize, DefaultMaxSize),
		CustomExecutor:  valueOr(v.Get(path+"."+KeyCustomExecutor), cast.ToBoolE, false),
		Engine:          valueOr(v.Get(path+"."+KeyEngine), parseEngine, EngineRistretto),
	}, true, nil
}

// ResolveAll resolves every cache declared under caching. Caches that fail
// to resolve are left out of the result and reported together in the
// returned error.
func ResolveAll(v *viper.Viper) ([]CacheConfig, error) {
	names := Names(v)

	var errs *multierror.Error
	out := make([]CacheConfig, 0, len(names))
	for _, name := range names {
		cfg, ok, err := Resolve(v, name)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if ok {
			out = append(out, cfg)
		}
	}
	return out, errs.ErrorOrNil()
}

// Names lists the cache names declared under caching, sorted.
func Names(v *viper.Viper) []string {
	block := v.GetStringMap(Root)
	names := make([]string, 0, len(block))
	for name := range block {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// valueOr parses raw and returns def when raw is absent or malformed.
func valueOr[T any](raw any, parse func(any) (T, error), def T) T {
	if raw == nil {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func parseSize(raw any) (int64, error) {
	n, err := cast.ToInt64E(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %d", n)
	}
	return n, nil
}

func parseEngine(raw any) (Engine, error) {
	s, err := cast.ToStringE(raw)
	if err != nil {
		return "", err
	}
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case EngineRistretto, EngineLRU:
		return e, nil
	default:
		return "", fmt.Errorf("unknown engine %q", s)
	}
}
