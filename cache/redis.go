package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Keksclan/goRawrStash/breaker"
)

// Redis is a remote cache tier implementing [Store]. Values are encoded
// with CBOR under "rawrstash:<cache>:<key>".
//
// Reads fail soft: an unreachable server or an open breaker is a miss.
// Writes report their error so the caller can log and drop it. A circuit
// breaker stops calling Redis after repeated failures.
type Redis[V any] struct {
	rdb    redis.UniversalClient
	name   string
	ttl    time.Duration
	brk    *breaker.Breaker
	logger *slog.Logger
}

var _ Store[int] = (*Redis[int])(nil)

// RedisOption configures a Redis store.
type RedisOption func(*redisOptions)

type redisOptions struct {
	ttl     time.Duration
	breaker breaker.Config
	logger  *slog.Logger
}

// WithRedisTTL sets the expiry of remote entries. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(o *redisOptions) { o.ttl = ttl }
}

// WithRedisBreaker sets the breaker parameters.
func WithRedisBreaker(cfg breaker.Config) RedisOption {
	return func(o *redisOptions) { o.breaker = cfg }
}

// WithRedisLogger sets the logger.
func WithRedisLogger(l *slog.Logger) RedisOption {
	return func(o *redisOptions) { o.logger = l }
}

// NewRedisClient dials a single Redis server.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedis creates the remote tier of the named cache on rdb. The caller
// keeps ownership of rdb.
func NewRedis[V any](rdb redis.UniversalClient, name string, opts ...RedisOption) *Redis[V] {
	o := redisOptions{
		breaker: breaker.DefaultConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.With(slog.String("cache", name), slog.String("tier", "redis"))
	cfg := o.breaker
	user := cfg.OnStateChange
	cfg.OnStateChange = func(from, to breaker.State) {
		logger.Warn("cache: redis breaker changed state",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		if user != nil {
			user(from, to)
		}
	}

	return &Redis[V]{
		rdb:    rdb,
		name:   name,
		ttl:    o.ttl,
		brk:    breaker.New(cfg),
		logger: logger,
	}
}

// Name returns the cache name.
func (r *Redis[V]) Name() string { return r.name }

func (r *Redis[V]) key(k string) string {
	return "rawrstash:" + r.name + ":" + k
}

// Get retrieves and decodes the value for key. Connection failures and an
// open breaker are reported as a miss; a value that cannot be decoded is an
// error.
func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !r.brk.Allow() {
		return zero, false, nil
	}

	raw, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		r.brk.OnSuccess()
		return zero, false, nil
	case err != nil:
		r.brk.OnFailure()
		r.logger.Debug("cache: redis read failed", slog.String("key", key), slog.Any("error", err))
		return zero, false, nil
	}
	r.brk.OnSuccess()

	var v V
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return v, true, nil
}

// Set encodes and stores val under key.
func (r *Redis[V]) Set(ctx context.Context, key string, val V) error {
	raw, err := cbor.Marshal(val)
	if err != nil {
		return fmt.Errorf("cache: encode %q: %w", key, err)
	}
	err = r.brk.Do(func() error {
		return r.rdb.Set(ctx, r.key(key), raw, r.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("cache: redis set %q: %w", key, err)
	}
	return nil
}

// Invalidate deletes key.
func (r *Redis[V]) Invalidate(ctx context.Context, key string) error {
	err := r.brk.Do(func() error {
		return r.rdb.Del(ctx, r.key(key)).Err()
	})
	if err != nil {
		return fmt.Errorf("cache: redis del %q: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *Redis[V]) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Breaker exposes the breaker guarding the connection.
func (r *Redis[V]) Breaker() *breaker.Breaker { return r.brk }
