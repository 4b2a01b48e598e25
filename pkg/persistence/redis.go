package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds options for RedisStore.
type RedisConfig struct {
	// Prefix is prepended to every Redis key (default "tokova:").
	Prefix string

	// TTL expires snapshots after the given duration. Zero keeps them forever.
	TTL time.Duration

	// Timeout bounds each Redis round trip (default 500ms).
	Timeout time.Duration
}

// RedisStore keeps snapshots in Redis. Each snapshot is a JSON string at
// <prefix>snapshot:<key>; the keys are indexed in the sorted set
// <prefix>snapshots with score 0 so the latest one is found lexically.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// NewRedisStore creates a RedisStore. The client is owned by the caller.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "tokova:"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}
	return &RedisStore{
		client:  client,
		prefix:  cfg.Prefix,
		ttl:     cfg.TTL,
		timeout: cfg.Timeout,
	}
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, key string, b Bucket) error {
	if err := validKey(key); err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}

	data, err := json.Marshal(b)
	if err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.snapshotKey(key), data, r.ttl)
	pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: 0, Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, sel Selector) (Bucket, error) {
	if err := selectorError(sel); err != nil {
		return Bucket{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := sel.Key
	if sel.Latest {
		keys, err := r.client.ZRevRangeByLex(ctx, r.indexKey(), &redis.ZRangeBy{
			Min:   "-",
			Max:   "+",
			Count: 1,
		}).Result()
		if err != nil {
			return Bucket{}, &Error{Op: "load", Err: err}
		}
		if len(keys) == 0 {
			return Bucket{}, &Error{Op: "load", Err: ErrSnapshotNotFound}
		}
		key = keys[0]
	}

	data, err := r.client.Get(ctx, r.snapshotKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Bucket{}, &Error{Op: "load", Key: key, Err: ErrSnapshotNotFound}
	}
	if err != nil {
		return Bucket{}, &Error{Op: "load", Key: key, Err: err}
	}

	return decode("load", key, data)
}

// Delete removes every snapshot and the index. Used by tests and admin tooling.
func (r *RedisStore) Delete(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	keys, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return &Error{Op: "delete", Err: err}
	}

	pipe := r.client.TxPipeline()
	for _, k := range keys {
		pipe.Del(ctx, r.snapshotKey(k))
	}
	pipe.Del(ctx, r.indexKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return &Error{Op: "delete", Err: err}
	}
	return nil
}

func (r *RedisStore) snapshotKey(key string) string {
	return r.prefix + "snapshot:" + key
}

func (r *RedisStore) indexKey() string {
	return r.prefix + "snapshots"
}
