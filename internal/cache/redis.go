package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	stash "github.com/eugener/stash/internal"
)

// scanCount is the COUNT hint passed to SCAN when walking the key space.
const scanCount = 500

// RedisOptions configures a Redis-backed store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key so several gateways can share one database.
	Prefix string
	// TTL is applied to every write. Zero means no expiry.
	TTL time.Duration
}

// Redis is a Redis-backed store. Unlike an L2 read-through cache it does not
// fail soft: connection errors surface to the caller wrapped in
// stash.ErrStoreUnavailable.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a new Redis-backed store.
func NewRedis(opts RedisOptions) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Redis{rdb: rdb, prefix: opts.Prefix, ttl: opts.TTL}
}

func (r *Redis) key(k string) string { return r.prefix + k }

// Get retrieves a value by key.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get: %w: %w", stash.ErrStoreUnavailable, err)
	}
	return val, true, nil
}

// Set stores a value with the configured TTL.
func (r *Redis) Set(ctx context.Context, key, val string) error {
	if err := r.rdb.Set(ctx, r.key(key), val, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w: %w", stash.ErrStoreUnavailable, err)
	}
	return nil
}

// Delete removes a value.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w: %w", stash.ErrStoreUnavailable, err)
	}
	return nil
}

// Purge removes every key under the configured prefix.
func (r *Redis) Purge(ctx context.Context) error {
	var batch []string
	err := r.scan(ctx, func(k string) error {
		batch = append(batch, k)
		if len(batch) < scanCount {
			return nil
		}
		err := r.rdb.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	})
	if err == nil && len(batch) > 0 {
		err = r.rdb.Del(ctx, batch...).Err()
	}
	if err != nil {
		return fmt.Errorf("redis purge: %w: %w", stash.ErrStoreUnavailable, err)
	}
	return nil
}

// Len counts the keys under the configured prefix. Redis expires keys on
// its own, so only live entries are counted.
func (r *Redis) Len(ctx context.Context) (int, error) {
	n := 0
	if err := r.scan(ctx, func(string) error { n++; return nil }); err != nil {
		return 0, fmt.Errorf("redis len: %w: %w", stash.ErrStoreUnavailable, err)
	}
	return n, nil
}

// globEscaper quotes the characters SCAN MATCH treats as pattern syntax.
var globEscaper = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

// matchPattern returns a SCAN MATCH pattern selecting exactly the keys that
// start with prefix.
func matchPattern(prefix string) string {
	return globEscaper.Replace(prefix) + "*"
}

func (r *Redis) scan(ctx context.Context, fn func(string) error) error {
	iter := r.rdb.Scan(ctx, 0, matchPattern(r.prefix), scanCount).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
