package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Redis-backed Cache[string] for computed-schedule JSON,
// shared between the API server and the worker. Keys expire server-side;
// Size is best-effort (DBSIZE counts the whole database).
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to the given Redis address.
func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return &RedisCache{client: rdb, ttl: ttl}
}

// Ping verifies the connection.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Get retrieves a value from the cache
func (r *RedisCache) Get(key string) (string, bool) {
	val, err := r.client.Get(context.Background(), key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

// Set stores a value in the cache
func (r *RedisCache) Set(key string, data string) {
	r.client.Set(context.Background(), key, data, r.ttl)
}

// Delete removes a key from the cache
func (r *RedisCache) Delete(key string) {
	r.client.Del(context.Background(), key)
}

// Size returns the number of keys in the backing database
func (r *RedisCache) Size() int {
	n, err := r.client.DBSize(context.Background()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Close releases the client connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
