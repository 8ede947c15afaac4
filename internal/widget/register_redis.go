package widget

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "widget:register:"

// RedisRegister implements Register against a Redis instance, for deployments
// where the widget host reads the snapshot from a shared Redis rather than
// the local SQLite file.
type RedisRegister struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisRegister connects to Redis at addr. Credentials may be empty.
func NewRedisRegister(addr, username, password string) *RedisRegister {
	return &RedisRegister{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Username: username,
			Password: password,
			DB:       0,
		}),
		timeout: 2 * time.Second,
	}
}

// Get implements Register.Get.
func (r *RedisRegister) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	val, err := r.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// Set implements Register.Set. Values never expire; the snapshot is
// overwritten on every recompute.
func (r *RedisRegister) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	return r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err()
}

// Ping checks if Redis is reachable. Used for health checks.
func (r *RedisRegister) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (r *RedisRegister) Close() error {
	return r.client.Close()
}
