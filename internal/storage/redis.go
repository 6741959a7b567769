package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is the durable KV implementation. Keys carry no implicit expiry
// unless the store is constructed with a TTL, in which case every Set
// refreshes it — that mode backs the ephemeral tab-scoped namespaces.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to the given address and verifies the connection.
func NewRedis(addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("storage: redis connection failed: %w", err)
	}

	return &Redis{client: client}, nil
}

// NewRedisFromClient wraps an existing client without pinging it.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// WithTTL returns a view of the store whose writes expire after ttl.
func (r *Redis) WithTTL(ttl time.Duration) *Redis {
	return &Redis{client: r.client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value string) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("storage: redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("storage: redis del %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (r *Redis) Client() *redis.Client {
	return r.client
}
