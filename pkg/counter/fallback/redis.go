package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis. Counts live under a shared key
// prefix with native TTL expiry, so Purge is a no-op. Redis offers exactly
// the consistency the fallback tier promises: available, eventually
// consistent, last-writer-wins.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	// Addr is the host:port of the Redis server.
	Addr string

	// Password is the optional server password.
	Password string

	// DB is the logical database number.
	DB int

	// KeyPrefix namespaces all fallback keys. Default: "gatekeeper:fallback:"
	KeyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "gatekeeper:fallback:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisStore{client: client, prefix: cfg.KeyPrefix}, nil
}

// Get returns the current count for key.
func (r *RedisStore) Get(ctx context.Context, key string) (uint64, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Uint64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}
	return value, true, nil
}

// Set writes the count for key with the given time-to-live.
func (r *RedisStore) Set(ctx context.Context, key string, value uint64, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Purge is a no-op: Redis expires entries natively via TTL.
func (r *RedisStore) Purge(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
