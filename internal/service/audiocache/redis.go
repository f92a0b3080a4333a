package audiocache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "voxlay:audio:"

// RedisCache implements Cache on Redis with native key expiry. Suitable when
// replay requests may land on a different instance than the one that
// synthesized the audio.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, audio []byte) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, redisKeyPrefix+token, audio, c.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set failed: %w", err)
	}
	return token, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, token string) ([]byte, error) {
	data, err := c.client.Get(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
