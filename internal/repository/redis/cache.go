package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
	"github.com/Harsh-BH/Intelligenter/internal/repository"
)

var _ repository.Cache = (*redisCache)(nil)

const keyPrefix = "domain:"

type redisCache struct {
	client *goredis.Client
}

// NewRedisCache creates a Redis-backed cache of completed results.
func NewRedisCache(client *goredis.Client) repository.Cache {
	return &redisCache{client: client}
}

// Key returns the cache key of a domain.
func Key(name string) string {
	return keyPrefix + name
}

func (c *redisCache) Get(ctx context.Context, name string) (*domain.Result, bool, error) {
	raw, err := c.client.Get(ctx, Key(name)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get %s: %w", name, err)
	}

	var res domain.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("redis: decode %s: %w", name, err)
	}
	return &res, true, nil
}

func (c *redisCache) Set(ctx context.Context, name string, result *domain.Result, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: encode %s: %w", name, err)
	}
	if err := c.client.Set(ctx, Key(name), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", name, err)
	}
	return nil
}

func (c *redisCache) Delete(ctx context.Context, name string) error {
	if err := c.client.Del(ctx, Key(name)).Err(); err != nil {
		return fmt.Errorf("redis: delete %s: %w", name, err)
	}
	return nil
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
