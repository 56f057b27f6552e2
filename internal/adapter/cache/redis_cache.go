package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/athletix/exchange/internal/domain"
	"github.com/athletix/exchange/internal/port"
)

var _ port.Cache = (*RedisCache)(nil)

// RedisCache keeps rendered book depth with a TTL, invalidated on every book
// mutation.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, ttl: ttl}
}

func key(playerID string) string { return "book:" + playerID }

func (c *RedisCache) SetDepth(ctx context.Context, playerID string, d *domain.BookDepth) error {
	b, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(playerID), b, c.ttl).Err()
}

func (c *RedisCache) GetDepth(ctx context.Context, playerID string) (*domain.BookDepth, error) {
	b, err := c.client.Get(ctx, key(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var d domain.BookDepth
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *RedisCache) InvalidateDepth(ctx context.Context, playerID string) error {
	return c.client.Del(ctx, key(playerID)).Err()
}
