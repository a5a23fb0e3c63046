package templates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

const (
	KeyPrefix  = "template:"
	DefaultTTL = time.Hour
)

// Cache holds raw template source by template name.
type Cache interface {
	Get(ctx context.Context, name string) (content string, ok bool, err error)
	Set(ctx context.Context, name, content string, ttl time.Duration) error
}

func cacheKey(name string) string {
	return KeyPrefix + name
}

type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, name string) (string, bool, error) {
	content, err := c.client.Get(ctx, cacheKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", cacheKey(name), err)
	}
	return content, true, nil
}

func (c *RedisCache) Set(ctx context.Context, name, content string, ttl time.Duration) error {
	if err := c.client.Set(ctx, cacheKey(name), content, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", cacheKey(name), err)
	}
	return nil
}

// ConnectRedis parses url, connects and pings.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// MemoryCache keeps templates in process. Expired entries are reported as misses.
type MemoryCache struct {
	items *ttlcache.Cache[string, string]
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items: ttlcache.New[string, string](
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

func (c *MemoryCache) Get(ctx context.Context, name string) (string, bool, error) {
	item := c.items.Get(cacheKey(name))
	if item == nil || item.IsExpired() {
		return "", false, nil
	}
	return item.Value(), true, nil
}

func (c *MemoryCache) Set(ctx context.Context, name, content string, ttl time.Duration) error {
	c.items.Set(cacheKey(name), content, ttl)
	return nil
}
