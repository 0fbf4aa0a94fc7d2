package timezone

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ZoneCache remembers resolved zone names. An empty zone records a miss.
type ZoneCache interface {
	Get(ctx context.Context, location string) (zone string, ok bool, err error)
	Set(ctx context.Context, location, zone string) error
}

const (
	cacheKeyPrefix = "outreach:tz:"
	missMarker     = "-"
)

// RedisCache shares resolved zones between processes.
type RedisCache struct {
	Client redis.UniversalClient
	TTL    time.Duration
}

func (c *RedisCache) Get(ctx context.Context, location string) (string, bool, error) {
	v, err := c.Client.Get(ctx, cacheKeyPrefix+location).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "failed to read timezone cache")
	}
	if v == missMarker {
		return "", true, nil
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, location, zone string) error {
	if zone == "" {
		zone = missMarker
	}
	if err := c.Client.Set(ctx, cacheKeyPrefix+location, zone, c.TTL).Err(); err != nil {
		return errors.Wrap(err, "failed to write timezone cache")
	}
	return nil
}

// MemoryCache is a process-local cache without expiry.
type MemoryCache struct {
	m sync.Map
}

func (c *MemoryCache) Get(_ context.Context, location string) (string, bool, error) {
	v, ok := c.m.Load(location)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (c *MemoryCache) Set(_ context.Context, location, zone string) error {
	c.m.Store(location, zone)
	return nil
}
