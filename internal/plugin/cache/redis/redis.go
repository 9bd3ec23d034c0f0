package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chirino/summary-memory/internal/config"
	registrycache "github.com/chirino/summary-memory/internal/registry/cache"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Minute

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.EntriesCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: SUMMARY_MEMORY_REDIS_URL is required")
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, cfg.CacheTTL)
}

// LoadFromURLWithTTL creates a cache from a Redis URL with an explicit default TTL.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.EntriesCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	return LoadFromOptionsWithTTL(ctx, opts, ttl)
}

// LoadFromOptionsWithTTL creates a cache from go-redis Options.
func LoadFromOptionsWithTTL(ctx context.Context, opts *goredis.Options, ttl time.Duration) (registrycache.EntriesCache, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisEntriesCache{client: client, ttl: ttl}, nil
}

type redisEntriesCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func entriesKey(userID string) string {
	return "summary-entries:" + userID
}

func (c *redisEntriesCache) Available() bool {
	return true
}

func (c *redisEntriesCache) Get(ctx context.Context, userID string) (*registrycache.CachedEntries, error) {
	data, err := c.client.Get(ctx, entriesKey(userID)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cached registrycache.CachedEntries
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (c *redisEntriesCache) Set(ctx context.Context, userID string, entries registrycache.CachedEntries, ttl time.Duration) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, entriesKey(userID), data, ttl).Err()
}

func (c *redisEntriesCache) Remove(ctx context.Context, userID string) error {
	return c.client.Del(ctx, entriesKey(userID)).Err()
}

// Close releases the client's connections.
func (c *redisEntriesCache) Close() error {
	return c.client.Close()
}

var _ registrycache.EntriesCache = (*redisEntriesCache)(nil)
