// Package local registers an in-process entry cache backed by ristretto.
package local

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/chirino/summary-memory/internal/config"
	"github.com/chirino/summary-memory/internal/model"
	registrycache "github.com/chirino/summary-memory/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
)

const defaultTTL = 5 * time.Minute

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registrycache.EntriesCache, error) {
			cfg := config.FromContext(ctx)
			if cfg == nil {
				return New(0, 0)
			}
			return New(cfg.CacheLocalMaxEntries, cfg.CacheTTL)
		},
	})
}

// Cache holds per-user entry lists in memory. Each user costs one unit, so
// maxUsers bounds how many lists are retained.
type Cache struct {
	c   *ristretto.Cache[string, []model.MemoryEntry]
	ttl time.Duration
}

// New creates a local cache. Non-positive arguments fall back to defaults.
func New(maxUsers int64, ttl time.Duration) (*Cache, error) {
	if maxUsers <= 0 {
		maxUsers = config.DefaultConfig().CacheLocalMaxEntries
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []model.MemoryEntry]{
		NumCounters: maxUsers * 10,
		MaxCost:     maxUsers,
		BufferItems: 64,
		// Cost counts users, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	return &Cache{c: c, ttl: ttl}, nil
}

func (l *Cache) Available() bool { return true }

func (l *Cache) Get(_ context.Context, userID string) (*registrycache.CachedEntries, error) {
	entries, ok := l.c.Get(userID)
	if !ok {
		return nil, nil
	}
	return &registrycache.CachedEntries{Entries: slices.Clone(entries)}, nil
}

// Set stores entries and waits for the write buffer to drain so the value is
// visible to the next Get.
func (l *Cache) Set(_ context.Context, userID string, entries registrycache.CachedEntries, ttl time.Duration) error {
	if ttl == 0 {
		ttl = l.ttl
	}
	l.c.SetWithTTL(userID, slices.Clone(entries.Entries), 1, ttl)
	l.c.Wait()
	return nil
}

func (l *Cache) Remove(_ context.Context, userID string) error {
	l.c.Del(userID)
	return nil
}

// Close stops the cache's background goroutines.
func (l *Cache) Close() { l.c.Close() }

var _ registrycache.EntriesCache = (*Cache)(nil)
