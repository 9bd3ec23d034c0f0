package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/summary-memory/internal/model"
)

type entriesCacheKey struct{}

// WithEntriesCacheContext returns a new context carrying the given EntriesCache.
func WithEntriesCacheContext(ctx context.Context, c EntriesCache) context.Context {
	return context.WithValue(ctx, entriesCacheKey{}, c)
}

// EntriesCacheFromContext retrieves the EntriesCache from the context.
// Returns nil if none was set.
func EntriesCacheFromContext(ctx context.Context) EntriesCache {
	c, _ := ctx.Value(entriesCacheKey{}).(EntriesCache)
	return c
}

// CachedEntries holds the full memory entry list of one user.
type CachedEntries struct {
	Entries []model.MemoryEntry `json:"entries"`
}

// EntriesCache caches per-user memory entry lists between store reads.
// Get returns (nil, nil) on a miss. A ttl of zero means the cache default.
type EntriesCache interface {
	Available() bool
	Get(ctx context.Context, userID string) (*CachedEntries, error)
	Set(ctx context.Context, userID string, entries CachedEntries, ttl time.Duration) error
	Remove(ctx context.Context, userID string) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (EntriesCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
