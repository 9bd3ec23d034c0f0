// Package cached layers an EntriesCache in front of an EntryStore.
package cached

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chirino/summary-memory/internal/config"
	"github.com/chirino/summary-memory/internal/metrics"
	"github.com/chirino/summary-memory/internal/model"
	registrycache "github.com/chirino/summary-memory/internal/registry/cache"
	registrystore "github.com/chirino/summary-memory/internal/registry/store"
)

// Wrap returns inner unchanged when cache is nil or unavailable. Cache
// failures are logged and never fail a store call.
func Wrap(inner registrystore.EntryStore, cache registrycache.EntriesCache, ttl time.Duration) registrystore.EntryStore {
	if cache == nil || !cache.Available() {
		return inner
	}
	return &cachedStore{inner: inner, cache: cache, ttl: ttl}
}

// WrapFromContext wraps inner with the cache carried by ctx (see
// registrycache.WithEntriesCacheContext), using the configured cache TTL.
func WrapFromContext(ctx context.Context, inner registrystore.EntryStore) registrystore.EntryStore {
	var ttl time.Duration
	if cfg := config.FromContext(ctx); cfg != nil {
		ttl = cfg.CacheTTL
	}
	return Wrap(inner, registrycache.EntriesCacheFromContext(ctx), ttl)
}

type cachedStore struct {
	inner registrystore.EntryStore
	cache registrycache.EntriesCache
	ttl   time.Duration
}

func (c *cachedStore) ListEntries(ctx context.Context, userID string) ([]model.MemoryEntry, error) {
	hit, err := c.cache.Get(ctx, userID)
	if err != nil {
		log.Warn("Entry cache read failed", "user", userID, "err", err)
	}
	if hit != nil {
		metrics.RecordCacheHit()
		return slices.Clone(hit.Entries), nil
	}
	metrics.RecordCacheMiss()

	entries, err := c.inner.ListEntries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, userID, registrycache.CachedEntries{Entries: slices.Clone(entries)}, c.ttl); err != nil {
		log.Warn("Entry cache write failed", "user", userID, "err", err)
	}
	return entries, nil
}

func (c *cachedStore) WriteEntry(ctx context.Context, req registrystore.WriteEntryRequest) (*model.MemoryEntry, error) {
	entry, err := c.inner.WriteEntry(ctx, req)
	var conflict *registrystore.ConflictError
	if err == nil || errors.As(err, &conflict) {
		// A conflict means another writer changed the list this cache holds.
		if rmErr := c.cache.Remove(ctx, req.UserID); rmErr != nil {
			log.Warn("Entry cache invalidation failed", "user", req.UserID, "err", rmErr)
		}
	}
	return entry, err
}
