package noop

import (
	"context"
	"time"

	"github.com/chirino/summary-memory/internal/registry/cache"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.EntriesCache, error) {
			return &noopEntriesCache{}, nil
		},
	})
}

type noopEntriesCache struct{}

func (n *noopEntriesCache) Available() bool { return false }
func (n *noopEntriesCache) Get(_ context.Context, _ string) (*cache.CachedEntries, error) {
	return nil, nil
}
func (n *noopEntriesCache) Set(_ context.Context, _ string, _ cache.CachedEntries, _ time.Duration) error {
	return nil
}
func (n *noopEntriesCache) Remove(_ context.Context, _ string) error { return nil }

var _ cache.EntriesCache = (*noopEntriesCache)(nil)
