package metrics

import (
	"context"
	"time"

	"github.com/chirino/summary-memory/internal/metrics"
	"github.com/chirino/summary-memory/internal/model"
	"github.com/chirino/summary-memory/internal/registry/store"
)

// Wrap returns an EntryStore that records StoreLatency for every operation.
func Wrap(inner store.EntryStore) store.EntryStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.EntryStore
}

func (m *metricsStore) ListEntries(ctx context.Context, userID string) ([]model.MemoryEntry, error) {
	defer metrics.ObserveStoreLatency("list_entries", time.Now())
	return m.inner.ListEntries(ctx, userID)
}

func (m *metricsStore) WriteEntry(ctx context.Context, req store.WriteEntryRequest) (*model.MemoryEntry, error) {
	defer metrics.ObserveStoreLatency("write_entry", time.Now())
	return m.inner.WriteEntry(ctx, req)
}
