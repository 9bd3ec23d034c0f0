package cached

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chirino/summary-memory/internal/config"
	"github.com/chirino/summary-memory/internal/model"
	"github.com/chirino/summary-memory/internal/plugin/cache/local"
	registrycache "github.com/chirino/summary-memory/internal/registry/cache"
	registrystore "github.com/chirino/summary-memory/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	entries  map[string][]model.MemoryEntry
	lists    int
	writeErr error
}

func (s *countingStore) ListEntries(_ context.Context, userID string) ([]model.MemoryEntry, error) {
	s.lists++
	return append([]model.MemoryEntry(nil), s.entries[userID]...), nil
}

func (s *countingStore) WriteEntry(_ context.Context, req registrystore.WriteEntryRequest) (*model.MemoryEntry, error) {
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	e := model.MemoryEntry{UserID: req.UserID, Key: req.Key, Value: req.Value}
	s.entries[req.UserID] = append(s.entries[req.UserID], e)
	return &e, nil
}

type brokenCache struct{}

func (brokenCache) Available() bool { return true }
func (brokenCache) Get(context.Context, string) (*registrycache.CachedEntries, error) {
	return nil, errors.New("cache down")
}
func (brokenCache) Set(context.Context, string, registrycache.CachedEntries, time.Duration) error {
	return errors.New("cache down")
}
func (brokenCache) Remove(context.Context, string) error { return errors.New("cache down") }

func newLocal(t *testing.T) *local.Cache {
	t.Helper()
	c, err := local.New(100, time.Minute)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestWrap_ReturnsInnerWithoutCache(t *testing.T) {
	inner := &countingStore{entries: map[string][]model.MemoryEntry{}}
	assert.Same(t, registrystore.EntryStore(inner), Wrap(inner, nil, time.Minute))
}

func TestCachedStore_ServesRepeatListsFromCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{entries: map[string][]model.MemoryEntry{
		"u": {{UserID: "u", Key: "convo-summary-a-1", Value: "one"}},
	}}
	s := Wrap(inner, newLocal(t), time.Minute)

	first, err := s.ListEntries(ctx, "u")
	require.NoError(t, err)
	second, err := s.ListEntries(ctx, "u")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.lists)

	second[0].Value = "mutated"
	third, err := s.ListEntries(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, "one", third[0].Value)
}

func TestCachedStore_WriteInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{entries: map[string][]model.MemoryEntry{}}
	s := Wrap(inner, newLocal(t), time.Minute)

	_, err := s.ListEntries(ctx, "u")
	require.NoError(t, err)
	_, err = s.WriteEntry(ctx, registrystore.WriteEntryRequest{UserID: "u", Key: "k", Value: "v"})
	require.NoError(t, err)

	entries, err := s.ListEntries(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 2, inner.lists)
}

func TestCachedStore_ConflictInvalidates(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{entries: map[string][]model.MemoryEntry{}}
	s := Wrap(inner, newLocal(t), time.Minute)

	_, err := s.ListEntries(ctx, "u")
	require.NoError(t, err)

	inner.writeErr = &registrystore.ConflictError{UserID: "u", Key: "k"}
	_, err = s.WriteEntry(ctx, registrystore.WriteEntryRequest{UserID: "u", Key: "k", Value: "v"})
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)

	_, err = s.ListEntries(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.lists)
}

func TestCachedStore_OtherWriteErrorsKeepCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{entries: map[string][]model.MemoryEntry{}, writeErr: errors.New("boom")}
	s := Wrap(inner, newLocal(t), time.Minute)

	_, err := s.ListEntries(ctx, "u")
	require.NoError(t, err)
	_, err = s.WriteEntry(ctx, registrystore.WriteEntryRequest{UserID: "u", Key: "k", Value: "v"})
	require.EqualError(t, err, "boom")

	_, err = s.ListEntries(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.lists)
}

func TestCachedStore_CacheFailuresFallThrough(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{entries: map[string][]model.MemoryEntry{
		"u": {{UserID: "u", Key: "k", Value: "v"}},
	}}
	s := Wrap(inner, brokenCache{}, time.Minute)

	entries, err := s.ListEntries(ctx, "u")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = s.WriteEntry(ctx, registrystore.WriteEntryRequest{UserID: "u", Key: "k2", Value: "v2"})
	require.NoError(t, err)
}

func TestWrapFromContext(t *testing.T) {
	inner := &countingStore{entries: map[string][]model.MemoryEntry{}}
	assert.Same(t, registrystore.EntryStore(inner), WrapFromContext(context.Background(), inner))

	cfg := config.DefaultConfig()
	ctx := config.WithContext(context.Background(), &cfg)
	ctx = registrycache.WithEntriesCacheContext(ctx, newLocal(t))
	s := WrapFromContext(ctx, inner)

	cs, ok := s.(*cachedStore)
	require.True(t, ok)
	assert.Equal(t, cfg.CacheTTL, cs.ttl)

	_, err := s.ListEntries(ctx, "u")
	require.NoError(t, err)
	_, err = s.ListEntries(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.lists)
}
