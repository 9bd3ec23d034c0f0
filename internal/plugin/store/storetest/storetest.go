// Package storetest holds the behavior every EntryStore backend must share.
package storetest

import (
	"context"
	"fmt"
	"testing"

	registrystore "github.com/chirino/summary-memory/internal/registry/store"
	"github.com/chirino/summary-memory/internal/summary"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s against the EntryStore contract. Users are randomized per
// subtest so a shared database can be reused.
func Run(t *testing.T, s registrystore.EntryStore) {
	t.Helper()

	t.Run("WriteThenList", func(t *testing.T) {
		ctx := context.Background()
		user := "user-" + uuid.NewString()
		tokens := 12

		written, err := s.WriteEntry(ctx, registrystore.WriteEntryRequest{
			UserID: user, Key: summary.Key("convo", 1), Value: "first", TokenCount: &tokens,
		})
		require.NoError(t, err)
		assert.Equal(t, user, written.UserID)
		assert.False(t, written.UpdatedAt.IsZero())

		entries, err := s.ListEntries(ctx, user)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, summary.Key("convo", 1), entries[0].Key)
		assert.Equal(t, "first", entries[0].Value)
		require.NotNil(t, entries[0].TokenCount)
		assert.Equal(t, 12, *entries[0].TokenCount)
		assert.False(t, entries[0].UpdatedAt.IsZero())
	})

	t.Run("ListIsScopedToUser", func(t *testing.T) {
		ctx := context.Background()
		alice := "alice-" + uuid.NewString()
		bob := "bob-" + uuid.NewString()

		for i := 1; i <= 3; i++ {
			_, err := s.WriteEntry(ctx, registrystore.WriteEntryRequest{
				UserID: alice, Key: summary.Key("a", i), Value: fmt.Sprintf("a%d", i),
			})
			require.NoError(t, err)
		}
		_, err := s.WriteEntry(ctx, registrystore.WriteEntryRequest{UserID: bob, Key: summary.Key("a", 1), Value: "b1"})
		require.NoError(t, err)

		entries, err := s.ListEntries(ctx, alice)
		require.NoError(t, err)
		assert.Len(t, entries, 3)
		for _, e := range entries {
			assert.Equal(t, alice, e.UserID)
		}

		entries, err = s.ListEntries(ctx, "nobody-"+uuid.NewString())
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("DuplicateKeyConflicts", func(t *testing.T) {
		ctx := context.Background()
		user := "user-" + uuid.NewString()
		req := registrystore.WriteEntryRequest{UserID: user, Key: summary.Key("dup", 1), Value: "one"}

		_, err := s.WriteEntry(ctx, req)
		require.NoError(t, err)

		req.Value = "two"
		_, err = s.WriteEntry(ctx, req)
		var conflict *registrystore.ConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, req.Key, conflict.Key)

		entries, err := s.ListEntries(ctx, user)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "one", entries[0].Value)
	})

	t.Run("RejectsInvalidRequest", func(t *testing.T) {
		_, err := s.WriteEntry(context.Background(), registrystore.WriteEntryRequest{Key: "k", Value: "v"})
		var validation *registrystore.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "userId", validation.Field)
	})

	t.Run("DrivesSummaryManager", func(t *testing.T) {
		ctx := context.Background()
		user := "user-" + uuid.NewString()
		cadence := 1.0
		cfg := &summary.MemoryConfig{SummaryCadence: &cadence}

		m := summary.New(s, summary.Options{UserID: user, Config: cfg, ConversationID: "Sample-Convo"})
		require.True(t, m.PersistSummary(ctx, summary.PersistRequest{Summary: "one"}).Wrote())
		require.True(t, m.PersistSummary(ctx, summary.PersistRequest{Summary: "two"}).Wrote())

		fresh := summary.New(s, summary.Options{UserID: user, Config: cfg, ConversationID: "Sample-Convo"})
		msg := fresh.LatestSummaryMessage(ctx, "")
		require.NotNil(t, msg)
		assert.Equal(t, "convo-summary-sample-convo-2", msg.MessageID)
		assert.Equal(t, "two", msg.Summary)

		// A stale manager that missed a concurrent write collides on the next index.
		stale := summary.New(s, summary.Options{UserID: user, Config: cfg, ConversationID: "Sample-Convo"})
		stale.EnsureLoaded(ctx, "")
		_, err := s.WriteEntry(ctx, registrystore.WriteEntryRequest{UserID: user, Key: summary.Key("Sample-Convo", 3), Value: "three"})
		require.NoError(t, err)
		res := stale.PersistSummary(ctx, summary.PersistRequest{Summary: "four"})
		assert.Equal(t, summary.PersistFailed, res.Status)
		var conflict *registrystore.ConflictError
		assert.ErrorAs(t, res.Err, &conflict)
	})
}
