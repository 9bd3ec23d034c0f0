// Package summary decides which generated conversation summaries become
// durable memory entries, under which keys, and rebuilds that bookkeeping
// from the entry store after a cold start.
//
// A Manager is owned by a single caller at a time: it has no locking, and
// store calls are its only suspension points. Races between managers working
// on the same (user, conversation) are detected by the store, which rejects
// duplicate keys with *store.ConflictError.
package summary

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/chirino/summary-memory/internal/metrics"
	"github.com/chirino/summary-memory/internal/model"
	registrystore "github.com/chirino/summary-memory/internal/registry/store"
)

// IndexedEntry is a memory entry with its parsed storage index (0 when the
// key carries none).
type IndexedEntry struct {
	model.MemoryEntry
	Index int `json:"index"`
}

// SummaryMessage is the most recent persisted summary, shaped for prompt reinjection.
type SummaryMessage struct {
	MessageID         string `json:"messageId"`
	Summary           string `json:"summary"`
	SummaryTokenCount *int   `json:"summaryTokenCount,omitempty"`
	TokenCount        int    `json:"tokenCount"`
}

// PersistRequest is one generation attempt for a conversation.
type PersistRequest struct {
	// ConversationID defaults to the manager's active conversation.
	ConversationID string
	Summary        string
	TokenCount     *int
	// Attempt, when positive, is the caller's own 1-based generation counter
	// and replaces the session counter for this call. Callers that do not keep
	// a manager alive between generations use it to keep cadence aligned.
	Attempt int
}

// Options configure a Manager.
type Options struct {
	UserID string
	// Config is the account memory policy; nil disables the manager.
	Config *MemoryConfig
	// Personalization disables the manager only when explicitly false.
	Personalization *bool
	ConversationID  string
	Logger          *log.Logger
}

// StateSnapshot is a copy of a manager's session state.
type StateSnapshot struct {
	ConversationID       string
	LoadedConversationID *string
	CachedCount          int
	PersistedCount       int
	GeneratedCount       int
	LastPersistedValue   *string
}

type sessionState struct {
	conversationID string
	// loadedConversationID is nil when nothing is loaded or the cache was invalidated.
	loadedConversationID *string
	// countersFor is the conversation the counters below describe; it outlives
	// cache invalidation so counters never carry over to another conversation.
	countersFor        string
	cached             []IndexedEntry
	persistedCount     int
	generatedCount     int
	lastPersistedValue *string
}

func (s *sessionState) reset() {
	s.cached = nil
	s.countersFor = ""
	s.persistedCount = 0
	s.generatedCount = 0
	s.lastPersistedValue = nil
}

// Manager applies the cadence and dedupe policy for one user's conversation summaries.
type Manager struct {
	store   registrystore.EntryStore
	userID  string
	policy  Policy
	enabled bool
	logger  *log.Logger
	state   sessionState
}

// New creates a Manager. The policy is resolved once here.
func New(store registrystore.EntryStore, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = log.With("component", "summary-memory")
	}
	enabled := strings.TrimSpace(opts.UserID) != "" &&
		opts.Config != nil && !opts.Config.Disabled &&
		(opts.Personalization == nil || *opts.Personalization) &&
		store != nil
	return &Manager{
		store:   store,
		userID:  opts.UserID,
		policy:  ResolvePolicy(opts.Config),
		enabled: enabled,
		logger:  logger,
		state:   sessionState{conversationID: opts.ConversationID},
	}
}

// Enabled reports whether the manager reads or writes the store at all.
func (m *Manager) Enabled() bool { return m.enabled }

// Policy returns the effective persistence policy.
func (m *Manager) Policy() Policy { return m.policy }

// ConversationID returns the active conversation.
func (m *Manager) ConversationID() string { return m.state.conversationID }

// State returns a copy of the session state.
func (m *Manager) State() StateSnapshot {
	snap := StateSnapshot{
		ConversationID: m.state.conversationID,
		CachedCount:    len(m.state.cached),
		PersistedCount: m.state.persistedCount,
		GeneratedCount: m.state.generatedCount,
	}
	if m.state.loadedConversationID != nil {
		v := *m.state.loadedConversationID
		snap.LoadedConversationID = &v
	}
	if m.state.lastPersistedValue != nil {
		v := *m.state.lastPersistedValue
		snap.LastPersistedValue = &v
	}
	return snap
}

// SetConversation binds the manager to id. Switching to a different id
// discards all session state; an empty id is ignored.
func (m *Manager) SetConversation(id string) {
	if id == "" || id == m.state.conversationID {
		return
	}
	m.state.conversationID = id
	m.state.reset()
	m.state.loadedConversationID = nil
}

func (m *Manager) resolve(conversationID string) string {
	if conversationID != "" {
		return conversationID
	}
	return m.state.conversationID
}

// EnsureLoaded returns the persisted summaries of a conversation (the active
// one when conversationID is empty) ordered by storage index, reading the
// store only when the session state does not already hold them.
func (m *Manager) EnsureLoaded(ctx context.Context, conversationID string) LoadResult {
	if !m.enabled {
		return LoadResult{Status: LoadDisabled}
	}
	target := m.resolve(conversationID)
	if target == "" {
		return LoadResult{Status: LoadDisabled}
	}

	loaded := m.state.loadedConversationID
	if (loaded != nil && *loaded != target) || (m.state.countersFor != "" && m.state.countersFor != target) {
		m.state.reset()
		m.state.loadedConversationID = nil
		loaded = nil
	}
	if loaded != nil && len(m.state.cached) > 0 {
		return LoadResult{Status: LoadCacheHit, Entries: slices.Clone(m.state.cached)}
	}

	all, err := m.store.ListEntries(ctx, m.userID)
	if err != nil {
		m.logger.Error("Failed to load conversation summaries; continuing without memory",
			"user", m.userID, "conversation", target, "err", err)
		metrics.RecordLoadFailure()
		m.state.reset()
		m.state.loadedConversationID = &target
		m.state.countersFor = target
		return LoadResult{Status: LoadFailed, Err: err}
	}

	prefix := Prefix(target)
	entries := make([]IndexedEntry, 0, len(all))
	for _, e := range all {
		if !HasPrefix(e.Key, prefix) {
			continue
		}
		idx, _ := ExtractIndex(e.Key)
		entries = append(entries, IndexedEntry{MemoryEntry: e, Index: idx})
	}
	slices.SortStableFunc(entries, func(a, b IndexedEntry) int {
		if c := cmp.Compare(a.Index, b.Index); c != 0 {
			return c
		}
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})

	m.state.loadedConversationID = &target
	m.state.countersFor = target
	m.state.cached = entries
	m.state.persistedCount = len(entries)
	m.state.generatedCount = max(m.state.generatedCount, m.state.persistedCount)
	if len(entries) > 0 {
		v := entries[len(entries)-1].Value
		m.state.lastPersistedValue = &v
	} else {
		m.state.lastPersistedValue = nil
	}
	m.logger.Debug("Loaded conversation summaries", "conversation", target, "count", len(entries))
	return LoadResult{Status: Loaded, Entries: slices.Clone(entries)}
}

// LatestSummaryMessage returns the highest-index persisted summary of a
// conversation, or nil when there is none or it is blank.
func (m *Manager) LatestSummaryMessage(ctx context.Context, conversationID string) *SummaryMessage {
	res := m.EnsureLoaded(ctx, conversationID)
	if len(res.Entries) == 0 {
		return nil
	}
	latest := res.Entries[len(res.Entries)-1]
	text := strings.TrimSpace(latest.Value)
	if text == "" {
		return nil
	}

	tokenCount := utf8.RuneCountInString(text)
	if latest.TokenCount != nil {
		tokenCount = *latest.TokenCount
	}
	m.state.lastPersistedValue = &text
	return &SummaryMessage{
		MessageID:         Key(m.resolve(conversationID), latest.Index),
		Summary:           text,
		SummaryTokenCount: latest.TokenCount,
		TokenCount:        tokenCount,
	}
}

// ShouldPersist reports whether the attempt-th generation attempt with
// candidate text is written. The first attempt is always eligible; after
// that only multiples of the cadence are. Exact repeats of the last persisted
// value never are.
func (m *Manager) ShouldPersist(attempt int, candidate string) bool {
	if !m.enabled || candidate == "" {
		return false
	}
	if m.isDuplicate(candidate) {
		return false
	}
	if m.policy.Cadence <= 1 || attempt == 1 {
		return true
	}
	return attempt%m.policy.Cadence == 0
}

func (m *Manager) isDuplicate(candidate string) bool {
	return m.state.lastPersistedValue != nil && *m.state.lastPersistedValue == candidate
}

// PersistSummary records one generation attempt and writes the summary when
// the policy allows it. Store failures are logged and reported through the
// result; they never surface as a Go error. A failed write still consumes the
// attempt.
func (m *Manager) PersistSummary(ctx context.Context, req PersistRequest) PersistResult {
	result := m.persist(ctx, req)
	metrics.RecordDecision(result.Status.String())
	return result
}

func (m *Manager) persist(ctx context.Context, req PersistRequest) PersistResult {
	if !m.enabled {
		return PersistResult{Status: PersistDisabled}
	}
	target := m.resolve(req.ConversationID)
	if target == "" {
		return PersistResult{Status: PersistSkippedNoConversation}
	}
	text := strings.TrimSpace(req.Summary)
	if text == "" {
		return PersistResult{Status: PersistSkippedEmpty}
	}

	m.EnsureLoaded(ctx, target)

	attempt := m.state.generatedCount + 1
	if req.Attempt > 0 {
		attempt = req.Attempt
	}
	m.state.generatedCount = max(attempt, m.state.persistedCount)

	value := truncate(text, m.policy.CharLimit)
	if !m.ShouldPersist(attempt, value) {
		status := PersistSkippedCadence
		if m.isDuplicate(value) {
			status = PersistSkippedDuplicate
		}
		return PersistResult{Status: status, Attempt: attempt}
	}

	storageIndex := m.state.persistedCount + 1
	key := Key(target, storageIndex)
	_, err := m.store.WriteEntry(ctx, registrystore.WriteEntryRequest{
		UserID:     m.userID,
		Key:        key,
		Value:      value,
		TokenCount: req.TokenCount,
	})
	if err != nil {
		m.logger.Error("Failed to persist conversation summary",
			"user", m.userID, "conversation", target, "key", key, "attempt", attempt, "err", err)
		return PersistResult{Status: PersistFailed, Attempt: attempt, Key: key, Err: err}
	}

	m.state.persistedCount = storageIndex
	m.state.generatedCount = max(m.state.generatedCount, m.state.persistedCount)
	m.state.lastPersistedValue = &value
	m.state.loadedConversationID = nil
	m.logger.Debug("Persisted conversation summary", "conversation", target, "key", key, "attempt", attempt)
	return PersistResult{Status: Persisted, Attempt: attempt, Key: key}
}
