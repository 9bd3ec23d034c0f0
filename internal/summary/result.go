package summary

// LoadStatus classifies the outcome of EnsureLoaded.
type LoadStatus int

const (
	// LoadDisabled means the manager is disabled or no conversation could be resolved.
	LoadDisabled LoadStatus = iota
	// LoadCacheHit means entries were served from session state without a store read.
	LoadCacheHit
	// Loaded means entries were read from the store.
	Loaded
	// LoadFailed means the store read failed and the conversation is treated as empty.
	LoadFailed
)

func (s LoadStatus) String() string {
	switch s {
	case LoadDisabled:
		return "disabled"
	case LoadCacheHit:
		return "cache_hit"
	case Loaded:
		return "loaded"
	case LoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}

// LoadResult is returned by EnsureLoaded. Err is set only for LoadFailed.
type LoadResult struct {
	Status  LoadStatus
	Entries []IndexedEntry
	Err     error
}

// PersistStatus classifies the outcome of PersistSummary.
type PersistStatus int

const (
	PersistDisabled PersistStatus = iota
	PersistSkippedNoConversation
	PersistSkippedEmpty
	PersistSkippedDuplicate
	PersistSkippedCadence
	Persisted
	PersistFailed
)

func (s PersistStatus) String() string {
	switch s {
	case PersistDisabled:
		return "disabled"
	case PersistSkippedNoConversation:
		return "skipped_no_conversation"
	case PersistSkippedEmpty:
		return "skipped_empty"
	case PersistSkippedDuplicate:
		return "skipped_duplicate"
	case PersistSkippedCadence:
		return "skipped_cadence"
	case Persisted:
		return "persisted"
	case PersistFailed:
		return "persist_failed"
	default:
		return "unknown"
	}
}

// PersistResult is returned by PersistSummary. Attempt is the attempt index
// consumed by the call (zero when no attempt was counted); Key is set when a
// write was issued.
type PersistResult struct {
	Status  PersistStatus
	Attempt int
	Key     string
	Err     error
}

// Wrote reports whether the summary was durably stored.
func (r PersistResult) Wrote() bool { return r.Status == Persisted }
