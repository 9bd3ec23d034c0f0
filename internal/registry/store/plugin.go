package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/chirino/summary-memory/internal/model"
)

// WriteEntryRequest is the input for writing a single memory entry.
type WriteEntryRequest struct {
	UserID     string `json:"userId"`
	Key        string `json:"key"`
	Value      string `json:"value"`
	TokenCount *int   `json:"tokenCount,omitempty"`
}

// Validate checks the fields every backend requires.
func (r WriteEntryRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return &ValidationError{Field: "userId", Message: "is required"}
	}
	if strings.TrimSpace(r.Key) == "" {
		return &ValidationError{Field: "key", Message: "is required"}
	}
	if r.TokenCount != nil && *r.TokenCount < 0 {
		return &ValidationError{Field: "tokenCount", Message: "must not be negative"}
	}
	return nil
}

// EntryStore is the durable per-user key/value store that holds memory entries.
type EntryStore interface {
	// ListEntries returns every memory entry owned by userID, across all
	// conversations, ordered by key.
	ListEntries(ctx context.Context, userID string) ([]model.MemoryEntry, error)

	// WriteEntry inserts one entry. Backends enforce (userID, key) uniqueness
	// and return *ConflictError when the key is already taken.
	WriteEntry(ctx context.Context, req WriteEntryRequest) (*model.MemoryEntry, error)
}

// Loader creates an EntryStore from config.
type Loader func(ctx context.Context) (EntryStore, error)

// Plugin represents a store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown store %q; valid: %v", name, Names())
}
