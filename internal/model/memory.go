package model

import (
	"time"

	"github.com/google/uuid"
)

// MemoryEntry is one durable (user, key) text record. Summary snapshots are
// stored as memory entries keyed by conversation prefix and storage index.
type MemoryEntry struct {
	// ID is the primary key (UUID).
	ID uuid.UUID `json:"id" bson:"_id" gorm:"primaryKey;type:uuid;column:id"`

	// UserID owns the entry.
	UserID string `json:"userId" bson:"user_id" gorm:"not null;column:user_id"`

	// Key is unique per UserID.
	Key string `json:"key" bson:"key" gorm:"not null;column:key"`

	// Value is the persisted text.
	Value string `json:"value" bson:"value" gorm:"not null;column:value"`

	// TokenCount is an optional size hint supplied by the writer.
	TokenCount *int `json:"tokenCount,omitempty" bson:"token_count,omitempty" gorm:"column:token_count"`

	// CreatedAt is when the entry was first written.
	CreatedAt time.Time `json:"createdAt" bson:"created_at" gorm:"not null;column:created_at"`

	// UpdatedAt is set by the store on every write.
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at" gorm:"not null;column:updated_at"`
}

// TableName implements gorm.Tabler.
func (MemoryEntry) TableName() string { return "memory_entries" }
