// Package sqlstore holds the GORM implementation of the entry store shared by
// the postgres and sqlite plugins.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/summary-memory/internal/model"
	registrystore "github.com/chirino/summary-memory/internal/registry/store"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DuplicateCheck reports whether a driver error is a unique-constraint violation.
type DuplicateCheck func(err error) bool

// Store implements registrystore.EntryStore on top of GORM.
type Store struct {
	db          *gorm.DB
	isDuplicate DuplicateCheck
	now         func() time.Time
}

// New wraps db. isDuplicate may be nil when the dialector translates
// duplicate keys to gorm.ErrDuplicatedKey.
func New(db *gorm.DB, isDuplicate DuplicateCheck) *Store {
	return &Store{db: db, isDuplicate: isDuplicate, now: func() time.Time { return time.Now().UTC() }}
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) ListEntries(ctx context.Context, userID string) ([]model.MemoryEntry, error) {
	var rows []model.MemoryEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list memory entries: %w", err)
	}
	return rows, nil
}

func (s *Store) WriteEntry(ctx context.Context, req registrystore.WriteEntryRequest) (*model.MemoryEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	entry := model.MemoryEntry{
		ID:         uuid.New(),
		UserID:     req.UserID,
		Key:        req.Key,
		Value:      req.Value,
		TokenCount: req.TokenCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.db.WithContext(ctx).Create(&entry).Error
	if err == nil {
		return &entry, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || (s.isDuplicate != nil && s.isDuplicate(err)) {
		return nil, &registrystore.ConflictError{UserID: req.UserID, Key: req.Key, Err: err}
	}
	return nil, fmt.Errorf("write memory entry: %w", err)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ApplySchema executes a schema script on db.
func ApplySchema(ctx context.Context, db *gorm.DB, schema string) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

var _ registrystore.EntryStore = (*Store)(nil)
