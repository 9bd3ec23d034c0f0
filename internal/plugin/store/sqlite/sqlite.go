// Package sqlite registers a single-file entry store for local use and tests.
package sqlite

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/summary-memory/internal/config"
	"github.com/chirino/summary-memory/internal/plugin/store/sqlstore"
	registrymigrate "github.com/chirino/summary-memory/internal/registry/migrate"
	registrystore "github.com/chirino/summary-memory/internal/registry/store"
	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

//go:embed db/schema.sql
var schemaSQL string

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: config.DatastoreSQLite,
		Loader: func(ctx context.Context) (registrystore.EntryStore, error) {
			cfg := config.FromContext(ctx)
			db, err := Open(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return sqlstore.New(db, isUniqueViolation), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &sqliteMigrator{}})
}

// Open connects to the sqlite database named by cfg.DBURL and ensures the
// schema exists. In-memory databases are pinned to one connection so every
// query sees the same data.
func Open(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.DBURL) == "" {
		return nil, fmt.Errorf("sqlite store: SUMMARY_MEMORY_DB_URL is required")
	}
	db, err := gorm.Open(sqlite.Open(cfg.DBURL), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %s: %w", cfg.DBURL, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying db: %w", err)
	}
	if isMemoryDSN(cfg.DBURL) {
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.DBMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if err := sqlstore.ApplySchema(ctx, db, schemaSQL); err != nil {
		return nil, fmt.Errorf("sqlite store: %w", err)
	}
	return db, nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

type sqliteMigrator struct{}

func (m *sqliteMigrator) Name() string { return "sqlite-schema" }
func (m *sqliteMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.NormalizedDatastoreType() != config.DatastoreSQLite {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	log.Info("SQLite schema migration complete", "path", cfg.DBURL)
	return nil
}
