package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/summary-memory/internal/config"
	"github.com/chirino/summary-memory/internal/plugin/store/sqlstore"
	registrymigrate "github.com/chirino/summary-memory/internal/registry/migrate"
	registrystore "github.com/chirino/summary-memory/internal/registry/store"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed db/schema.sql
var schemaSQL string

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: config.DatastorePostgres,
		Loader: func(ctx context.Context) (registrystore.EntryStore, error) {
			cfg := config.FromContext(ctx)
			db, err := open(cfg)
			if err != nil {
				return nil, err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, fmt.Errorf("failed to get underlying db: %w", err)
			}
			sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
			sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
			return sqlstore.New(db, isUniqueViolation), nil
		},
	})

	registrymigrate.Register(registrymigrate.Plugin{Order: 100, Migrator: &postgresMigrator{}})
}

func open(cfg *config.Config) (*gorm.DB, error) {
	if cfg == nil || cfg.DBURL == "" {
		return nil, fmt.Errorf("postgres store: SUMMARY_MEMORY_DB_URL is required")
	}
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type postgresMigrator struct{}

func (m *postgresMigrator) Name() string { return "postgres-schema" }
func (m *postgresMigrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || !cfg.DatastoreMigrateAtStart {
		return nil
	}
	if cfg.NormalizedDatastoreType() != config.DatastorePostgres {
		return nil
	}
	log.Info("Running migration", "name", m.Name())
	db, err := open(cfg)
	if err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlstore.ApplySchema(ctx, db, schemaSQL); err != nil {
		return fmt.Errorf("migration: %w", err)
	}
	log.Info("Postgres schema migration complete")
	return nil
}
