package config

import (
	"context"
	"strings"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	DatastorePostgres = "postgres"
	DatastoreSQLite   = "sqlite"
	DatastoreMongo    = "mongo"
)

// Config holds all process configuration for the summary memory tooling.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Datastore backend type: "postgres", "sqlite" or "mongo".
	DatastoreType string

	// Database connection URL (postgres DSN, sqlite file path/DSN or mongodb:// URI).
	DBURL string

	// MongoDatabase is the database name used by the mongo backend.
	MongoDatabase string

	// Run datastore migrations before opening the store.
	DatastoreMigrateAtStart bool

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int

	// Cache backend type: "none", "redis" or "local".
	CacheType string

	// Redis
	RedisURL string

	// CacheTTL bounds how long a user's entry list is served from cache.
	CacheTTL time.Duration

	// CacheLocalMaxEntries bounds the number of users held by the local cache.
	CacheLocalMaxEntries int64

	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	MetricsLabels string

	// MetricsPushURL is an optional Prometheus Pushgateway URL. Metrics are
	// pushed once when a command finishes.
	MetricsPushURL string

	// MetricsJob is the Pushgateway job name.
	MetricsJob string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:                "info",
		DatastoreType:           DatastoreSQLite,
		DBURL:                   "summary-memory.db",
		MongoDatabase:           "summary_memory",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          10,
		DBMaxIdleConns:          2,
		CacheType:               "none",
		CacheTTL:                5 * time.Minute,
		CacheLocalMaxEntries:    10_000,
		MetricsLabels:           "service=summary-memory",
		MetricsJob:              "summary-memory",
	}
}

// NormalizedDatastoreType returns the lower-cased datastore type, defaulting to sqlite.
func (c *Config) NormalizedDatastoreType() string {
	if c == nil {
		return DatastoreSQLite
	}
	if v := strings.ToLower(strings.TrimSpace(c.DatastoreType)); v != "" {
		return v
	}
	return DatastoreSQLite
}
