// Package cmdutil holds the flags and wiring shared by every sub-command:
// config binding, logging, metrics and store construction.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chirino/summary-memory/internal/config"
	"github.com/chirino/summary-memory/internal/metrics"
	"github.com/chirino/summary-memory/internal/plugin/store/cached"
	storemetrics "github.com/chirino/summary-memory/internal/plugin/store/metrics"
	registrycache "github.com/chirino/summary-memory/internal/registry/cache"
	registrymigrate "github.com/chirino/summary-memory/internal/registry/migrate"
	registrystore "github.com/chirino/summary-memory/internal/registry/store"
	"github.com/urfave/cli/v3"

	// Import all plugins to trigger init() registration
	_ "github.com/chirino/summary-memory/internal/plugin/cache/local"
	_ "github.com/chirino/summary-memory/internal/plugin/cache/noop"
	_ "github.com/chirino/summary-memory/internal/plugin/cache/redis"
	_ "github.com/chirino/summary-memory/internal/plugin/store/mongo"
	_ "github.com/chirino/summary-memory/internal/plugin/store/postgres"
	_ "github.com/chirino/summary-memory/internal/plugin/store/sqlite"
)

// Flags binds the process configuration to CLI flags and environment variables.
func Flags(cfg *config.Config, cacheTTL *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Sources:     cli.EnvVars("SUMMARY_MEMORY_LOG_LEVEL"),
			Destination: &cfg.LogLevel,
			Value:       cfg.LogLevel,
			Usage:       "Log level (debug|info|warn|error)",
		},

		// ── Database ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "db-kind",
			Category:    "Database:",
			Sources:     cli.EnvVars("SUMMARY_MEMORY_DB_KIND"),
			Destination: &cfg.DatastoreType,
			Value:       cfg.DatastoreType,
			Usage:       "Backend store (" + strings.Join(registrystore.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "db-url",
			Category:    "Database:",
			Sources:     cli.EnvVars("SUMMARY_MEMORY_DB_URL"),
			Destination: &cfg.DBURL,
			Value:       cfg.DBURL,
			Usage:       "Database connection URL (postgres DSN, sqlite path or mongodb URI)",
		},
		&cli.BoolFlag{
			Name:        "migrate-at-start",
			Category:    "Database:",
			Sources:     cli.EnvVars("SUMMARY_MEMORY_DB_MIGRATE_AT_START"),
			Destination: &cfg.DatastoreMigrateAtStart,
			Value:       cfg.DatastoreMigrateAtStart,
			Usage:       "Run schema migrations before opening the store",
		},

		// ── Cache ─────────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "cache-kind",
			Category:    "Cache:",
			Sources:     cli.EnvVars("SUMMARY_MEMORY_CACHE_KIND"),
			Destination: &cfg.CacheType,
			Value:       cfg.CacheType,
			Usage:       "Entry cache backend (" + strings.Join(registrycache.Names(), "|") + ")",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("SUMMARY_MEMORY_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis URL for the redis cache",
		},
		&cli.StringFlag{
			Name:        "cache-ttl",
			Category:    "Cache:",
			Sources:     cli.EnvVars("SUMMARY_MEMORY_CACHE_TTL"),
			Destination: cacheTTL,
			Value:       cfg.CacheTTL.String(),
			Usage:       "Entry cache TTL (Go duration or ISO-8601, e.g. 5m or PT5M)",
		},

		// ── Metrics ───────────────────────────────────────────────
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Metrics:",
			Sources:     cli.EnvVars("SUMMARY_MEMORY_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       cfg.MetricsLabels,
			Usage:       "Constant labels added to all metrics (key=value,...)",
		},
		&cli.StringFlag{
			Name:        "metrics-push-url",
			Category:    "Metrics:",
			Sources:     cli.EnvVars("SUMMARY_MEMORY_METRICS_PUSH_URL"),
			Destination: &cfg.MetricsPushURL,
			Usage:       "Prometheus Pushgateway URL; metrics are pushed when the command finishes",
		},
	}
}

// Setup finishes configuration after flag parsing and returns a context
// carrying it.
func Setup(ctx context.Context, cfg *config.Config, cacheTTL string) (context.Context, error) {
	if err := cfg.ApplyEnv(); err != nil {
		return ctx, err
	}
	if strings.TrimSpace(cacheTTL) != "" {
		ttl, err := config.ParseDuration(cacheTTL)
		if err != nil {
			return ctx, fmt.Errorf("invalid --cache-ttl: %w", err)
		}
		cfg.CacheTTL = ttl
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return ctx, fmt.Errorf("invalid --log-level: %w", err)
	}
	log.SetLevel(level)

	labels, err := metrics.ParseMetricsLabels(cfg.MetricsLabels)
	if err != nil {
		return ctx, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	metrics.InitMetrics(labels)

	return config.WithContext(ctx, cfg), nil
}

// Cleanup releases the connections and caches opened by OpenStore.
type Cleanup func(ctx context.Context)

// OpenStore runs migrations when enabled, loads the configured store and
// wraps it with latency metrics and the configured entry cache. The returned
// Cleanup must be called once the store is no longer used.
func OpenStore(ctx context.Context) (registrystore.EntryStore, Cleanup, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, nil, fmt.Errorf("no configuration in context")
	}

	if cfg.DatastoreMigrateAtStart {
		if err := registrymigrate.RunAll(ctx); err != nil {
			return nil, nil, err
		}
	}

	kind := cfg.NormalizedDatastoreType()
	loader, err := registrystore.Select(kind)
	if err != nil {
		return nil, nil, err
	}
	store, err := loader(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", kind, err)
	}
	log.Debug("Store selected", "kind", kind)

	cacheLoader, err := registrycache.Select(cfg.CacheType)
	if err != nil {
		closeResource(ctx, kind, store)
		return nil, nil, err
	}
	entriesCache, err := cacheLoader(ctx)
	if err != nil {
		closeResource(ctx, kind, store)
		return nil, nil, fmt.Errorf("open %s cache: %w", cfg.CacheType, err)
	}
	log.Debug("Cache selected", "kind", cfg.CacheType, "available", entriesCache.Available())

	cleanup := func(ctx context.Context) {
		closeResource(ctx, cfg.CacheType+" cache", entriesCache)
		closeResource(ctx, kind+" store", store)
	}
	ctx = registrycache.WithEntriesCacheContext(ctx, entriesCache)
	return cached.WrapFromContext(ctx, storemetrics.Wrap(store)), cleanup, nil
}

// closeResource closes v with whichever Close signature it implements.
// Errors are logged.
func closeResource(ctx context.Context, name string, v any) {
	var err error
	switch c := v.(type) {
	case interface{ Close(context.Context) error }:
		err = c.Close(ctx)
	case io.Closer:
		err = c.Close()
	case interface{ Close() }:
		c.Close()
	}
	if err != nil {
		log.Warn("Close failed", "resource", name, "err", err)
	}
}

// PushMetrics pushes collected metrics when a Pushgateway is configured.
// Failures are logged, never returned.
func PushMetrics(ctx context.Context, cfg *config.Config) {
	if cfg == nil || cfg.MetricsPushURL == "" {
		return
	}
	if err := metrics.Push(ctx, cfg.MetricsPushURL, cfg.MetricsJob); err != nil {
		log.Warn("Metrics push failed", "err", err)
	}
}
