package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, DatastoreSQLite, cfg.DatastoreType)
	require.Equal(t, "none", cfg.CacheType)
	require.True(t, cfg.DatastoreMigrateAtStart)
	require.Equal(t, 5*time.Minute, cfg.CacheTTL)
}

func TestContextRoundTrip(t *testing.T) {
	require.Nil(t, FromContext(context.Background()))

	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
}

func TestNormalizedDatastoreType(t *testing.T) {
	var nilCfg *Config
	require.Equal(t, DatastoreSQLite, nilCfg.NormalizedDatastoreType())

	cfg := Config{DatastoreType: " Postgres "}
	require.Equal(t, DatastorePostgres, cfg.NormalizedDatastoreType())

	cfg.DatastoreType = ""
	require.Equal(t, DatastoreSQLite, cfg.NormalizedDatastoreType())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SUMMARY_MEMORY_DB_MONGO_DATABASE", "memories")
	t.Setenv("SUMMARY_MEMORY_DB_MAX_OPEN_CONNS", "40")
	t.Setenv("SUMMARY_MEMORY_DB_MAX_IDLE_CONNS", "4")
	t.Setenv("SUMMARY_MEMORY_CACHE_LOCAL_MAX_ENTRIES", "500")
	t.Setenv("SUMMARY_MEMORY_METRICS_JOB", "chat-backend")

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv())

	require.Equal(t, "memories", cfg.MongoDatabase)
	require.Equal(t, 40, cfg.DBMaxOpenConns)
	require.Equal(t, 4, cfg.DBMaxIdleConns)
	require.Equal(t, int64(500), cfg.CacheLocalMaxEntries)
	require.Equal(t, "chat-backend", cfg.MetricsJob)
}

func TestApplyEnv_InvalidInt(t *testing.T) {
	t.Setenv("SUMMARY_MEMORY_DB_MAX_OPEN_CONNS", "many")

	cfg := DefaultConfig()
	err := cfg.ApplyEnv()
	require.Error(t, err)
	require.Contains(t, err.Error(), "SUMMARY_MEMORY_DB_MAX_OPEN_CONNS")
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"30s":     30 * time.Second,
		"5m":      5 * time.Minute,
		"PT2H":    2 * time.Hour,
		"PT1M30S": 90 * time.Second,
		"pt10m":   10 * time.Minute,
	}
	for raw, want := range cases {
		got, err := ParseDuration(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "soon", "PT", "PTXM", "P1D"} {
		_, err := ParseDuration(raw)
		require.Error(t, err, raw)
	}
}
