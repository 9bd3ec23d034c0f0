package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv reads environment variables that are not represented by
// dedicated CLI flags.
func (c *Config) ApplyEnv() error {
	if c == nil {
		return nil
	}

	var err error
	applyStringEnv("SUMMARY_MEMORY_DB_MONGO_DATABASE", &c.MongoDatabase)
	if err = applyIntEnv("SUMMARY_MEMORY_DB_MAX_OPEN_CONNS", &c.DBMaxOpenConns); err != nil {
		return err
	}
	if err = applyIntEnv("SUMMARY_MEMORY_DB_MAX_IDLE_CONNS", &c.DBMaxIdleConns); err != nil {
		return err
	}
	if err = applyInt64Env("SUMMARY_MEMORY_CACHE_LOCAL_MAX_ENTRIES", &c.CacheLocalMaxEntries); err != nil {
		return err
	}
	applyStringEnv("SUMMARY_MEMORY_METRICS_JOB", &c.MetricsJob)
	return nil
}

func applyStringEnv(key string, dest *string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	*dest = raw
}

func applyIntEnv(key string, dest *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyInt64Env(key string, dest *int64) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

// ParseDuration accepts Go durations (30s, 5m) and the ISO-8601 PT#H#M#S form.
func ParseDuration(raw string) (time.Duration, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if d, err := time.ParseDuration(strings.ToLower(v)); err == nil {
		return d, nil
	}

	if !strings.HasPrefix(v, "PT") {
		return 0, fmt.Errorf("unsupported format %q", raw)
	}
	rest := strings.TrimPrefix(v, "PT")
	if rest == "" {
		return 0, fmt.Errorf("invalid format %q", raw)
	}
	total := time.Duration(0)
	for len(rest) > 0 {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 || i >= len(rest) {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		switch rest[i] {
		case 'H':
			total += time.Duration(n) * time.Hour
		case 'M':
			total += time.Duration(n) * time.Minute
		case 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("invalid format %q", raw)
		}
		rest = rest[i+1:]
	}
	if total <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return total, nil
}
