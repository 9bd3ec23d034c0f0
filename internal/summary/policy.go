package summary

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultCadence   = 3
	MaxCadence       = 25
	DefaultCharLimit = 10000
)

// MemoryConfig is the per-account memory policy. A nil *MemoryConfig means
// the feature is not configured. Numeric fields are kept as float64 so that
// non-integer values can be recognized and rejected in favor of defaults.
type MemoryConfig struct {
	Disabled       bool     `json:"disabled" yaml:"disabled"`
	SummaryCadence *float64 `json:"summaryCadence,omitempty" yaml:"summaryCadence,omitempty"`
	CharLimit      *float64 `json:"charLimit,omitempty" yaml:"charLimit,omitempty"`
}

// Policy is the effective persistence policy of a manager.
type Policy struct {
	Cadence   int
	CharLimit int
}

// ResolvePolicy computes the effective policy for cfg, applying defaults for
// absent or invalid values.
func ResolvePolicy(cfg *MemoryConfig) Policy {
	p := Policy{Cadence: DefaultCadence, CharLimit: DefaultCharLimit}
	if cfg == nil {
		return p
	}
	if v := cfg.SummaryCadence; v != nil && isFinite(*v) && *v > 0 && *v == math.Trunc(*v) {
		p.Cadence = int(math.Min(*v, MaxCadence))
	}
	if v := cfg.CharLimit; v != nil && isFinite(*v) && *v > 0 {
		if limit := math.Floor(*v); limit >= 1 && limit <= math.MaxInt32 {
			p.CharLimit = int(limit)
		}
	}
	return p
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// LoadMemoryConfig reads a memory policy from a YAML (or JSON) file.
func LoadMemoryConfig(path string) (*MemoryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read memory config: %w", err)
	}
	var cfg MemoryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse memory config %s: %w", path, err)
	}
	return &cfg, nil
}

// truncate returns the first limit runes of s.
func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
