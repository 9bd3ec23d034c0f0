package summary

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestResolvePolicy_Defaults(t *testing.T) {
	assert.Equal(t, Policy{Cadence: 3, CharLimit: 10000}, ResolvePolicy(nil))
	assert.Equal(t, Policy{Cadence: 3, CharLimit: 10000}, ResolvePolicy(&MemoryConfig{}))
}

func TestResolvePolicy_Cadence(t *testing.T) {
	cases := []struct {
		name string
		in   *float64
		want int
	}{
		{"one", f(1), 1},
		{"five", f(5), 5},
		{"max", f(25), 25},
		{"clamped", f(26), 25},
		{"huge", f(1e9), 25},
		{"zero", f(0), 3},
		{"negative", f(-4), 3},
		{"fractional", f(2.5), 3},
		{"nan", f(math.NaN()), 3},
		{"inf", f(math.Inf(1)), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := ResolvePolicy(&MemoryConfig{SummaryCadence: tc.in})
			assert.Equal(t, tc.want, p.Cadence)
		})
	}
}

func TestResolvePolicy_CharLimit(t *testing.T) {
	cases := []struct {
		name string
		in   *float64
		want int
	}{
		{"integer", f(2000), 2000},
		{"floored", f(5.9), 5},
		{"zero", f(0), 10000},
		{"negative", f(-1), 10000},
		{"below one", f(0.5), 10000},
		{"inf", f(math.Inf(1)), 10000},
		{"nan", f(math.NaN()), 10000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := ResolvePolicy(&MemoryConfig{CharLimit: tc.in})
			assert.Equal(t, tc.want, p.CharLimit)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abcde", truncate("abcdefgh", 5))
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "héllo", truncate("héllo wörld", 5))
	assert.Equal(t, "", truncate("", 3))
}

func TestLoadMemoryConfig(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "memory.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("summaryCadence: 4\ncharLimit: 2000\n"), 0o600))
	cfg, err := LoadMemoryConfig(yamlPath)
	require.NoError(t, err)
	assert.False(t, cfg.Disabled)
	assert.Equal(t, Policy{Cadence: 4, CharLimit: 2000}, ResolvePolicy(cfg))

	jsonPath := filepath.Join(dir, "memory.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"disabled": true}`), 0o600))
	cfg, err = LoadMemoryConfig(jsonPath)
	require.NoError(t, err)
	assert.True(t, cfg.Disabled)

	_, err = LoadMemoryConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("summaryCadence: [1, 2]\n"), 0o600))
	_, err = LoadMemoryConfig(badPath)
	assert.Error(t, err)
}
