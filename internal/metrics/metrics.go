// Package metrics owns the Prometheus collectors recorded by stores, caches
// and the summary manager.
package metrics

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Registry holds every collector registered by InitMetrics.
	Registry = prometheus.NewRegistry()

	// StoreLatency records entry store operation latency.
	StoreLatency *prometheus.HistogramVec

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// SummaryDecisionsTotal counts PersistSummary outcomes by status.
	SummaryDecisionsTotal *prometheus.CounterVec

	// SummaryLoadFailuresTotal counts cold loads that failed open.
	SummaryLoadFailuresTotal prometheus.Counter
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := pair[:idx], pair[idx+1:]
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all collectors with the given constant labels.
// Safe to call multiple times; only the first call registers. Until it is
// called every collector is nil and recording sites skip themselves.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, Registry)
	f := promauto.With(reg)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "summary_memory_store_latency_seconds",
			Help:    "Entry store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "summary_memory_cache_hits_total",
		Help: "Total entry cache hits",
	})

	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "summary_memory_cache_misses_total",
		Help: "Total entry cache misses",
	})

	SummaryDecisionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summary_memory_persist_decisions_total",
			Help: "Summary persist attempts by outcome",
		},
		[]string{"status"},
	)

	SummaryLoadFailuresTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "summary_memory_load_failures_total",
		Help: "Cold loads that failed and were treated as empty",
	})
}

// ObserveStoreLatency records the duration of a store operation that began at start.
func ObserveStoreLatency(op string, start time.Time) {
	if StoreLatency != nil {
		StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// RecordCacheHit and RecordCacheMiss count entry cache lookups.
func RecordCacheHit() {
	if CacheHitsTotal != nil {
		CacheHitsTotal.Inc()
	}
}

func RecordCacheMiss() {
	if CacheMissesTotal != nil {
		CacheMissesTotal.Inc()
	}
}

// RecordDecision increments SummaryDecisionsTotal for status when metrics are initialized.
func RecordDecision(status string) {
	if SummaryDecisionsTotal != nil {
		SummaryDecisionsTotal.WithLabelValues(status).Inc()
	}
}

// RecordLoadFailure increments SummaryLoadFailuresTotal when metrics are initialized.
func RecordLoadFailure() {
	if SummaryLoadFailuresTotal != nil {
		SummaryLoadFailuresTotal.Inc()
	}
}

// Push sends the current Registry contents to a Pushgateway.
func Push(ctx context.Context, url, job string) error {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
