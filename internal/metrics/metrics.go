// Package metrics exposes Prometheus instrumentation for the load-profile cache.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Artifact kinds used as the "kind" label.
const (
	KindDaily   = "daily"
	KindArchive = "archive"
)

var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlp_cache_lookups_total",
			Help: "Cache lookups by artifact kind and outcome (hit, miss, refresh)",
		},
		[]string{"kind", "result"},
	)

	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlp_fetch_requests_total",
			Help: "Remote fetches by artifact kind and outcome",
		},
		[]string{"kind", "result"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dlp_fetch_duration_seconds",
			Help:    "Duration of remote fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ArchiveEntriesExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dlp_archive_entries_extracted_total",
			Help: "Daily records extracted from yearly archives",
		},
	)

	RecordsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlp_records_parsed_total",
			Help: "Daily records parsed by outcome",
		},
		[]string{"result"},
	)

	RangeDays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlp_range_days_total",
			Help: "Days processed by the range assembler by outcome",
		},
		[]string{"result"},
	)
)

// Result maps an error to an "ok"/"error" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordFetch records one remote fetch.
func RecordFetch(kind string, started time.Time, err error) {
	FetchDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
	FetchRequests.WithLabelValues(kind, Result(err)).Inc()
}
