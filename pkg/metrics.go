package nanodc

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Refresh pipeline metrics
	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanodc_refreshes_total",
			Help: "Total number of share refreshes by outcome",
		},
		[]string{"result"},
	)

	refreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nanodc_refresh_duration_seconds",
			Help:    "Share refresh duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	refreshWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanodc_refresh_warnings_total",
			Help: "Entries skipped during refresh by kind",
		},
		[]string{"kind"},
	)

	hashCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanodc_hash_cache_lookups_total",
			Help: "Hash cache lookups during refresh",
		},
		[]string{"result"},
	)

	// Search metrics
	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanodc_searches_total",
			Help: "Total number of searches by query kind",
		},
		[]string{"kind"},
	)

	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nanodc_search_duration_seconds",
			Help:    "Search evaluation time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
		[]string{"kind"},
	)

	bloomShortCircuits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanodc_bloom_short_circuits_total",
			Help: "Term searches answered empty by the Bloom filter",
		},
	)

	// Share gauges
	shareBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nanodc_share_bytes",
			Help: "Total size of shared files",
		},
	)

	shareFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nanodc_share_files",
			Help: "Number of shared files",
		},
	)

	listGenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanodc_file_list_generations_total",
			Help: "File lists serialized by kind",
		},
		[]string{"kind"},
	)
)

func recordRefresh(result *RefreshResult) {
	outcome := "completed"
	if result.Err != nil {
		outcome = "cancelled"
	}
	refreshesTotal.WithLabelValues(outcome).Inc()
	refreshDuration.Observe(result.Finished.Sub(result.Started).Seconds())
	for _, w := range result.Warnings {
		kind := "io"
		if _, ok := w.(*HashFailure); ok {
			kind = "hash"
		}
		refreshWarningsTotal.WithLabelValues(kind).Inc()
	}
	hashCacheLookups.WithLabelValues("hit").Add(float64(result.CachedFiles))
	hashCacheLookups.WithLabelValues("miss").Add(float64(result.HashedFiles + result.PendingFiles))
}

func recordShareTotals(size int64, files int) {
	shareBytes.Set(float64(size))
	shareFiles.Set(float64(files))
}

func recordSearch(kind string, start time.Time) {
	searchesTotal.WithLabelValues(kind).Inc()
	searchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// MetricsHandler returns the Prometheus HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
