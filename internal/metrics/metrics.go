// Package metrics holds the Prometheus collectors of the resolution pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "photogps"

// Photo outcomes
const (
	OutcomeResolved     = "resolved"
	OutcomeNoLocation   = "no_location"
	OutcomeNoExif       = "no_exif"
	OutcomeNoData       = "no_data"
	OutcomeDecodeFailed = "decode_failed"
)

var (
	PhotosProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "photos_processed_total",
		Help:      "Photos run through the metadata extractor, by outcome",
	}, []string{"outcome"})

	GeocodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geocode_requests_total",
		Help:      "Reverse geocoding requests by language and result",
	}, []string{"lang", "result"})

	GeocodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "geocode_duration_seconds",
		Help:      "Latency of a single reverse geocoding request",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8),
	})

	StorageRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_retries_total",
		Help:      "Queries retried after a transient connection failure",
	})

	StorageReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "storage_connects_total",
		Help:      "Database sessions opened by the storage connector",
	})

	AliasLookupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alias_lookup_failures_total",
		Help:      "Device alias lookups that failed and kept the raw tag",
	})

	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_requests_total",
		Help:      "TTL cache lookups by cache name and result",
	}, []string{"cache", "result"})
)

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
