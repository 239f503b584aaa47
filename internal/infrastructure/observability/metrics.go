// Package observability holds the process metrics. Each Collector owns a
// private registry so tests can build as many as they like.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/colinxr/notion-graph-view-sub001/internal/infrastructure/cache"
)

// Collector holds all Prometheus metrics for the service.
type Collector struct {
	registry  *prometheus.Registry
	namespace string

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Event bus metrics
	EventsPublished  *prometheus.CounterVec
	HandlerFailures  *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
	BackgroundQueued *prometheus.CounterVec

	// Cache metrics
	CacheHits           *prometheus.CounterVec
	CacheMisses         *prometheus.CounterVec
	CacheDecodeFailures *prometheus.CounterVec

	// Extraction metrics
	BacklinksExtracted   prometheus.Counter
	UnresolvedReferences prometheus.Counter
}

// NewCollector creates a collector with the given namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry:  prometheus.NewRegistry(),
		namespace: namespace,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of domain events published on the bus",
			},
			[]string{"event"},
		),
		HandlerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_handler_failures_total",
				Help:      "Total number of event handler failures, panics included",
			},
			[]string{"handler", "event"},
		),
		HandlerDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_handler_duration_seconds",
				Help:      "Event handler duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"handler", "event"},
		),
		BackgroundQueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "background_events_total",
				Help:      "Background publisher submissions by outcome",
			},
			[]string{"outcome"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"kind"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"kind"},
		),
		CacheDecodeFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_decode_failures_total",
				Help:      "Cached values that could not be decoded and were treated as misses",
			},
			[]string{"kind"},
		),
		BacklinksExtracted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backlinks_extracted_total",
				Help:      "Total number of backlink edges written by extraction",
			},
		),
		UnresolvedReferences: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unresolved_references_total",
				Help:      "Total number of references that matched no page",
			},
		),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.EventsPublished,
		c.HandlerFailures,
		c.HandlerDuration,
		c.BackgroundQueued,
		c.CacheHits,
		c.CacheMisses,
		c.CacheDecodeFailures,
		c.BacklinksExtracted,
		c.UnresolvedReferences,
	)
	return c
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// EventPublished records one publish.
func (c *Collector) EventPublished(event string) {
	c.EventsPublished.WithLabelValues(event).Inc()
}

// HandlerCompleted records one handler invocation.
func (c *Collector) HandlerCompleted(handler, event string, d time.Duration, err error) {
	c.HandlerDuration.WithLabelValues(handler, event).Observe(d.Seconds())
	if err != nil {
		c.HandlerFailures.WithLabelValues(handler, event).Inc()
	}
}

// BackgroundSubmitted records whether a background submission was queued.
func (c *Collector) BackgroundSubmitted(accepted bool) {
	outcome := "queued"
	if !accepted {
		outcome = "dropped"
	}
	c.BackgroundQueued.WithLabelValues(outcome).Inc()
}

// CacheLookup records a cache read outcome for a kind of entry.
func (c *Collector) CacheLookup(kind string, hit bool) {
	if hit {
		c.CacheHits.WithLabelValues(kind).Inc()
		return
	}
	c.CacheMisses.WithLabelValues(kind).Inc()
}

// CacheDecodeFailed records a malformed cached value.
func (c *Collector) CacheDecodeFailed(kind string) {
	c.CacheDecodeFailures.WithLabelValues(kind).Inc()
}

// WatchCacheStore exports the occupancy and eviction count of store, read
// at scrape time.
func (c *Collector) WatchCacheStore(store interface{ Stats() cache.Stats }) {
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "cache_items",
			Help:      "Entries held by the cache store",
		}, func() float64 { return float64(store.Stats().Items) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      "cache_bytes",
			Help:      "Key and value bytes held by the cache store",
		}, func() float64 { return float64(store.Stats().Bytes) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries evicted to stay within the cache bounds",
		}, func() float64 { return float64(store.Stats().Evictions) }),
	)
}

// ExtractionCompleted records one extraction run.
func (c *Collector) ExtractionCompleted(edges, unresolved int) {
	c.BacklinksExtracted.Add(float64(edges))
	c.UnresolvedReferences.Add(float64(unresolved))
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
