package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "region_compare"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// region comparison service.
type Metrics struct {
	// Engine query metrics.
	Queries        *prometheus.CounterVec   // labels: op={match,aggregate,search,filter,get}
	QueryDuration  *prometheus.HistogramVec // labels: op
	MatchCache     *prometheus.CounterVec   // labels: result={hit,miss}
	CatalogRegions prometheus.Gauge

	// Query event publishing metrics.
	EventsPublished         prometheus.Counter
	EventsDropped           prometheus.Counter
	PublishErrors           prometheus.Counter
	PublisherRunning        prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Language preference metrics.
	PreferenceOps *prometheus.CounterVec // labels: op={get,put}, outcome={success,error}
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Engine queries served, by operation.",
		}, []string{"op"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Engine query latency in seconds, by operation.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"op"}),
		MatchCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_cache_total",
			Help:      "Match cache lookups by result.",
		}, []string{"result"}),
		CatalogRegions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_regions",
			Help:      "Number of regions in the loaded catalog.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total query events written to the events topic.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Query events dropped because the publish buffer was full.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total failed batch writes to the events topic.",
		}),
		PublisherRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publisher_running",
			Help:      "1 when the event publisher is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of query events per published batch.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a batch write to the events topic.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		PreferenceOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preference_ops_total",
			Help:      "Language preference store operations by op and outcome.",
		}, []string{"op", "outcome"}),
	}

	prometheus.MustRegister(
		m.Queries,
		m.QueryDuration,
		m.MatchCache,
		m.CatalogRegions,
		m.EventsPublished,
		m.EventsDropped,
		m.PublishErrors,
		m.PublisherRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.PreferenceOps,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		Queries:                 prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "queries_total"}, []string{"op"}),
		QueryDuration:           prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "query_duration_seconds"}, []string{"op"}),
		MatchCache:              prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "match_cache_total"}, []string{"result"}),
		CatalogRegions:          prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "catalog_regions"}),
		EventsPublished:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total"}),
		EventsDropped:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "events_dropped_total"}),
		PublishErrors:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "publish_errors_total"}),
		PublisherRunning:        prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "publisher_running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "batch_processing_duration_seconds"}),
		PreferenceOps:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "preference_ops_total"}, []string{"op", "outcome"}),
	}
}
