package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "storm_seeder"

// Metrics holds the Prometheus counters, histograms, and gauges for a seed run.
// A seed run is a short-lived batch job, so metrics live on a private registry
// and are pushed to a Pushgateway at exit rather than scraped.
type Metrics struct {
	registry *prometheus.Registry

	RecordsParsed   *prometheus.CounterVec // labels: entity
	RecordsFiltered *prometheus.CounterVec // labels: entity
	RecordsLoaded   *prometheus.CounterVec // labels: entity, outcome={inserted,merged}
	BatchFailures   *prometheus.CounterVec // labels: entity, reason={transport,rejected,other}
	PipelineRunning prometheus.Gauge
	VerifiedRows    *prometheus.GaugeVec // labels: entity

	// Batch delivery metrics.
	BatchSize     prometheus.Histogram
	BatchDuration *prometheus.HistogramVec // labels: entity

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
}

// NewMetrics creates all seeder metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RecordsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_parsed_total",
			Help:      "Rows normalized from the input file.",
		}, []string{"entity"}),
		RecordsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_filtered_total",
			Help:      "Rows dropped because their event type did not match the category.",
		}, []string{"entity"}),
		RecordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Records accepted by the store, by outcome.",
		}, []string{"entity", "outcome"}),
		BatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_failures_total",
			Help:      "Batches the store did not accept, by reason.",
		}, []string{"entity", "reason"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline is delivering batches, 0 otherwise.",
		}),
		VerifiedRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "verified_rows",
			Help:      "Row count reported by the store after upload.",
		}, []string{"entity"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of records per delivered batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 75, 100, 250, 500},
		}),
		BatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of a single batch delivery.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"entity"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.RecordsParsed,
		m.RecordsFiltered,
		m.RecordsLoaded,
		m.BatchFailures,
		m.PipelineRunning,
		m.VerifiedRows,
		m.BatchSize,
		m.BatchDuration,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
	)

	return m
}

// Gatherer exposes the private registry, e.g. for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Push sends the current metric values to a Pushgateway under the given job name.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(m.registry).PushContext(ctx)
}
