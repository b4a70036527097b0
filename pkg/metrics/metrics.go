package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Search pipeline metrics
	SearchesTotal     *prometheus.CounterVec
	SearchRows        prometheus.Histogram
	SearchDuration    *prometheus.HistogramVec
	CreditsDebited    *prometheus.CounterVec
	CreditsCredited   *prometheus.CounterVec
	InsufficientFunds prometheus.Counter

	// Enrichment metrics
	EnrichmentJobsProcessed prometheus.Counter
	EnrichmentJobsFailed    prometheus.Counter
	EnrichmentContacts      *prometheus.CounterVec
	EnrichmentDuration      prometheus.Histogram

	// Data source metrics
	SourceQueries  *prometheus.CounterVec
	SourceLatency  *prometheus.HistogramVec
	SourcePoolSize prometheus.Gauge
}

// New creates and registers all application metrics under a namespace.
func New(namespace string) *Metrics {
	return &Metrics{
		SearchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of search operations by type and phase",
		}, []string{"type", "phase"}),
		SearchRows: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_result_rows",
			Help:      "Distribution of result row counts per executed search",
			Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 10000},
		}),
		SearchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of search phases",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"phase"}),
		CreditsDebited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_debited_total",
			Help:      "Total credits debited by transaction type",
		}, []string{"type"}),
		CreditsCredited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_credited_total",
			Help:      "Total credits credited by transaction type",
		}, []string{"type"}),
		InsufficientFunds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insufficient_credits_total",
			Help:      "Number of debits rejected for insufficient balance",
		}),
		EnrichmentJobsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_jobs_processed_total",
			Help:      "Total number of completed enrichment jobs",
		}),
		EnrichmentJobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_jobs_failed_total",
			Help:      "Total number of enrichment jobs that failed before completion",
		}),
		EnrichmentContacts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_contacts_total",
			Help:      "Per-contact enrichment outcomes",
		}, []string{"outcome"}),
		EnrichmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_job_duration_seconds",
			Help:      "Wall-clock duration of enrichment jobs",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600},
		}),
		SourceQueries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasource_queries_total",
			Help:      "Total queries issued against external data sources",
		}, []string{"source", "operation", "status"}),
		SourceLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "datasource_query_duration_seconds",
			Help:      "Duration of external data source queries",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"source", "operation"}),
		SourcePoolSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "datasource_pools",
			Help:      "Number of live external data source connection pools",
		}),
	}
}
