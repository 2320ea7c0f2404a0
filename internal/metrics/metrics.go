package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus collectors of the tagging engine and service.
type Metrics struct {
	RecordsProcessed *prometheus.CounterVec
	TierOutcomes     *prometheus.CounterVec
	TagSeconds       prometheus.Histogram
	ActiveWorkers    prometheus.Gauge
	CacheLoads       *prometheus.CounterVec
	RepositoryErrors prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RecordsProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gaia_records_processed_total",
			Help: "Total number of records processed by the tagging service.",
		}, []string{"status"}),
		TierOutcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gaia_tier_outcomes_total",
			Help: "Outcome of every inference tier attempt.",
		}, []string{"tier", "outcome"}),
		TagSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "gaia_tag_duration_seconds",
			Help:    "Duration of tagging a single record.",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		}),
		ActiveWorkers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "gaia_active_workers",
			Help: "Current number of active workers processing records.",
		}),
		CacheLoads: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "gaia_cache_loads_total",
			Help: "Cache blob loads by result.",
		}, []string{"blob", "result"}),
		RepositoryErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "gaia_repository_errors_total",
			Help: "Total number of errors returned by the record store.",
		}),
	}
}
