package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	runsTotal      prometheus.Counter
	runDuration    prometheus.Histogram
	itemsFetched   prometheus.Counter
	itemsKept      prometheus.Counter
	sourceOutcomes *prometheus.CounterVec
	blockedSources prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		runsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "crewire_runs_total",
			Help: "Completed ingestion runs.",
		}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crewire_run_duration_seconds",
			Help:    "Wall time of one full ingestion run.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		itemsFetched: f.NewCounter(prometheus.CounterOpts{
			Name: "crewire_items_fetched_total",
			Help: "Raw entries seen across all sources.",
		}),
		itemsKept: f.NewCounter(prometheus.CounterOpts{
			Name: "crewire_items_kept_total",
			Help: "Items surviving normalization, classification and dedup.",
		}),
		sourceOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crewire_source_outcomes_total",
			Help: "Per-source fetch outcomes by status.",
		}, []string{"status"}),
		blockedSources: f.NewGauge(prometheus.GaugeOpts{
			Name: "crewire_blocked_sources",
			Help: "Sources with an open circuit breaker right now.",
		}),
	}
}
