package redrive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts re-drive activity.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	ResolvedTotal   prometheus.Counter
	RequeuedTotal   prometheus.Counter
	ExhaustedTotal  prometheus.Counter
	DurationSeconds prometheus.Histogram
}

// NewMetrics registers the re-drive collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gradegate_redrive_runs_total",
			Help: "Re-drive scan runs by outcome.",
		}, []string{"outcome"}),
		ResolvedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gradegate_redrive_resolved_total",
			Help: "Failed webhooks successfully re-applied.",
		}),
		RequeuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gradegate_redrive_requeued_total",
			Help: "Failed webhooks returned to pending after another transient failure.",
		}),
		ExhaustedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gradegate_redrive_exhausted_total",
			Help: "Failed webhooks moved to the failed status.",
		}),
		DurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gradegate_redrive_duration_seconds",
			Help:    "Duration of one re-drive scan.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
