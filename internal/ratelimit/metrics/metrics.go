package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Allowed     *prometheus.CounterVec
	Rejected    *prometheus.CounterVec
	Bypassed    *prometheus.CounterVec
	StoreErrors prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Allowed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gradegate_ratelimit_allowed_total",
			Help: "Requests admitted by the rate limiter",
		}, []string{"scope"}),
		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gradegate_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"scope"}),
		Bypassed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gradegate_ratelimit_bypassed_total",
			Help: "Requests from exempt identities that skipped the check",
		}, []string{"scope"}),
		StoreErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gradegate_ratelimit_store_errors_total",
			Help: "Bucket store failures (the limiter fails open on these)",
		}),
	}
}
