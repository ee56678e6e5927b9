// Package httptransport assembles the HTTP surface: the webhook pipeline
// endpoint, the authenticated operator endpoints, health checks, and metrics.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gradegate/internal/ops"
	"gradegate/internal/platform/health"
	ratelimitmw "gradegate/internal/ratelimit/middleware"
	"gradegate/internal/ratelimit/models"
	"gradegate/internal/webhook"
	"gradegate/pkg/platform/middleware/metadata"
	opsmw "gradegate/pkg/platform/middleware/ops"
	"gradegate/pkg/platform/middleware/request"
)

// Deps carries everything the router mounts.
type Deps struct {
	Webhook        *webhook.Handler
	Ops            *ops.Handler
	Health         *health.Handler
	RateLimit      *ratelimitmw.Middleware
	Metadata       *metadata.Middleware
	OpsValidator   opsmw.TokenValidator
	RequestMetrics *request.Metrics
	MaxBodyBytes   int64
	Logger         *slog.Logger
}

// NewRouter wires the middleware chain and all endpoints. Ordering matters:
// recovery outermost, then correlation and client metadata so every later
// stage (including rate-limit logging) sees them.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(d.Metadata.Handler)
	r.Use(request.Logger(d.Logger, d.RequestMetrics))

	// Webhook pipeline: per-IP admission control before any body handling.
	r.Group(func(r chi.Router) {
		r.Use(d.RateLimit.Limit(models.ScopeWebhook, ratelimitmw.ByClientIP))
		r.Use(request.BodyLimit(d.MaxBodyBytes))
		d.Webhook.Register(r)
	})

	// Operator surface: bearer token first, then per-actor limits.
	r.Group(func(r chi.Router) {
		r.Use(opsmw.RequireToken(d.OpsValidator, d.Logger))
		r.Use(d.RateLimit.Limit(models.ScopeOps, ratelimitmw.ByActor))
		d.Ops.Register(r)
	})

	d.Health.Register(r)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
