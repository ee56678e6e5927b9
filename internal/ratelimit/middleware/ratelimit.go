package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"gradegate/internal/platform/privacy"
	"gradegate/internal/ratelimit/models"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/httputil"
	"gradegate/pkg/requestcontext"
)

// Limiter is the admission-control decision surface consumed by the middleware.
type Limiter interface {
	Allow(ctx context.Context, scope models.Scope, identity string) (*models.Result, error)
}

// IdentityFunc extracts the rate limit identity for a request.
type IdentityFunc func(r *http.Request) string

// ByClientIP keys buckets on the resolved client IP (webhook scope).
func ByClientIP(r *http.Request) string {
	return requestcontext.ClientIP(r.Context())
}

// ByActor keys buckets on the authenticated operator, falling back to the
// client IP before authentication has run.
func ByActor(r *http.Request) string {
	if actor := requestcontext.Actor(r.Context()); actor != "" {
		return actor
	}
	return requestcontext.ClientIP(r.Context())
}

// Middleware enforces per-scope rate limits ahead of the webhook processor.
type Middleware struct {
	limiter Limiter
	logger  *slog.Logger
}

func New(limiter Limiter, logger *slog.Logger) *Middleware {
	return &Middleware{limiter: limiter, logger: logger}
}

// Limit returns middleware enforcing the given scope's limit. A bucket store
// failure fails open and is logged at error level.
func (m *Middleware) Limit(scope models.Scope, identity IdentityFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := identity(r)

			result, err := m.limiter.Allow(ctx, scope, id)
			if err != nil {
				m.logger.ErrorContext(ctx, "rate limit check failed, failing open",
					"error", err,
					"scope", scope,
					"identity_prefix", privacy.AnonymizeIP(id),
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
