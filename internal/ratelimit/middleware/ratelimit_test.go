package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gradegate/internal/ratelimit/models"
	"gradegate/pkg/requestcontext"
)

type stubLimiter struct {
	result *models.Result
	err    error
}

func (s *stubLimiter) Allow(context.Context, models.Scope, string) (*models.Result, error) {
	return s.result, s.err
}

func serve(limiter Limiter) *httptest.ResponseRecorder {
	m := New(limiter, slog.Default())
	handler := m.Limit(models.ScopeWebhook, ByClientIP)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}))

	r := httptest.NewRequest(http.MethodPost, "/webhooks/grading", nil)
	r = r.WithContext(requestcontext.WithClientMetadata(r.Context(), "203.0.113.7", "autograder/2.1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	return rec
}

func TestLimitAllowedSetsHeaders(t *testing.T) {
	reset := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	rec := serve(&stubLimiter{result: &models.Result{
		Allowed:   true,
		Limit:     1000,
		Remaining: 999,
		ResetAt:   reset,
	}})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "1000", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "999", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1772370000", rec.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestLimitRejectedReturns429WithRetryAfter(t *testing.T) {
	rec := serve(&stubLimiter{result: &models.Result{
		Allowed:    false,
		Limit:      1000,
		Remaining:  0,
		ResetAt:    time.Now().Add(30 * time.Second),
		RetryAfter: 30,
	}})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "rate_limited")
}

func TestLimitFailsOpenOnStoreError(t *testing.T) {
	rec := serve(&stubLimiter{err: errors.New("redis down")})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}
