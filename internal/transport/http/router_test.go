package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradegate/internal/audit"
	"gradegate/internal/deadletter"
	"gradegate/internal/ops"
	"gradegate/internal/platform/health"
	"gradegate/internal/ratelimit/checker"
	ratelimitmw "gradegate/internal/ratelimit/middleware"
	"gradegate/internal/ratelimit/store/bucket"
	"gradegate/internal/ratelimit/store/bypass"
	"gradegate/internal/replay"
	replaystore "gradegate/internal/replay/store"
	"gradegate/internal/signature"
	sigstore "gradegate/internal/signature/store"
	"gradegate/internal/webhook"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/middleware/metadata"
	opsmw "gradegate/pkg/platform/middleware/ops"
	"gradegate/pkg/platform/retry"
)

const (
	routerSecret = "router-test-secret"
	opsJWTSecret = "ops-test-secret"
)

type routerSubmissions struct{}

func (routerSubmissions) GetByID(_ context.Context, id int64) (*webhook.Submission, error) {
	if id == 123 {
		return &webhook.Submission{ID: 123}, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "submission not found")
}

type routerApplier struct{}

func (routerApplier) Apply(context.Context, *webhook.Submission, float64, float64, string) error {
	return nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	guard, err := replay.New(replaystore.NewMemoryMarkerStore(), replay.DefaultConfig(), logger)
	require.NoError(t, err)

	auditStore := audit.NewInMemoryStore()
	recorder := audit.NewRecorder(auditStore, logger)
	sink := deadletter.NewInMemoryStore()

	processor, err := webhook.NewProcessor(
		routerSecret,
		sigstore.NewMemoryStore(),
		guard,
		recorder,
		routerSubmissions{},
		routerApplier{},
		sink,
		logger,
		webhook.WithExecutor(retry.New(logger, retry.WithSleeper(func(context.Context, time.Duration) error {
			return nil
		}))),
	)
	require.NoError(t, err)

	opsService, err := ops.NewService(sink, auditStore, processor, recorder, logger)
	require.NoError(t, err)

	limiter, err := checker.New(bucket.NewInMemoryBucketStore(), bypass.NewInMemoryBypassStore(),
		checker.WithLogger(logger))
	require.NoError(t, err)

	return NewRouter(Deps{
		Webhook:      webhook.NewHandler(processor, 30*time.Second, logger),
		Ops:          ops.NewHandler(opsService, logger),
		Health:       health.New("test"),
		RateLimit:    ratelimitmw.New(limiter, logger),
		Metadata:     metadata.NewMiddleware(nil),
		OpsValidator: opsmw.NewJWTValidator(opsJWTSecret),
		MaxBodyBytes: 1 << 20,
		Logger:       logger,
	})
}

func opsToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops@example.edu",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(opsJWTSecret))
	require.NoError(t, err)
	return token
}

func TestRouterWebhookAcceptsSignedDelivery(t *testing.T) {
	router := newTestRouter(t)
	body := `{"submission_id":123,"score":85,"max_score":100,"feedback":"ok","timestamp":"` +
		time.Now().UTC().Format(time.RFC3339) + `"}`

	r := httptest.NewRequest(http.MethodPost, "/webhooks/grading", strings.NewReader(body))
	r.Header.Set(webhook.SignatureHeader, signature.Compute([]byte(body), routerSecret))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "1000", rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterWebhookRejectsUnsignedDelivery(t *testing.T) {
	router := newTestRouter(t)

	r := httptest.NewRequest(http.MethodPost, "/webhooks/grading", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterOpsRequiresToken(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/failed-webhooks", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterOpsAcceptsBearerToken(t *testing.T) {
	router := newTestRouter(t)

	r := httptest.NewRequest(http.MethodGet, "/ops/failed-webhooks", nil)
	r.Header.Set("Authorization", "Bearer "+opsToken(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Count)
}

func TestRouterHealthAndMetricsExposed(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
