package webhook_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradegate/internal/audit"
	"gradegate/internal/deadletter"
	"gradegate/internal/replay"
	replaystore "gradegate/internal/replay/store"
	"gradegate/internal/signature"
	sigstore "gradegate/internal/signature/store"
	"gradegate/internal/webhook"
	dErrors "gradegate/pkg/domain-errors"
)

// Fake collaborators for the end-to-end handler test; the processor suite
// covers per-stage behavior with mocks.
type fakeSubmissions struct{ known map[int64]*webhook.Submission }

func (f *fakeSubmissions) GetByID(_ context.Context, id int64) (*webhook.Submission, error) {
	if sub, ok := f.known[id]; ok {
		return sub, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "submission not found")
}

type fakeApplier struct{ applied int }

func (f *fakeApplier) Apply(context.Context, *webhook.Submission, float64, float64, string) error {
	f.applied++
	return nil
}

type endToEnd struct {
	handler    *webhook.Handler
	applier    *fakeApplier
	auditStore *audit.InMemoryStore
}

func newEndToEnd(t *testing.T) *endToEnd {
	t.Helper()
	logger := discardLogger()

	guard, err := replay.New(replaystore.NewMemoryMarkerStore(), replay.DefaultConfig(), logger)
	require.NoError(t, err)

	auditStore := audit.NewInMemoryStore()
	applier := &fakeApplier{}

	processor, err := webhook.NewProcessor(
		testSecret,
		sigstore.NewMemoryStore(),
		guard,
		audit.NewRecorder(auditStore, logger),
		&fakeSubmissions{known: map[int64]*webhook.Submission{123: {ID: 123}}},
		applier,
		deadletter.NewInMemoryStore(),
		logger,
		webhook.WithExecutor(noSleep()),
	)
	require.NoError(t, err)

	return &endToEnd{
		handler:    webhook.NewHandler(processor, 30*time.Second, logger),
		applier:    applier,
		auditStore: auditStore,
	}
}

func (e *endToEnd) post(body []byte, sig string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/webhooks/grading", bytes.NewReader(body))
	if sig != "" {
		r.Header.Set(webhook.SignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	e.handler.HandleGradingResult(rec, r)
	return rec
}

func signedBody(t *testing.T) ([]byte, string) {
	t.Helper()
	body := []byte(`{"submission_id":123,"score":85,"max_score":100,"feedback":"2 passed, 1 failed","timestamp":"` +
		time.Now().UTC().Format(time.RFC3339) + `"}`)
	return body, signature.Compute(body, testSecret)
}

func TestHandlerAcceptsValidDeliveryWithOrderedTrail(t *testing.T) {
	e := newEndToEnd(t)
	body, sig := signedBody(t)

	rec := e.post(body, sig)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "accepted")
	assert.Equal(t, 1, e.applier.applied)

	events, err := e.auditStore.ListBySubmission(context.Background(), 123)
	require.NoError(t, err)
	var types []audit.EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []audit.EventType{
		audit.EventReceived,
		audit.EventSignatureVerified,
		audit.EventReplayCheck,
		audit.EventSubmissionFound,
		audit.EventGradeApplied,
		audit.EventNotificationSent,
	}, types)

	// No notifier is wired in this fixture, so the stage records a skip.
	last := events[len(events)-1]
	assert.Equal(t, false, last.Details["delivered"])
	assert.Equal(t, "not_configured", last.Details["reason"])
}

func TestHandlerRejectsDuplicateWithoutReapplying(t *testing.T) {
	e := newEndToEnd(t)
	body, sig := signedBody(t)

	require.Equal(t, http.StatusAccepted, e.post(body, sig).Code)

	rec := e.post(body, sig)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, e.applier.applied)

	events, err := e.auditStore.ListBySubmission(context.Background(), 123)
	require.NoError(t, err)
	applied := 0
	for _, ev := range events {
		if ev.Type == audit.EventGradeApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
}

func TestHandlerStatusMapping(t *testing.T) {
	now := time.Now().UTC().Format(time.RFC3339)
	stale := time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339)

	tests := []struct {
		name string
		body string
		sign bool
		want int
	}{
		{
			name: "missing signature",
			body: `{"submission_id":123,"score":85,"max_score":100,"feedback":"","timestamp":"` + now + `"}`,
			want: http.StatusUnauthorized,
		},
		{
			name: "malformed body",
			body: `{"submission_id":`,
			sign: true,
			want: http.StatusBadRequest,
		},
		{
			name: "stale timestamp",
			body: `{"submission_id":123,"score":85,"max_score":100,"feedback":"","timestamp":"` + stale + `"}`,
			sign: true,
			want: http.StatusBadRequest,
		},
		{
			name: "unknown submission",
			body: `{"submission_id":999,"score":85,"max_score":100,"feedback":"","timestamp":"` + now + `"}`,
			sign: true,
			want: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEndToEnd(t)
			sig := ""
			if tt.sign {
				sig = signature.Compute([]byte(tt.body), testSecret)
			}
			assert.Equal(t, tt.want, e.post([]byte(tt.body), sig).Code)
		})
	}
}
