package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gradegate/pkg/requestcontext"
)

// Recorder stamps, persists, and logs audit events. Persistence failures are
// logged but never surfaced: a delivery must not fail because its audit
// record could not be written.
type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a Recorder. A nil logger falls back to slog.Default().
func NewRecorder(store Store, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record persists one stage-transition event for submissionID. The actor and
// request id are taken from the context when present.
func (r *Recorder) Record(ctx context.Context, submissionID int64, eventType EventType, details map[string]any) {
	event := Event{
		ID:           uuid.New(),
		SubmissionID: submissionID,
		Type:         eventType,
		Details:      details,
		Actor:        requestcontext.Actor(ctx),
		RequestID:    requestcontext.RequestID(ctx),
		Timestamp:    r.now(),
	}

	if err := r.store.Append(ctx, event); err != nil {
		r.logger.ErrorContext(ctx, "failed to persist audit event",
			"submission_id", submissionID,
			"event_type", string(eventType),
			"error", err,
		)
		return
	}

	r.logger.InfoContext(ctx, "audit event recorded",
		"submission_id", submissionID,
		"event_type", string(eventType),
		"request_id", event.RequestID,
	)
}

// List returns the ordered trail for a submission.
func (r *Recorder) List(ctx context.Context, submissionID int64) ([]Event, error) {
	return r.store.ListBySubmission(ctx, submissionID)
}
