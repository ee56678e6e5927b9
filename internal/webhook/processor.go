package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gradegate/internal/audit"
	"gradegate/internal/deadletter"
	"gradegate/internal/replay"
	"gradegate/internal/signature"
	sigstore "gradegate/internal/signature/store"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/circuit"
	"gradegate/pkg/platform/retry"
	"gradegate/pkg/requestcontext"
)

// Processor drives one delivery through the pipeline stages, recording
// exactly one audit event per transition. It is the only component that
// talks to the external submission, grading, and notification collaborators.
type Processor struct {
	secret      string
	sigLog      sigstore.Store
	guard       *replay.Guard
	recorder    *audit.Recorder
	submissions SubmissionStore
	applier     GradingApplier
	notifier    Notifier
	sink        deadletter.Store
	executor    *retry.Executor
	retryCfg    retry.Config
	breaker     *circuit.Breaker
	logger      *slog.Logger
	tracer      trace.Tracer
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRetryConfig overrides the grade-application retry policy.
func WithRetryConfig(cfg retry.Config) ProcessorOption {
	return func(p *Processor) {
		p.retryCfg = cfg
	}
}

// WithNotifier attaches the best-effort notification collaborator.
func WithNotifier(n Notifier) ProcessorOption {
	return func(p *Processor) {
		p.notifier = n
	}
}

// WithBreaker overrides the notification circuit breaker.
func WithBreaker(b *circuit.Breaker) ProcessorOption {
	return func(p *Processor) {
		if b != nil {
			p.breaker = b
		}
	}
}

// WithExecutor overrides the retry executor, used by tests to skip backoff.
func WithExecutor(e *retry.Executor) ProcessorOption {
	return func(p *Processor) {
		if e != nil {
			p.executor = e
		}
	}
}

// WithTracer overrides the tracer.
func WithTracer(t trace.Tracer) ProcessorOption {
	return func(p *Processor) {
		if t != nil {
			p.tracer = t
		}
	}
}

// NewProcessor wires the pipeline. All collaborators except the notifier are
// required; a nil logger falls back to slog.Default().
func NewProcessor(
	secret string,
	sigLog sigstore.Store,
	guard *replay.Guard,
	recorder *audit.Recorder,
	submissions SubmissionStore,
	applier GradingApplier,
	sink deadletter.Store,
	logger *slog.Logger,
	opts ...ProcessorOption,
) (*Processor, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	if sigLog == nil || guard == nil || recorder == nil || sink == nil {
		return nil, fmt.Errorf("signature log, replay guard, audit recorder, and failure sink are required")
	}
	if submissions == nil || applier == nil {
		return nil, fmt.Errorf("submission store and grading applier are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Processor{
		secret:      secret,
		sigLog:      sigLog,
		guard:       guard,
		recorder:    recorder,
		submissions: submissions,
		applier:     applier,
		sink:        sink,
		executor:    retry.New(logger),
		retryCfg:    retry.DefaultConfig(),
		breaker:     circuit.New("notifier"),
		logger:      logger,
		tracer:      otel.Tracer("gradegate/webhook"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process runs one delivery through the state machine. A nil return means the
// delivery was accepted (202); grade application may still be completing or
// may have been parked in the failure sink for re-drive. Errors carry domain
// codes that map onto the synchronous rejection statuses.
func (p *Processor) Process(ctx context.Context, rawBody []byte, sigHeader string) error {
	submissionID := peekSubmissionID(rawBody)

	ctx, span := p.tracer.Start(ctx, "webhook.process",
		trace.WithAttributes(attribute.Int64("submission.id", submissionID)))
	var outcome error
	defer func() { endSpan(span, outcome) }()

	p.recorder.Record(ctx, submissionID, audit.EventReceived, map[string]any{
		"remote_ip": requestcontext.ClientIP(ctx),
	})

	if err := p.verifySignature(ctx, submissionID, rawBody, sigHeader); err != nil {
		outcome = err
		return outcome
	}
	p.recorder.Record(ctx, submissionID, audit.EventSignatureVerified, nil)

	payload, err := ParsePayload(rawBody)
	if err != nil {
		p.auditError(ctx, submissionID, "validation", err)
		outcome = err
		return outcome
	}
	submissionID = payload.SubmissionID

	if err := p.guard.Check(ctx, payload.SubmissionID, payload.ParsedTimestamp()); err != nil {
		p.auditError(ctx, submissionID, "replay_guard", err)
		outcome = err
		return outcome
	}
	p.recorder.Record(ctx, submissionID, audit.EventReplayCheck, map[string]any{
		"timestamp": payload.Timestamp,
	})

	submission, err := p.submissions.GetByID(ctx, payload.SubmissionID)
	if err != nil {
		// Release the dedup marker so a corrected redelivery is not
		// rejected as a replay. The lookup may have failed because the
		// request deadline expired, so the release runs detached from it.
		p.guard.Forget(context.WithoutCancel(ctx), payload.SubmissionID)
		err = dErrors.Wrap(err, dErrors.CodeNotFound, "submission lookup failed")
		p.auditError(ctx, submissionID, "submission_lookup", err)
		outcome = err
		return outcome
	}
	p.recorder.Record(ctx, submissionID, audit.EventSubmissionFound, map[string]any{
		"assignment_id": submission.AssignmentID,
	})

	// The delivery is accepted from here on: apply failures flow into the
	// failure sink instead of back to the sender.
	applied, err := p.applyGrade(ctx, submission, payload, rawBody)
	if err != nil {
		outcome = err
		return outcome
	}

	// A parked delivery carries no applied grade to announce; notification
	// happens when the re-drive eventually succeeds.
	if applied {
		p.notify(ctx, submission, payload)
	}
	return nil
}

// Apply re-runs grade application for a previously accepted payload. The
// trust checks are skipped: the delivery already passed them when it was
// first accepted. Used by the re-drive worker and the manual retry endpoint.
func (p *Processor) Apply(ctx context.Context, raw json.RawMessage) error {
	payload, err := ParsePayload(raw)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePermanent, "parked payload no longer parses")
	}

	submission, err := p.submissions.GetByID(ctx, payload.SubmissionID)
	if err != nil {
		return err
	}

	if err := p.applier.Apply(ctx, submission, payload.Score, payload.MaxScore, payload.Feedback); err != nil {
		return err
	}

	p.recorder.Record(ctx, payload.SubmissionID, audit.EventGradeApplied, map[string]any{
		"score":     payload.Score,
		"max_score": payload.MaxScore,
		"redriven":  true,
	})
	p.notify(ctx, submission, payload)
	return nil
}

func (p *Processor) verifySignature(ctx context.Context, submissionID int64, rawBody []byte, sigHeader string) error {
	verifyErr := signature.Verify(rawBody, sigHeader, p.secret)

	rec := signature.NewLogRecord(submissionID, sigHeader, verifyErr == nil,
		requestcontext.ClientIP(ctx), requestcontext.UserAgent(ctx))
	if err := p.sigLog.Record(ctx, rec); err != nil {
		p.logger.ErrorContext(ctx, "failed to persist signature log record",
			"submission_id", submissionID,
			"error", err,
		)
	}

	if verifyErr != nil {
		p.auditError(ctx, submissionID, "signature_verification", verifyErr)
		return verifyErr
	}
	return nil
}

// applyGrade invokes the grading applier through the retry executor. On
// exhaustion or a permanent error the payload is parked in the failure sink
// and the delivery still counts as accepted; applied reports whether the
// grade actually landed.
func (p *Processor) applyGrade(ctx context.Context, submission *Submission, payload *GradePayload, rawBody []byte) (applied bool, err error) {
	invoked := false
	applyErr := p.executor.Do(ctx, p.retryCfg, "apply_grade", func(ctx context.Context) error {
		invoked = true
		return p.applier.Apply(ctx, submission, payload.Score, payload.MaxScore, payload.Feedback)
	})
	if applyErr == nil {
		p.recorder.Record(ctx, payload.SubmissionID, audit.EventGradeApplied, map[string]any{
			"score":     payload.Score,
			"max_score": payload.MaxScore,
		})
		return true, nil
	}

	// When the apply failed because the request deadline expired, ctx is
	// already done and every context-honoring store would refuse the writes
	// below. The park and the marker release must still land, or the grade
	// is lost: not parked for re-drive, and the redelivery hits the marker.
	cleanup := context.WithoutCancel(ctx)

	p.auditError(cleanup, payload.SubmissionID, "grade_application", applyErr)

	// Abandoned before the applier ever ran: nothing was attempted, so there
	// is nothing to re-drive. The sender will redeliver.
	if !invoked {
		p.guard.Forget(cleanup, payload.SubmissionID)
		return false, applyErr
	}

	record := deadletter.FailedWebhook{
		ID:           uuid.New(),
		SubmissionID: payload.SubmissionID,
		Payload:      json.RawMessage(rawBody),
		Error:        applyErr.Error(),
		IsTransient:  dErrors.IsTransient(applyErr),
		Status:       deadletter.StatusPending,
	}
	if err := p.sink.Record(cleanup, record); err != nil {
		p.logger.ErrorContext(ctx, "failed to park delivery in failure sink",
			"submission_id", payload.SubmissionID,
			"error", err,
		)
		// Could not even park it. Surface a retryable failure so the
		// sender delivers again; the marker must not block that.
		p.guard.Forget(cleanup, payload.SubmissionID)
		return false, dErrors.Wrap(err, dErrors.CodeTransient, "delivery could not be parked for re-drive")
	}

	p.logger.WarnContext(ctx, "grade application parked for re-drive",
		"submission_id", payload.SubmissionID,
		"record_id", record.ID,
		"transient", record.IsTransient,
		"error", applyErr,
	)
	return false, nil
}

// notify dispatches the best-effort notification behind the circuit breaker.
// Failures never affect the delivery outcome.
func (p *Processor) notify(ctx context.Context, submission *Submission, payload *GradePayload) {
	if p.notifier == nil {
		p.recorder.Record(ctx, payload.SubmissionID, audit.EventNotificationSent, map[string]any{
			"delivered": false,
			"reason":    "not_configured",
		})
		return
	}
	if !p.breaker.Allow() {
		p.logger.WarnContext(ctx, "notification skipped, circuit open",
			"submission_id", payload.SubmissionID,
		)
		p.recorder.Record(ctx, payload.SubmissionID, audit.EventNotificationSent, map[string]any{
			"delivered": false,
			"reason":    "circuit_open",
		})
		return
	}

	if err := p.notifier.Notify(ctx, submission, payload.Score, payload.MaxScore); err != nil {
		if opened := p.breaker.RecordFailure(); opened {
			p.logger.ErrorContext(ctx, "notification circuit opened",
				"breaker", p.breaker.Name(),
			)
		}
		p.logger.WarnContext(ctx, "notification dispatch failed",
			"submission_id", payload.SubmissionID,
			"error", err,
		)
		p.recorder.Record(ctx, payload.SubmissionID, audit.EventNotificationSent, map[string]any{
			"delivered": false,
			"error":     err.Error(),
		})
		return
	}

	p.breaker.RecordSuccess()
	p.recorder.Record(ctx, payload.SubmissionID, audit.EventNotificationSent, map[string]any{
		"delivered": true,
	})
}

// auditError records the terminal error event. It detaches from any request
// deadline: the trail must show how a delivery ended even when the ending was
// the deadline itself.
func (p *Processor) auditError(ctx context.Context, submissionID int64, stage string, err error) {
	p.recorder.Record(context.WithoutCancel(ctx), submissionID, audit.EventError, map[string]any{
		"stage": stage,
		"code":  string(dErrors.CodeOf(err)),
		"error": err.Error(),
	})
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}
