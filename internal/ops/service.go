// Package ops exposes the operator surface: inspecting the failure sink,
// manually re-driving parked deliveries, and reading audit trails.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"gradegate/internal/audit"
	"gradegate/internal/deadletter"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/requestcontext"
)

// Applier re-applies one parked payload. Satisfied by the webhook processor.
type Applier interface {
	Apply(ctx context.Context, payload json.RawMessage) error
}

// Service implements the operator operations over the failure sink and the
// audit trail.
type Service struct {
	sink     deadletter.Store
	trail    audit.Store
	applier  Applier
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewService wires the operator service.
func NewService(sink deadletter.Store, trail audit.Store, applier Applier, recorder *audit.Recorder, logger *slog.Logger) (*Service, error) {
	if sink == nil || trail == nil || applier == nil || recorder == nil {
		return nil, fmt.Errorf("failure sink, audit store, applier, and recorder are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{sink: sink, trail: trail, applier: applier, recorder: recorder, logger: logger}, nil
}

// ListFailed returns failure-sink records, optionally filtered by status.
func (s *Service) ListFailed(ctx context.Context, status deadletter.Status, limit int) ([]deadletter.FailedWebhook, error) {
	switch status {
	case "", deadletter.StatusPending, deadletter.StatusProcessing, deadletter.StatusFailed, deadletter.StatusSuccess:
	default:
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown status %q", status))
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.sink.List(ctx, status, limit)
}

// Retry re-drives one record on operator demand. Unlike the automated
// worker, it may pick up permanently failed records: the operator has
// presumably fixed whatever the grading applier objected to.
func (s *Service) Retry(ctx context.Context, id uuid.UUID) (*deadletter.FailedWebhook, error) {
	record, err := s.sink.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch record.Status {
	case deadletter.StatusSuccess:
		return nil, dErrors.New(dErrors.CodeValidation, "record is already resolved")
	case deadletter.StatusProcessing:
		return nil, dErrors.New(dErrors.CodeValidation, "record is being re-driven")
	}

	// The claim is the race fence against the automated re-drive worker: the
	// status check above could go stale between Get and Apply.
	claimed, err := s.sink.Claim(ctx, id, record.Status)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, dErrors.New(dErrors.CodeValidation, "record was claimed by another re-driver")
	}

	actor := requestcontext.Actor(ctx)
	s.logger.InfoContext(ctx, "manual retry requested",
		"record_id", id,
		"submission_id", record.SubmissionID,
		"actor", actor,
	)

	if applyErr := s.applier.Apply(ctx, record.Payload); applyErr != nil {
		updated, err := s.sink.IncrementRetry(ctx, id, applyErr.Error(), dErrors.IsTransient(applyErr))
		if err != nil {
			return nil, err
		}
		s.recorder.Record(ctx, record.SubmissionID, audit.EventError, map[string]any{
			"stage":  "manual_retry",
			"error":  applyErr.Error(),
			"record": id.String(),
		})
		return updated, dErrors.Wrap(applyErr, dErrors.CodeInternal, "manual retry failed")
	}

	if err := s.sink.MarkSuccess(ctx, id); err != nil {
		return nil, err
	}
	return s.sink.Get(ctx, id)
}

// AuditTrail returns the ordered event trail for one submission.
func (s *Service) AuditTrail(ctx context.Context, submissionID int64) ([]audit.Event, error) {
	if submissionID <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "submission id must be positive")
	}
	return s.trail.ListBySubmission(ctx, submissionID)
}
