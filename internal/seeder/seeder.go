// Package seeder populates in-memory stores with demo data so the operator
// endpoints have something to show in local development. Never wired when a
// database is configured.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gradegate/internal/audit"
	"gradegate/internal/deadletter"
)

// Seeder writes demo records into the audit trail and failure sink.
type Seeder struct {
	trail  audit.Store
	sink   deadletter.Store
	logger *slog.Logger
}

// New creates a seeder.
func New(trail audit.Store, sink deadletter.Store, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{trail: trail, sink: sink, logger: logger}
}

// SeedAll populates all stores with demo data.
func (s *Seeder) SeedAll(ctx context.Context) error {
	s.logger.Info("seeding demo data...")

	if err := s.seedAuditTrails(ctx); err != nil {
		return fmt.Errorf("failed to seed audit trails: %w", err)
	}
	if err := s.seedFailedWebhooks(ctx); err != nil {
		return fmt.Errorf("failed to seed failed webhooks: %w", err)
	}

	s.logger.Info("demo data seeded successfully")
	return nil
}

// seedAuditTrails writes one complete trail and one that ended in an error.
func (s *Seeder) seedAuditTrails(ctx context.Context) error {
	base := time.Now().Add(-2 * time.Hour)

	complete := []audit.EventType{
		audit.EventReceived,
		audit.EventSignatureVerified,
		audit.EventReplayCheck,
		audit.EventSubmissionFound,
		audit.EventGradeApplied,
		audit.EventNotificationSent,
	}
	for i, typ := range complete {
		event := audit.Event{
			ID:           uuid.New(),
			SubmissionID: 1001,
			Type:         typ,
			RequestID:    "seed-complete",
			Timestamp:    base.Add(time.Duration(i) * time.Second),
		}
		if typ == audit.EventGradeApplied {
			event.Details = map[string]any{"score": 92.0, "max_score": 100.0}
		}
		if err := s.trail.Append(ctx, event); err != nil {
			return err
		}
	}

	failed := []audit.Event{
		{ID: uuid.New(), SubmissionID: 1002, Type: audit.EventReceived, RequestID: "seed-failed", Timestamp: base.Add(time.Minute)},
		{ID: uuid.New(), SubmissionID: 1002, Type: audit.EventSignatureVerified, RequestID: "seed-failed", Timestamp: base.Add(time.Minute + time.Second)},
		{ID: uuid.New(), SubmissionID: 1002, Type: audit.EventError, RequestID: "seed-failed", Timestamp: base.Add(time.Minute + 2*time.Second),
			Details: map[string]any{"stage": "grade_application", "code": "transient", "error": "core service unreachable"}},
	}
	for _, event := range failed {
		if err := s.trail.Append(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// seedFailedWebhooks writes one re-drivable record and one exhausted record.
func (s *Seeder) seedFailedWebhooks(ctx context.Context) error {
	lastRetry := time.Now().Add(-30 * time.Minute)

	records := []deadletter.FailedWebhook{
		{
			ID:           uuid.New(),
			SubmissionID: 1002,
			Payload:      json.RawMessage(`{"submission_id":1002,"score":78,"max_score":100,"feedback":"seeded pending record","timestamp":"` + time.Now().Add(-time.Hour).UTC().Format(time.RFC3339) + `"}`),
			Error:        "core service unreachable",
			IsTransient:  true,
			Status:       deadletter.StatusPending,
			RetryCount:   1,
			LastRetryAt:  &lastRetry,
		},
		{
			ID:           uuid.New(),
			SubmissionID: 1003,
			Payload:      json.RawMessage(`{"submission_id":1003,"score":55,"max_score":100,"feedback":"seeded exhausted record","timestamp":"` + time.Now().Add(-3*time.Hour).UTC().Format(time.RFC3339) + `"}`),
			Error:        "assignment closed for grading",
			IsTransient:  false,
			Status:       deadletter.StatusFailed,
			RetryCount:   deadletter.MaxRetries,
			LastRetryAt:  &lastRetry,
		},
	}
	for _, record := range records {
		if err := s.sink.Record(ctx, record); err != nil {
			return err
		}
	}
	return nil
}
