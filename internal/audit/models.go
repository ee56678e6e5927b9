// Package audit records one event per pipeline stage transition so operators
// can reconstruct exactly what happened to a delivery after the fact.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a pipeline stage transition.
type EventType string

const (
	EventReceived          EventType = "received"
	EventSignatureVerified EventType = "signature_verified"
	EventReplayCheck       EventType = "replay_check"
	EventSubmissionFound   EventType = "submission_found"
	EventGradeApplied      EventType = "grade_applied"
	EventNotificationSent  EventType = "notification_sent"
	EventError             EventType = "error"
)

// Event is one append-only audit record. Details holds stage-specific
// context (scores, error text, retry counts) and is stored as jsonb.
type Event struct {
	ID           uuid.UUID
	SubmissionID int64
	Type         EventType
	Details      map[string]any
	Actor        string
	RequestID    string
	Timestamp    time.Time
}
