package store

import (
	"context"

	"gradegate/internal/signature"
)

// Store persists signature verification log records.
type Store interface {
	// Record appends one verification attempt. Records are never mutated.
	Record(ctx context.Context, rec signature.LogRecord) error

	// ListBySubmission returns all attempts for a subject id, oldest first.
	ListBySubmission(ctx context.Context, submissionID int64) ([]signature.LogRecord, error)
}
