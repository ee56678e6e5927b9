package deadletter

import (
	"context"

	"github.com/google/uuid"

	dErrors "gradegate/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")

// Store persists failed webhook records.
type Store interface {
	// Record inserts a new failure.
	Record(ctx context.Context, record FailedWebhook) error

	// Get returns a record by id, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*FailedWebhook, error)

	// List returns records filtered by status; an empty status returns all,
	// newest first.
	List(ctx context.Context, status Status, limit int) ([]FailedWebhook, error)

	// Claim atomically moves a record from the given status to processing
	// and reports whether this caller won. Two concurrent re-drivers must
	// never both claim the same record.
	Claim(ctx context.Context, id uuid.UUID, from Status) (bool, error)

	// IncrementRetry records a failed re-drive attempt: bumps the counter
	// (capped at MaxRetries), stamps LastRetryAt, and returns the record to
	// pending, or to failed when the cap is reached or transient is false.
	IncrementRetry(ctx context.Context, id uuid.UUID, cause string, transient bool) (*FailedWebhook, error)

	// MarkSuccess resolves the record after a successful re-drive.
	MarkSuccess(ctx context.Context, id uuid.UUID) error
}
