// Package deadletter is the failure sink: deliveries that passed the trust
// checks but could not be fully processed land here for retry or operator
// review. Rejections resolved synchronously (bad signature, stale timestamp,
// replay, validation) never reach this package.
package deadletter

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MaxRetries caps automated re-drive attempts per record. The counter never
// moves past this value; further attempts are operator-initiated only.
const MaxRetries = 3

// Status is the lifecycle state of a failed webhook record.
type Status string

const (
	// StatusPending is awaiting re-drive.
	StatusPending Status = "pending"
	// StatusProcessing is claimed by a re-drive worker.
	StatusProcessing Status = "processing"
	// StatusFailed has exhausted automated retries or failed permanently.
	StatusFailed Status = "failed"
	// StatusSuccess was eventually applied.
	StatusSuccess Status = "success"
)

// FailedWebhook is one delivery that could not be processed. Payload holds
// the raw request body so a re-drive replays exactly what the sender sent.
type FailedWebhook struct {
	ID           uuid.UUID
	SubmissionID int64
	Payload      json.RawMessage
	Error        string
	IsTransient  bool
	Status       Status
	RetryCount   int
	LastRetryAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanRetry reports whether automated re-drive may pick this record up.
// Permanent failures are excluded; operators can still retry them manually.
func (f *FailedWebhook) CanRetry() bool {
	return f.Status == StatusPending && f.IsTransient && f.RetryCount < MaxRetries
}
