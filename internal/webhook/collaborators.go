package webhook

//go:generate mockgen -source=collaborators.go -destination=mocks/mocks.go -package=mocks SubmissionStore,GradingApplier,Notifier

import (
	"context"
)

// Submission is the minimal view of a student submission the pipeline needs.
type Submission struct {
	ID           int64
	AssignmentID int64
	StudentID    int64
}

// SubmissionStore resolves subject ids against the system of record.
type SubmissionStore interface {
	// GetByID returns the submission, or an error carrying CodeNotFound.
	GetByID(ctx context.Context, id int64) (*Submission, error)
}

// GradingApplier turns a validated grading result into a persisted score.
// Errors must carry a transient or permanent domain code so the pipeline
// can decide between retry and dead-letter.
type GradingApplier interface {
	Apply(ctx context.Context, submission *Submission, score, maxScore float64, feedback string) error
}

// Notifier tells the student their grade landed. Best effort only.
type Notifier interface {
	Notify(ctx context.Context, submission *Submission, score, maxScore float64) error
}
