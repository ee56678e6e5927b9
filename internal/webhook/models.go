// Package webhook implements the grading-result ingestion pipeline: signature
// verification, replay protection, payload validation, and the audited state
// machine that applies grades through external collaborators.
package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	dErrors "gradegate/pkg/domain-errors"
)

// maxFeedbackLength bounds the free-text field so a hostile sender cannot
// stuff megabytes of text into the grade store.
const maxFeedbackLength = 10_000

// GradePayload is the body of one grading-result delivery.
type GradePayload struct {
	SubmissionID int64   `json:"submission_id"`
	Score        float64 `json:"score"`
	MaxScore     float64 `json:"max_score"`
	Feedback     string  `json:"feedback"`
	Timestamp    string  `json:"timestamp"`

	parsedTimestamp time.Time
}

// ParsePayload decodes and validates a raw delivery body.
func ParsePayload(raw []byte) (*GradePayload, error) {
	var p GradePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed JSON body")
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *GradePayload) validate() error {
	if p.SubmissionID <= 0 {
		return dErrors.New(dErrors.CodeValidation, "submission_id is required and must be positive")
	}
	if p.MaxScore <= 0 {
		return dErrors.New(dErrors.CodeValidation, "max_score must be positive")
	}
	if p.Score < 0 || p.Score > p.MaxScore {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("score %.2f is outside [0, %.2f]", p.Score, p.MaxScore))
	}
	if len(p.Feedback) > maxFeedbackLength {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("feedback exceeds %d characters", maxFeedbackLength))
	}
	if p.Timestamp == "" {
		return dErrors.New(dErrors.CodeValidation, "timestamp is required")
	}
	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "timestamp must be RFC 3339")
	}
	p.parsedTimestamp = ts
	return nil
}

// ParsedTimestamp returns the validated delivery timestamp.
func (p *GradePayload) ParsedTimestamp() time.Time {
	return p.parsedTimestamp
}

// peekSubmissionID extracts the subject id from a possibly invalid body so
// rejections can still be keyed in the audit trail. Returns 0 when the body
// is unparseable.
func peekSubmissionID(raw []byte) int64 {
	var probe struct {
		SubmissionID int64 `json:"submission_id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return 0
	}
	return probe.SubmissionID
}
