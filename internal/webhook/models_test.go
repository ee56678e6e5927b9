package webhook

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "gradegate/pkg/domain-errors"
)

func validBody(t *testing.T) []byte {
	t.Helper()
	return []byte(`{"submission_id":123,"score":85,"max_score":100,"feedback":"2 passed, 1 failed","timestamp":"2026-03-01T12:00:00Z"}`)
}

func TestParsePayloadValid(t *testing.T) {
	p, err := ParsePayload(validBody(t))
	require.NoError(t, err)

	assert.Equal(t, int64(123), p.SubmissionID)
	assert.Equal(t, 85.0, p.Score)
	assert.Equal(t, 100.0, p.MaxScore)
	assert.Equal(t, "2 passed, 1 failed", p.Feedback)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), p.ParsedTimestamp())
}

func TestParsePayloadRejections(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"submission_id":`},
		{"missing submission_id", `{"score":85,"max_score":100,"feedback":"","timestamp":"2026-03-01T12:00:00Z"}`},
		{"negative submission_id", `{"submission_id":-1,"score":85,"max_score":100,"feedback":"","timestamp":"2026-03-01T12:00:00Z"}`},
		{"zero max_score", `{"submission_id":123,"score":0,"max_score":0,"feedback":"","timestamp":"2026-03-01T12:00:00Z"}`},
		{"negative score", `{"submission_id":123,"score":-1,"max_score":100,"feedback":"","timestamp":"2026-03-01T12:00:00Z"}`},
		{"score above max", `{"submission_id":123,"score":101,"max_score":100,"feedback":"","timestamp":"2026-03-01T12:00:00Z"}`},
		{"missing timestamp", `{"submission_id":123,"score":85,"max_score":100,"feedback":""}`},
		{"non-rfc3339 timestamp", `{"submission_id":123,"score":85,"max_score":100,"feedback":"","timestamp":"yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tt.body))
			require.Error(t, err)
			assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err))
		})
	}
}

func TestParsePayloadRejectsOversizedFeedback(t *testing.T) {
	body := `{"submission_id":123,"score":85,"max_score":100,"feedback":"` +
		strings.Repeat("a", maxFeedbackLength+1) +
		`","timestamp":"2026-03-01T12:00:00Z"}`

	_, err := ParsePayload([]byte(body))
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeValidation, dErrors.CodeOf(err))
}

func TestParsePayloadAllowsFullMarks(t *testing.T) {
	body := `{"submission_id":123,"score":100,"max_score":100,"feedback":"perfect","timestamp":"2026-03-01T12:00:00Z"}`
	_, err := ParsePayload([]byte(body))
	assert.NoError(t, err)
}

func TestPeekSubmissionID(t *testing.T) {
	assert.Equal(t, int64(123), peekSubmissionID(validBody(t)))
	assert.Zero(t, peekSubmissionID([]byte(`not json`)))
	assert.Zero(t, peekSubmissionID([]byte(`{}`)))
}
