package signature

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

// LogRecord is an immutable record of one verification attempt, kept for
// forensics: repeated invalid signatures from one address are the first sign
// of a forgery attempt.
type LogRecord struct {
	ID           uuid.UUID `json:"id"`
	SubmissionID int64     `json:"submission_id"`
	Signature    string    `json:"signature"`
	IsValid      bool      `json:"is_valid"`
	RemoteIP     string    `json:"remote_ip"`
	UserAgent    string    `json:"user_agent"`
	AgentKind    string    `json:"agent_kind"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewLogRecord builds a record for one verification attempt.
func NewLogRecord(submissionID int64, sig string, valid bool, remoteIP, ua string) LogRecord {
	return LogRecord{
		ID:           uuid.New(),
		SubmissionID: submissionID,
		Signature:    sig,
		IsValid:      valid,
		RemoteIP:     remoteIP,
		UserAgent:    ua,
		AgentKind:    classifyAgent(ua),
		CreatedAt:    time.Now().UTC(),
	}
}

// classifyAgent buckets the User-Agent for dashboard filtering. The grading
// service identifies itself with a plain HTTP client; a browser UA on this
// endpoint is suspicious on its own.
func classifyAgent(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return "unknown"
	}

	parsed := useragent.New(ua)
	if parsed.Bot() {
		return "bot"
	}
	if browser, _ := parsed.Browser(); browser != "" && parsed.OS() != "" {
		return "browser"
	}
	return "service"
}
