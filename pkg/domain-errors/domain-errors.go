package domainerrors

import "errors"

// Code represents a failure category independent of the transport layer.
// The webhook pipeline classifies every failure into exactly one of these,
// so downstream policy (retry, dead-letter, HTTP status) is a total function
// over a closed set instead of string or type-name inspection.
type Code string

const (
	// CodeUnauthorized covers a missing or mismatched request signature.
	CodeUnauthorized Code = "unauthorized"
	// CodeStaleTimestamp covers an embedded timestamp older than the replay max age.
	CodeStaleTimestamp Code = "stale_timestamp"
	// CodeReplay covers a duplicate delivery inside the dedup window.
	CodeReplay Code = "replay_detected"
	// CodeValidation covers malformed payloads and missing required fields.
	CodeValidation Code = "validation_failed"
	// CodeNotFound covers a subject id unknown to the submission store.
	CodeNotFound Code = "not_found"
	// CodeRateLimited covers admission-control rejections. Never retried.
	CodeRateLimited Code = "rate_limited"
	// CodeTransient covers failures that may resolve on their own: network
	// errors, timeouts, downstream 5xx, recoverable storage errors.
	CodeTransient Code = "transient"
	// CodePermanent covers failures that will not resolve by retrying,
	// such as business-rule rejections inside the grading applier.
	CodePermanent Code = "permanent"
	// CodeTimeout covers an abandoned request deadline.
	CodeTimeout Code = "timeout"
	// CodeInternal covers unexpected infrastructure failures.
	CodeInternal Code = "internal_error"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and usable across handler, service, and store layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf extracts the domain code from an error chain.
// Unclassified errors report CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsTransient reports whether an error is safe to retry. Timeouts count as
// transient: the downstream operation may succeed once pressure subsides.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeTransient, CodeTimeout:
		return true
	}
	return false
}
