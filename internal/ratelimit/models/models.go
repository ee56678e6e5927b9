package models

import "time"

// Scope identifies a protected route class. Each scope carries its own
// (limit, window) pair so admission decisions for different surfaces never
// interfere.
type Scope string

const (
	// ScopeWebhook covers the grading webhook endpoint, keyed by source IP.
	ScopeWebhook Scope = "webhook"
	// ScopeOps covers the operator endpoints, keyed by operator identity.
	ScopeOps Scope = "ops"
)

func (s Scope) IsValid() bool {
	switch s {
	case ScopeWebhook, ScopeOps:
		return true
	}
	return false
}

// Result is the outcome of one admission-control decision, carrying
// everything the transport layer needs for X-RateLimit-* headers.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}
