package config

import (
	"time"

	"gradegate/internal/ratelimit/models"
)

// ScopeLimit is one (limit, window) pair for a protected scope.
type ScopeLimit struct {
	Limit  int
	Window time.Duration
}

// Config holds per-scope admission limits plus the bypass identity list.
type Config struct {
	Scopes map[models.Scope]ScopeLimit

	// BypassIdentities skip rate limiting entirely (internal services,
	// operator hosts). Matched after key sanitization is NOT applied;
	// these are exact raw identities.
	BypassIdentities []string
}

// DefaultConfig mirrors the production deployment: the grading service may
// deliver up to 1000 results per hour per source IP, operators get 120
// requests per minute.
func DefaultConfig() *Config {
	return &Config{
		Scopes: map[models.Scope]ScopeLimit{
			models.ScopeWebhook: {Limit: 1000, Window: time.Hour},
			models.ScopeOps:     {Limit: 120, Window: time.Minute},
		},
	}
}

// GetLimit returns the configured pair for a scope, falling back to the
// webhook scope's limits for unknown scopes.
func (c *Config) GetLimit(scope models.Scope) (int, time.Duration) {
	if sl, ok := c.Scopes[scope]; ok {
		return sl.Limit, sl.Window
	}
	sl := c.Scopes[models.ScopeWebhook]
	return sl.Limit, sl.Window
}
