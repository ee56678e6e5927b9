package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyString(t *testing.T) {
	k := NewKey(ScopeWebhook, "203.0.113.7")
	assert.Equal(t, "ratelimit:webhook:203.0.113.7", k.String())
}

func TestKeySanitizationPreventsCollisions(t *testing.T) {
	// Distinct raw identities must never map to the same bucket key.
	a := NewKey(ScopeWebhook, "user:admin")
	b := NewKey(ScopeWebhook, "user_cadmin")
	c := NewKey(ScopeWebhook, "user_:admin")

	assert.NotEqual(t, a.String(), b.String())
	assert.NotEqual(t, a.String(), c.String())
	assert.NotEqual(t, b.String(), c.String())
}
