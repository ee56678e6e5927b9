package models

import (
	"fmt"
	"strings"
)

// Key is a value object encapsulating rate limit bucket key construction.
// It centralizes format and sanitization so user-controlled identifiers
// containing the delimiter cannot collide with adjacent buckets.
type Key struct {
	scope    Scope
	identity string
}

// NewKey creates a bucket key for a (scope, identity) pair.
func NewKey(scope Scope, identity string) Key {
	return Key{scope: scope, identity: sanitizeKeySegment(identity)}
}

// String returns the formatted key for storage lookup.
func (k Key) String() string {
	return fmt.Sprintf("ratelimit:%s:%s", k.scope, k.identity)
}

// sanitizeKeySegment escapes delimiter characters in key segments.
//
// Escape rules (order matters):
//  1. '_' -> '__' (escape the escape character first)
//  2. ':' -> '_c' (escape the delimiter)
//
// No two distinct inputs produce the same sanitized output.
func sanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
