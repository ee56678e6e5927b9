// Package signature authenticates inbound webhook deliveries. The grading
// service signs the exact raw request body with a shared secret; anything
// that fails verification is rejected before the payload is even parsed.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	dErrors "gradegate/pkg/domain-errors"
)

// Distinct sentinel failures: a sender that forgot the header gets different
// log evidence than one presenting a wrong signature.
var (
	ErrMissingSignature  = errors.New("signature header missing")
	ErrSignatureMismatch = errors.New("signature mismatch")
)

// Compute returns the hex-encoded HMAC-SHA256 of body under secret.
func Compute(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the supplied signature against the HMAC of the raw body.
// Comparison must stay constant time (hmac.Equal, never ==).
func Verify(body []byte, signature, secret string) error {
	if signature == "" {
		return dErrors.Wrap(ErrMissingSignature, dErrors.CodeUnauthorized, "signature header missing")
	}

	expected := Compute(body, secret)
	provided := strings.ToLower(strings.TrimSpace(signature))
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return dErrors.Wrap(ErrSignatureMismatch, dErrors.CodeUnauthorized, "invalid signature")
	}
	return nil
}
