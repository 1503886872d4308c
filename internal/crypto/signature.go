package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SignPayload returns the hex HMAC-SHA256 of payload under secret
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature over the raw payload.
// It fails closed: an empty secret or signature, or a length mismatch, is a failed check.
// The payload must be the bytes exactly as received, not a re-serialized form.
func VerifySignature(payload []byte, signature string, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}

	expected := []byte(SignPayload(payload, secret))
	provided := []byte(signature)

	// ConstantTimeCompare returns early on length mismatch, which only leaks the length
	if len(expected) != len(provided) {
		return false
	}
	return subtle.ConstantTimeCompare(expected, provided) == 1
}

// FirstSignature picks the signature from a possibly repeated header.
// Returns "" when the header is absent or carries no values.
func FirstSignature(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
