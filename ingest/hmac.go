package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// ComputeSignature returns the hex-encoded HMAC-SHA256 digest of body under
// the shared secret. This is the value webhook producers must send.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a header-supplied signature against the digest of
// the raw body. The comparison is constant-time; a missing, truncated or
// corrupted signature fails verification.
func VerifySignature(body []byte, secret, provided string) bool {
	if provided == "" {
		return false
	}
	supplied, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), supplied)
}
