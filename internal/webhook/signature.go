package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the header Meta signs webhook deliveries with.
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

// VerifySignature checks an X-Hub-Signature-256 value against the exact raw
// request body. The comparison is constant-time; length mismatches reject
// immediately. False on a missing header, a missing sha256= prefix, a
// non-hex digest, or any byte mismatch.
func VerifySignature(secret string, header string, body []byte) bool {
	if secret == "" || strings.TrimSpace(header) == "" {
		return false
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	providedHex := strings.TrimPrefix(header, signaturePrefix)
	providedSig, err := hex.DecodeString(providedHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expectedSig := mac.Sum(nil)
	return hmac.Equal(expectedSig, providedSig)
}

// VerifyToken compares the subscription-handshake verify token in constant
// time. Used once per webhook subscription, not per delivery.
func VerifyToken(expected, received string) bool {
	if expected == "" {
		return false
	}
	if len(expected) != len(received) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
