package notify

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the HMAC signature on every delivery. Receivers
// recompute the digest over the raw body and compare with Verify.
const SignatureHeader = "X-Voicebridge-Signature-256"

const signaturePrefix = "sha256="

// Sign produces the delivery signature: "sha256=" followed by the hex
// HMAC-SHA256 of the payload under the endpoint secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify is the receiver-side check: it recomputes the payload signature and
// compares in constant time.
func Verify(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(signature))
}

// GenerateSecret returns a cryptographically random 32-byte hex string used
// as a new endpoint's signing secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
