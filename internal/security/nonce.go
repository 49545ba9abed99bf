package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// nonceBytes is the entropy per CSP nonce. 16 bytes gives 128 bits, which
// matches the CSP specification's recommendation.
const nonceBytes = 16

// NewNonce returns a fresh base64-encoded CSP nonce.
func NewNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating csp nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
