package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenLength is the length in characters of generated opaque values
// (access tokens, refresh tokens, authorization codes).
const TokenLength = 64

// GenerateToken produces an opaque hex-encoded value of TokenLength
// characters from a cryptographically secure source.
func GenerateToken() string {
	b := make([]byte, TokenLength/2)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure means the process has no usable entropy source.
		panic(fmt.Sprintf("security: failed to read random bytes: %v", err))
	}
	return hex.EncodeToString(b)
}

// GenerateClientID produces an opaque client identifier for administrative
// client provisioning.
func GenerateClientID() string {
	return GenerateToken()
}

// GenerateClientSecret produces an opaque client secret. Store only its
// bcrypt hash (see HashClientSecret).
func GenerateClientSecret() string {
	return GenerateToken()
}
