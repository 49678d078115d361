package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashClientSecret hashes a client secret for storage.
func HashClientSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}
	return string(hash), nil
}

// CompareClientSecret verifies a supplied secret against a stored hash.
// bcrypt's comparison is constant-time-equivalent, so mismatches do not leak
// timing information about the stored secret.
func CompareClientSecret(hash, secret string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}
