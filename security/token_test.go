package security

import (
	"encoding/hex"
	"testing"
)

func TestGenerateTokenLength(t *testing.T) {
	token := GenerateToken()
	if len(token) != TokenLength {
		t.Errorf("got length %d, want %d", len(token), TokenLength)
	}
}

func TestGenerateTokenIsHex(t *testing.T) {
	token := GenerateToken()
	if _, err := hex.DecodeString(token); err != nil {
		t.Errorf("token %q is not hex: %v", token, err)
	}
}

func TestGenerateTokenUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token := GenerateToken()
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}

func TestGenerateClientCredentials(t *testing.T) {
	id := GenerateClientID()
	secret := GenerateClientSecret()

	if len(id) != TokenLength {
		t.Errorf("client ID length %d, want %d", len(id), TokenLength)
	}
	if len(secret) != TokenLength {
		t.Errorf("client secret length %d, want %d", len(secret), TokenLength)
	}
	if id == secret {
		t.Error("client ID and secret should differ")
	}
}
