// Package testutil provides testing utilities and fixtures for the
// oauth2-provider library.
package testutil

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/bentlogic/oauth2-provider/security"
	"github.com/bentlogic/oauth2-provider/storage"
)

// TestClientSecret is the plaintext secret used by GenerateTestClient.
const TestClientSecret = "secret"

// GenerateTestClient creates a registered test client whose secret hash
// matches TestClientSecret and whose sole redirect URI is the given one (or
// the default callback when none is supplied).
func GenerateTestClient(redirectURIs ...string) *storage.Client {
	if len(redirectURIs) == 0 {
		redirectURIs = []string{"https://example.com/callback"}
	}
	hash, err := security.HashClientSecret(TestClientSecret)
	if err != nil {
		panic(err)
	}
	return &storage.Client{
		ClientID:         security.GenerateClientID(),
		ClientSecretHash: hash,
		RedirectURIs:     redirectURIs,
		CreatedAt:        time.Now(),
	}
}

// GenerateTestCode creates an unexpired authorization code bound to the
// given client.
func GenerateTestCode(clientID, userID, redirectURI string) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:        security.GenerateToken(),
		ClientID:    clientID,
		UserID:      userID,
		RedirectURI: redirectURI,
		ExpiresIn:   600,
		CreatedAt:   time.Now(),
	}
}

// GenerateTestToken creates an unexpired token pair bound to the given
// client and owner.
func GenerateTestToken(clientID, userID string) *storage.Token {
	return &storage.Token{
		AccessToken:  security.GenerateToken(),
		RefreshToken: security.GenerateToken(),
		UserID:       userID,
		ClientID:     clientID,
		ExpiresIn:    3600,
		CreatedAt:    time.Now(),
	}
}

// BasicAuth builds a Basic authentication header value for the given
// credentials.
func BasicAuth(clientID, clientSecret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(clientID+":"+clientSecret))
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertNotEqual fails the test if got == want
func AssertNotEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got == want {
		t.Errorf("got %v, want different value", got)
	}
}

// AssertStringContains fails the test if s does not contain substr
func AssertStringContains(t *testing.T, s, substr string) {
	t.Helper()
	if len(s) == 0 {
		t.Errorf("string is empty, expected to contain %q", substr)
		return
	}
	found := false
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("string %q does not contain %q", s, substr)
	}
}

// AssertTrue fails the test if condition is false
func AssertTrue(t *testing.T, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// AssertFalse fails the test if condition is true
func AssertFalse(t *testing.T, condition bool, message string) {
	t.Helper()
	if condition {
		t.Errorf("assertion failed: %s", message)
	}
}
