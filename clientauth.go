package oauth

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/bentlogic/oauth2-provider/storage"
)

// parseClientCredentials extracts client credentials from a Basic
// authentication header value (base64 of "client_id:client_secret").
func parseClientCredentials(authorization string) (clientID, clientSecret string, ok bool) {
	const prefix = "Basic "
	if len(authorization) < len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return "", "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(authorization[len(prefix):]))
	if err != nil {
		return "", "", false
	}

	clientID, clientSecret, found := strings.Cut(string(decoded), ":")
	if !found || clientID == "" {
		return "", "", false
	}
	return clientID, clientSecret, true
}

// authenticateClient resolves and verifies the client behind a token request.
// A missing header is an unauthenticated request (401); a malformed header,
// unknown client or mismatched secret is an invalid client (400). Secret
// verification goes through the store's constant-time comparison.
func (s *Server) authenticateClient(ctx context.Context, authorization string) (*storage.Client, error) {
	if authorization == "" {
		s.auditor.LogAuthFailure("", "", "missing_client_credentials")
		s.recordAuthFailure(ctx, "", "missing_client_credentials")
		return nil, ErrInvalidToken("client credentials required")
	}

	clientID, clientSecret, ok := parseClientCredentials(authorization)
	if !ok {
		s.auditor.LogAuthFailure("", "", "malformed_authorization_header")
		s.recordAuthFailure(ctx, "", "malformed_authorization_header")
		return nil, ErrInvalidClient("malformed authorization header")
	}

	client, err := s.clientStore.GetClient(ctx, clientID)
	if err != nil {
		s.auditor.LogAuthFailure("", clientID, "unknown_client")
		s.recordAuthFailure(ctx, clientID, "unknown_client")
		return nil, ErrInvalidClient("client authentication failed")
	}

	if client.IsRevoked() {
		s.auditor.LogAuthFailure("", clientID, "client_revoked")
		s.recordAuthFailure(ctx, clientID, "client_revoked")
		return nil, ErrInvalidClient("client authentication failed")
	}

	if err := s.clientStore.ValidateClientSecret(ctx, clientID, clientSecret); err != nil {
		s.auditor.LogAuthFailure("", clientID, "invalid_client_secret")
		s.recordAuthFailure(ctx, clientID, "invalid_client_secret")
		return nil, ErrInvalidClient("client authentication failed")
	}

	return client, nil
}
