// Package storage defines the persistence boundary for the OAuth2 provider:
// the Client, AuthorizationCode and Token entities plus the repository
// interfaces the core consumes. Implementations live in subpackages
// (in-memory, SQLite); all methods accept context.Context and are assumed to
// be transactional per request.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a client, code or token does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrCodeConsumed is returned by ConsumeAuthorizationCode when the code
	// has already been exchanged.
	ErrCodeConsumed = errors.New("storage: authorization code already consumed")

	// ErrInvalidClientSecret is returned when a client secret does not match.
	ErrInvalidClientSecret = errors.New("storage: invalid client secret")
)

// Client is a registered OAuth client. RedirectURIs keeps registration order;
// when exactly one URI is registered it acts as the implicit default for
// authorization requests that omit redirect_uri.
type Client struct {
	ClientID         string
	ClientSecretHash string // bcrypt hash
	RedirectURIs     []string
	Revoked          bool
	RevokedAt        time.Time
	CreatedAt        time.Time
}

// Revoke marks the client revoked. Revoking twice has no further effect.
func (c *Client) Revoke(now time.Time) {
	if c.Revoked {
		return
	}
	c.Revoked = true
	c.RevokedAt = now
}

// IsRevoked reports whether the client has been administratively revoked.
func (c *Client) IsRevoked() bool {
	return c.Revoked
}

// AuthorizationCode is a short-lived, one-time-use code bound to the client,
// the resource owner and the redirect URI it was issued against.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	UserID      string
	RedirectURI string
	ExpiresIn   int64 // seconds
	CreatedAt   time.Time
	Used        bool
	Revoked     bool
	RevokedAt   time.Time
}

// Revoke marks the code revoked. Idempotent.
func (c *AuthorizationCode) Revoke(now time.Time) {
	if c.Revoked {
		return
	}
	c.Revoked = true
	c.RevokedAt = now
}

// IsRevoked derives the code's validity from stored state: true when the
// revocation flag is set or the lifetime has elapsed.
func (c *AuthorizationCode) IsRevoked(now time.Time) bool {
	if c.Revoked {
		return true
	}
	return now.Sub(c.CreatedAt) >= time.Duration(c.ExpiresIn)*time.Second
}

// Token is an issued access/refresh pair. The refresh half's usability is
// independent of the access half: IsRevoked governs the access token only,
// and the refresh grant deliberately ignores it.
type Token struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	ClientID     string
	ExpiresIn    int64 // seconds
	CreatedAt    time.Time
	Revoked      bool
	RevokedAt    time.Time
}

// Revoke immediately invalidates the access token. Idempotent.
func (t *Token) Revoke(now time.Time) {
	if t.Revoked {
		return
	}
	t.Revoked = true
	t.RevokedAt = now
}

// IsRevoked derives access-token validity: true when the revocation flag is
// set or the elapsed time since issuance reaches the lifetime. A lifetime of
// zero makes a freshly issued token immediately revoked.
func (t *Token) IsRevoked(now time.Time) bool {
	if t.Revoked {
		return true
	}
	return now.Sub(t.CreatedAt) >= time.Duration(t.ExpiresIn)*time.Second
}

// ClientStore is the client/redirect registry. The core only reads from it.
type ClientStore interface {
	// SaveClient stores a registered client (administrative provisioning).
	SaveClient(ctx context.Context, client *Client) error

	// GetClient retrieves a client and its registered redirect URIs.
	// Returns ErrNotFound for unknown client IDs.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret verifies a client secret against the stored hash
	// using a constant-time comparison. Returns ErrNotFound for unknown
	// clients and ErrInvalidClientSecret on mismatch.
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error
}

// FlowStore manages authorization codes.
type FlowStore interface {
	// SaveAuthorizationCode persists a newly issued code.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// GetAuthorizationCode retrieves a code by value.
	GetAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// ConsumeAuthorizationCode atomically checks that the code is unused and
	// marks it consumed, returning the stored record. Returns ErrCodeConsumed
	// on replay and ErrNotFound for unknown codes.
	// This operation MUST be atomic: two concurrent exchanges of the same
	// code must not both succeed.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// DeleteAuthorizationCode removes a code.
	DeleteAuthorizationCode(ctx context.Context, code string) error
}

// TokenStore manages issued token pairs, addressable by either half.
type TokenStore interface {
	// SaveToken persists a newly issued token pair.
	SaveToken(ctx context.Context, token *Token) error

	// GetTokenByAccess retrieves a token record by access-token value.
	GetTokenByAccess(ctx context.Context, accessToken string) (*Token, error)

	// GetTokenByRefresh retrieves a token record by refresh-token value.
	GetTokenByRefresh(ctx context.Context, refreshToken string) (*Token, error)

	// UpdateToken persists changes to an existing record (revocation).
	UpdateToken(ctx context.Context, token *Token) error

	// RotateToken atomically replaces the record identified by refreshToken
	// with next, invalidating the old refresh value. Returns ErrNotFound if
	// the refresh token does not exist or was already rotated away.
	// This operation MUST be atomic: a refresh token must not be exchanged
	// twice under concurrent requests.
	RotateToken(ctx context.Context, refreshToken string, next *Token) error
}
