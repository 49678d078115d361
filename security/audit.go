// Package security provides security primitives for the OAuth2 provider:
// opaque token generation, client secret hashing, audit logging, per-IP rate
// limiting and response header management.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. Resource owner
// identifiers are hashed before they reach the log.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event.
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogCodeIssued logs issuance of an authorization code.
func (a *Auditor) LogCodeIssued(userID, clientID string) {
	a.LogEvent(Event{
		Type:     "authorization_code_issued",
		UserID:   userID,
		ClientID: clientID,
	})
}

// LogCodeExchanged logs a successful authorization-code exchange.
func (a *Auditor) LogCodeExchanged(userID, clientID string) {
	a.LogEvent(Event{
		Type:     "authorization_code_exchanged",
		UserID:   userID,
		ClientID: clientID,
	})
}

// LogTokenIssued logs when a token pair is issued.
func (a *Auditor) LogTokenIssued(userID, clientID, grantType string) {
	a.LogEvent(Event{
		Type:     "token_issued",
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"grant_type": grantType,
		},
	})
}

// LogTokenRefreshed logs when a token pair is refreshed.
func (a *Auditor) LogTokenRefreshed(userID, clientID string, rotated bool) {
	a.LogEvent(Event{
		Type:     "token_refreshed",
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"rotated": rotated,
		},
	})
}

// LogTokenRevoked logs when an access token is revoked.
func (a *Auditor) LogTokenRevoked(userID, clientID string) {
	a.LogEvent(Event{
		Type:     "token_revoked",
		UserID:   userID,
		ClientID: clientID,
	})
}

// LogAuthFailure logs an authentication or validation failure.
func (a *Auditor) LogAuthFailure(userID, clientID, reason string) {
	a.LogEvent(Event{
		Type:     "auth_failure",
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
