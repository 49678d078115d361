package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys used across metrics and spans.
const (
	AttrClientID  = "oauth.client_id"
	AttrGrantType = "oauth.grant_type"
	AttrReason    = "oauth.failure_reason"
	AttrRotated   = "oauth.rotated"
)

// Metrics holds the provider's metric instruments.
type Metrics struct {
	codesIssued     metric.Int64Counter
	codesExchanged  metric.Int64Counter
	tokensIssued    metric.Int64Counter
	tokensRefreshed metric.Int64Counter
	tokensRevoked   metric.Int64Counter
	authFailures    metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.codesIssued, err = meter.Int64Counter(
		"oauth.authorization_codes.issued",
		metric.WithDescription("Number of authorization codes issued"),
	); err != nil {
		return nil, fmt.Errorf("failed to create codes issued counter: %w", err)
	}

	if m.codesExchanged, err = meter.Int64Counter(
		"oauth.authorization_codes.exchanged",
		metric.WithDescription("Number of authorization codes exchanged for tokens"),
	); err != nil {
		return nil, fmt.Errorf("failed to create codes exchanged counter: %w", err)
	}

	if m.tokensIssued, err = meter.Int64Counter(
		"oauth.tokens.issued",
		metric.WithDescription("Number of token pairs issued"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tokens issued counter: %w", err)
	}

	if m.tokensRefreshed, err = meter.Int64Counter(
		"oauth.tokens.refreshed",
		metric.WithDescription("Number of token pairs issued via the refresh grant"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tokens refreshed counter: %w", err)
	}

	if m.tokensRevoked, err = meter.Int64Counter(
		"oauth.tokens.revoked",
		metric.WithDescription("Number of access tokens explicitly revoked"),
	); err != nil {
		return nil, fmt.Errorf("failed to create tokens revoked counter: %w", err)
	}

	if m.authFailures, err = meter.Int64Counter(
		"oauth.auth_failures",
		metric.WithDescription("Number of authentication and validation failures"),
	); err != nil {
		return nil, fmt.Errorf("failed to create auth failures counter: %w", err)
	}

	return m, nil
}

// RecordCodeIssued records issuance of an authorization code.
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.codesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
	))
}

// RecordCodeExchanged records a successful code exchange.
func (m *Metrics) RecordCodeExchanged(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.codesExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
	))
}

// RecordTokenIssued records issuance of a token pair.
func (m *Metrics) RecordTokenIssued(ctx context.Context, clientID, grantType string) {
	if m == nil {
		return
	}
	m.tokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
		attribute.String(AttrGrantType, grantType),
	))
}

// RecordTokenRefreshed records a refresh-grant issuance.
func (m *Metrics) RecordTokenRefreshed(ctx context.Context, clientID string, rotated bool) {
	if m == nil {
		return
	}
	m.tokensRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
		attribute.Bool(AttrRotated, rotated),
	))
}

// RecordTokenRevoked records an explicit access-token revocation.
func (m *Metrics) RecordTokenRevoked(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	m.tokensRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
	))
}

// RecordAuthFailure records an authentication or validation failure.
func (m *Metrics) RecordAuthFailure(ctx context.Context, clientID, reason string) {
	if m == nil {
		return
	}
	m.authFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrClientID, clientID),
		attribute.String(AttrReason, reason),
	))
}
