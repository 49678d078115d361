package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bentlogic/oauth2-provider/instrumentation"
	"github.com/bentlogic/oauth2-provider/security"
	"github.com/bentlogic/oauth2-provider/storage"
)

// OwnerVerifier verifies resource owner credentials for the password grant.
// Implementations are supplied by the host system and swappable.
type OwnerVerifier interface {
	// CheckOwner returns the resource owner identifier for the given
	// credentials, or an empty string when the credentials are rejected.
	// A non-nil error signals a verification infrastructure failure, not a
	// rejection.
	CheckOwner(ctx context.Context, username, password string) (string, error)
}

// OwnerVerifierFunc adapts a function to the OwnerVerifier interface.
type OwnerVerifierFunc func(ctx context.Context, username, password string) (string, error)

// CheckOwner implements OwnerVerifier.
func (f OwnerVerifierFunc) CheckOwner(ctx context.Context, username, password string) (string, error) {
	return f(ctx, username, password)
}

// Server implements the OAuth2 authorization server core. It validates
// authorization and token requests, issues codes and token pairs, and
// enforces the protocol's security invariants. Persistence is consumed
// through the storage interfaces; each request is processed independently
// with no shared mutable state beyond what the stores own.
type Server struct {
	clientStore storage.ClientStore
	tokenStore  storage.TokenStore
	flowStore   storage.FlowStore
	verifier    OwnerVerifier
	auditor     *security.Auditor
	rateLimiter *security.RateLimiter
	metrics     *instrumentation.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	config      *Config
}

// NewServer creates a new OAuth server core.
func NewServer(
	clientStore storage.ClientStore,
	tokenStore storage.TokenStore,
	flowStore storage.FlowStore,
	verifier OwnerVerifier,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if flowStore == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("owner verifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applyDefaults(config, logger)

	return &Server{
		clientStore: clientStore,
		tokenStore:  tokenStore,
		flowStore:   flowStore,
		verifier:    verifier,
		config:      config,
		logger:      logger,
	}, nil
}

// SetAuditor sets the security auditor.
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.auditor = aud
}

// SetRateLimiter sets the rate limiter consumed by the HTTP handler.
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.rateLimiter = rl
}

// SetMetrics sets the metric instruments.
func (s *Server) SetMetrics(m *instrumentation.Metrics) {
	s.metrics = m
}

// SetTracer sets the tracer used to span endpoint operations.
func (s *Server) SetTracer(tracer trace.Tracer) {
	s.tracer = tracer
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	return s.tracer.Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		instrumentation.RecordError(span, err)
		instrumentation.SetSpanError(span, err.Error())
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	span.End()
}

// Config returns the effective server configuration.
func (s *Server) Config() *Config {
	return s.config
}

func (s *Server) recordAuthFailure(ctx context.Context, clientID, reason string) {
	s.metrics.RecordAuthFailure(ctx, clientID, reason)
}

// checkTransport enforces the secure-scheme requirement unless disabled.
func (s *Server) checkTransport(secure bool) error {
	if secure || s.config.AllowInsecureTransport {
		return nil
	}
	return ErrInvalidRequest("secure transport required")
}

// Authorize processes an authorization endpoint request for the given
// authenticated resource owner. Failures return a structured error, never a
// redirect: the redirect target cannot be trusted until resolution succeeds.
func (s *Server) Authorize(ctx context.Context, req *AuthorizeRequest, ownerID string) (result *AuthorizeResult, err error) {
	ctx, span := s.startSpan(ctx, "oauth.authorize")
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String("oauth.response_type", req.ResponseType),
	)
	defer func() { endSpan(span, err) }()

	return s.authorize(ctx, req, ownerID)
}

func (s *Server) authorize(ctx context.Context, req *AuthorizeRequest, ownerID string) (*AuthorizeResult, error) {
	if err := s.checkTransport(req.Secure); err != nil {
		return nil, err
	}

	if ownerID == "" {
		s.auditor.LogAuthFailure("", req.ClientID, "unauthenticated_owner")
		return nil, ErrInvalidToken("resource owner is not authenticated")
	}

	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}

	client, err := s.clientStore.GetClient(ctx, req.ClientID)
	if err != nil {
		s.auditor.LogAuthFailure(ownerID, req.ClientID, "unknown_client")
		s.recordAuthFailure(ctx, req.ClientID, "unknown_client")
		return nil, ErrInvalidRequest("unknown client")
	}
	if client.IsRevoked() {
		s.auditor.LogAuthFailure(ownerID, req.ClientID, "client_revoked")
		return nil, ErrInvalidRequest("unknown client")
	}

	switch req.ResponseType {
	case ResponseTypeCode:
		return s.authorizeCode(ctx, client, req, ownerID)
	case ResponseTypeToken:
		return s.authorizeImplicit(ctx, client, req, ownerID)
	case "":
		return nil, ErrInvalidRequest("response_type is required")
	default:
		return nil, ErrInvalidRequest(fmt.Sprintf("unsupported response_type: %s", req.ResponseType))
	}
}

// authorizeCode handles the authorization-code grant: issue a one-shot code
// bound to (client, owner, resolved redirect URI) and deliver it in the
// redirect's query string.
func (s *Server) authorizeCode(ctx context.Context, client *storage.Client, req *AuthorizeRequest, ownerID string) (*AuthorizeResult, error) {
	redirectURI, err := resolveRedirectURI(client, req.RedirectURI)
	if err != nil {
		s.auditor.LogAuthFailure(ownerID, client.ClientID, "invalid_redirect_uri")
		s.recordAuthFailure(ctx, client.ClientID, "invalid_redirect_uri")
		return nil, err
	}

	code := &storage.AuthorizationCode{
		Code:        security.GenerateToken(),
		ClientID:    client.ClientID,
		UserID:      ownerID,
		RedirectURI: redirectURI,
		ExpiresIn:   s.config.AuthorizationCodeTTL,
		CreatedAt:   time.Now(),
	}
	if err := s.flowStore.SaveAuthorizationCode(ctx, code); err != nil {
		s.logger.Error("Failed to save authorization code", "client_id", client.ClientID, "error", err)
		return nil, ErrServerError("failed to persist authorization code")
	}

	params := url.Values{}
	params.Set("code", code.Code)
	if req.State != "" {
		params.Set("state", req.State)
	}

	location, err := buildRedirectLocation(redirectURI, params, false)
	if err != nil {
		return nil, err
	}

	s.auditor.LogCodeIssued(ownerID, client.ClientID)
	s.metrics.RecordCodeIssued(ctx, client.ClientID)
	s.logger.Info("Authorization code issued", "client_id", client.ClientID)

	return &AuthorizeResult{Location: location, Code: code.Code}, nil
}

// authorizeImplicit handles the implicit grant: issue a token pair and
// deliver it in the redirect's fragment, never the query.
func (s *Server) authorizeImplicit(ctx context.Context, client *storage.Client, req *AuthorizeRequest, ownerID string) (*AuthorizeResult, error) {
	redirectURI, err := resolveRedirectURI(client, req.RedirectURI)
	if err != nil {
		s.auditor.LogAuthFailure(ownerID, client.ClientID, "invalid_redirect_uri")
		s.recordAuthFailure(ctx, client.ClientID, "invalid_redirect_uri")
		return nil, err
	}

	token, err := s.issueToken(ctx, client.ClientID, ownerID, "implicit")
	if err != nil {
		return nil, err
	}
	resp := s.tokenResponse(token)

	params := url.Values{}
	params.Set("access_token", resp.AccessToken)
	params.Set("token_type", resp.TokenType)
	params.Set("expires_in", strconv.FormatInt(resp.ExpiresIn, 10))
	if req.State != "" {
		params.Set("state", req.State)
	}

	location, err := buildRedirectLocation(redirectURI, params, true)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Implicit grant token issued", "client_id", client.ClientID)

	return &AuthorizeResult{Location: location, Token: resp}, nil
}

// Token processes a token endpoint request: method and transport checks,
// client authentication, then the grant_type state machine.
func (s *Server) Token(ctx context.Context, req *TokenRequest) (resp *TokenResponse, err error) {
	ctx, span := s.startSpan(ctx, "oauth.token")
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrGrantType, req.GrantType),
	)
	defer func() { endSpan(span, err) }()

	return s.token(ctx, req)
}

func (s *Server) token(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	if req.Method != "" && req.Method != http.MethodPost {
		return nil, ErrMethodNotAllowed(fmt.Sprintf("method %s not allowed", req.Method))
	}

	if err := s.checkTransport(req.Secure); err != nil {
		return nil, err
	}

	client, err := s.authenticateClient(ctx, req.Authorization)
	if err != nil {
		return nil, err
	}

	switch req.GrantType {
	case GrantTypePassword:
		return s.handlePasswordGrant(ctx, client, req)
	case GrantTypeAuthorizationCode:
		return s.handleAuthorizationCodeGrant(ctx, client, req)
	case GrantTypeRefreshToken:
		return s.handleRefreshTokenGrant(ctx, client, req)
	default:
		return nil, ErrUnsupportedGrantType(fmt.Sprintf("grant type %q not supported", req.GrantType))
	}
}

// handlePasswordGrant verifies resource owner credentials through the
// pluggable verifier and issues a token pair on success.
func (s *Server) handlePasswordGrant(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.Username == "" {
		return nil, ErrInvalidRequest("username is required")
	}
	if req.Password == "" {
		return nil, ErrInvalidRequest("password is required")
	}

	ownerID, err := s.verifier.CheckOwner(ctx, req.Username, req.Password)
	if err != nil {
		s.logger.Error("Owner verification failed", "client_id", client.ClientID, "error", err)
		return nil, ErrServerError("owner verification unavailable")
	}
	if ownerID == "" {
		s.auditor.LogAuthFailure("", client.ClientID, "invalid_owner_credentials")
		s.recordAuthFailure(ctx, client.ClientID, "invalid_owner_credentials")
		return nil, ErrInvalidToken("invalid resource owner credentials")
	}

	token, err := s.issueToken(ctx, client.ClientID, ownerID, GrantTypePassword)
	if err != nil {
		return nil, err
	}
	return s.tokenResponse(token), nil
}

// handleAuthorizationCodeGrant exchanges a one-shot authorization code for a
// token pair. Consumption is atomic: a replayed code fails even under
// concurrent exchanges.
func (s *Server) handleAuthorizationCodeGrant(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, ErrInvalidRequest("code is required")
	}
	if req.RedirectURI == "" {
		return nil, ErrInvalidRequest("redirect_uri is required")
	}

	code, err := s.flowStore.ConsumeAuthorizationCode(ctx, req.Code)
	if err != nil {
		reason := "unknown_authorization_code"
		if errors.Is(err, storage.ErrCodeConsumed) {
			reason = "authorization_code_replay"
		}
		s.auditor.LogAuthFailure("", client.ClientID, reason)
		s.recordAuthFailure(ctx, client.ClientID, reason)
		return nil, ErrInvalidRequest("invalid authorization code")
	}

	now := time.Now()
	if code.IsRevoked(now) {
		s.auditor.LogAuthFailure(code.UserID, client.ClientID, "authorization_code_expired")
		s.recordAuthFailure(ctx, client.ClientID, "authorization_code_expired")
		return nil, ErrInvalidRequest("authorization code expired")
	}
	if code.ClientID != client.ClientID {
		s.auditor.LogAuthFailure(code.UserID, client.ClientID, "authorization_code_client_mismatch")
		s.recordAuthFailure(ctx, client.ClientID, "authorization_code_client_mismatch")
		return nil, ErrInvalidRequest("invalid authorization code")
	}
	if code.RedirectURI != req.RedirectURI {
		s.auditor.LogAuthFailure(code.UserID, client.ClientID, "redirect_uri_mismatch")
		s.recordAuthFailure(ctx, client.ClientID, "redirect_uri_mismatch")
		return nil, ErrInvalidRequest("redirect_uri does not match the authorization request")
	}

	token, err := s.issueToken(ctx, client.ClientID, code.UserID, GrantTypeAuthorizationCode)
	if err != nil {
		return nil, err
	}

	s.auditor.LogCodeExchanged(code.UserID, client.ClientID)
	s.metrics.RecordCodeExchanged(ctx, client.ClientID)

	return s.tokenResponse(token), nil
}

// handleRefreshTokenGrant issues a fresh token pair for a known refresh
// token. The prior access token's revocation state is deliberately ignored:
// refresh validity is decoupled from access validity. With rotation enabled
// the prior record is atomically replaced, so the old refresh value cannot be
// replayed.
func (s *Server) handleRefreshTokenGrant(ctx context.Context, client *storage.Client, req *TokenRequest) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, ErrInvalidRequest("refresh_token is required")
	}
	if req.UserID == "" {
		return nil, ErrInvalidRequest("user_id is required")
	}

	prior, err := s.tokenStore.GetTokenByRefresh(ctx, req.RefreshToken)
	if err != nil {
		s.auditor.LogAuthFailure(req.UserID, client.ClientID, "unknown_refresh_token")
		s.recordAuthFailure(ctx, client.ClientID, "unknown_refresh_token")
		return nil, ErrInvalidToken("unknown refresh token")
	}

	if prior.UserID != req.UserID {
		s.auditor.LogAuthFailure(req.UserID, client.ClientID, "refresh_user_mismatch")
		s.recordAuthFailure(ctx, client.ClientID, "refresh_user_mismatch")
		return nil, ErrInvalidRequest("user_id does not match the refresh token")
	}
	if prior.ClientID != client.ClientID {
		s.auditor.LogAuthFailure(req.UserID, client.ClientID, "refresh_client_mismatch")
		s.recordAuthFailure(ctx, client.ClientID, "refresh_client_mismatch")
		return nil, ErrInvalidRequest("refresh token was issued to another client")
	}

	next := &storage.Token{
		AccessToken:  security.GenerateToken(),
		RefreshToken: security.GenerateToken(),
		UserID:       prior.UserID,
		ClientID:     prior.ClientID,
		ExpiresIn:    s.config.AccessTokenTTL,
		CreatedAt:    time.Now(),
	}

	rotated := !s.config.DisableRefreshTokenRotation
	if rotated {
		if err := s.tokenStore.RotateToken(ctx, req.RefreshToken, next); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Lost a concurrent rotation race; treat as an unknown token.
				s.auditor.LogAuthFailure(req.UserID, client.ClientID, "refresh_token_rotated_away")
				return nil, ErrInvalidToken("unknown refresh token")
			}
			s.logger.Error("Failed to rotate token", "client_id", client.ClientID, "error", err)
			return nil, ErrServerError("failed to persist token")
		}
	} else {
		if err := s.tokenStore.SaveToken(ctx, next); err != nil {
			s.logger.Error("Failed to save token", "client_id", client.ClientID, "error", err)
			return nil, ErrServerError("failed to persist token")
		}
	}

	s.auditor.LogTokenRefreshed(next.UserID, client.ClientID, rotated)
	s.metrics.RecordTokenRefreshed(ctx, client.ClientID, rotated)
	s.logger.Info("Token refreshed", "client_id", client.ClientID, "rotated", rotated)

	return s.tokenResponse(next), nil
}

// issueToken generates and persists a new access/refresh pair.
func (s *Server) issueToken(ctx context.Context, clientID, ownerID, grantType string) (*storage.Token, error) {
	token := &storage.Token{
		AccessToken:  security.GenerateToken(),
		RefreshToken: security.GenerateToken(),
		UserID:       ownerID,
		ClientID:     clientID,
		ExpiresIn:    s.config.AccessTokenTTL,
		CreatedAt:    time.Now(),
	}
	if err := s.tokenStore.SaveToken(ctx, token); err != nil {
		s.logger.Error("Failed to save token", "client_id", clientID, "error", err)
		return nil, ErrServerError("failed to persist token")
	}

	s.auditor.LogTokenIssued(ownerID, clientID, grantType)
	s.metrics.RecordTokenIssued(ctx, clientID, grantType)

	return token, nil
}

func (s *Server) tokenResponse(token *storage.Token) *TokenResponse {
	return &TokenResponse{
		UserID:       token.UserID,
		ExpiresIn:    token.ExpiresIn,
		TokenType:    TokenTypeBearer,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
}

// AuthenticateToken resolves a bearer access token to its resource owner.
// Expired or revoked tokens are rejected. Intended for resource endpoints
// guarding requests with tokens issued here.
func (s *Server) AuthenticateToken(ctx context.Context, accessToken string) (string, error) {
	token, err := s.tokenStore.GetTokenByAccess(ctx, accessToken)
	if err != nil {
		return "", ErrInvalidToken("invalid access token")
	}
	if token.IsRevoked(time.Now()) {
		return "", ErrInvalidToken("access token expired or revoked")
	}
	return token.UserID, nil
}

// RevokeAccessToken immediately and idempotently revokes an access token.
// The token's refresh half remains usable for the refresh grant.
func (s *Server) RevokeAccessToken(ctx context.Context, accessToken string) error {
	token, err := s.tokenStore.GetTokenByAccess(ctx, accessToken)
	if err != nil {
		return ErrInvalidToken("invalid access token")
	}

	token.Revoke(time.Now())
	if err := s.tokenStore.UpdateToken(ctx, token); err != nil {
		s.logger.Error("Failed to persist token revocation", "error", err)
		return ErrServerError("failed to persist revocation")
	}

	s.auditor.LogTokenRevoked(token.UserID, token.ClientID)
	s.metrics.RecordTokenRevoked(ctx, token.ClientID)

	return nil
}
