package oauth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/bentlogic/oauth2-provider/security"
)

// Endpoint paths registered by RegisterRoutes.
const (
	AuthorizePath = "/oauth2/authorize"
	TokenPath     = "/oauth2/token"
)

// OwnerResolver reports the authenticated resource owner behind an
// authorization endpoint request, or an empty string when the request is
// unauthenticated. The host system supplies it: session cookies, a fronting
// identity proxy, whatever mechanism authenticates end users.
type OwnerResolver func(r *http.Request) string

// Handler binds the server core to HTTP. It owns request parsing, the
// redirect and JSON response encodings, and the security response headers.
type Handler struct {
	server *Server
	owner  OwnerResolver
	logger *slog.Logger
}

// NewHandler creates an HTTP handler around the server core.
func NewHandler(server *Server, owner OwnerResolver, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		server: server,
		owner:  owner,
		logger: logger,
	}
}

// RegisterRoutes registers the OAuth endpoints on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(AuthorizePath, h.ServeAuthorize)
	mux.HandleFunc(TokenPath, h.ServeToken)
}

// ServeAuthorize handles the authorization endpoint. Success is a 302
// redirect to the client's redirect URI; failures are JSON error bodies,
// never redirects.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	if !h.allow(r) {
		h.writeError(w, NewOAuthError(ErrorCodeInvalidRequest, "rate limit exceeded", http.StatusTooManyRequests))
		return
	}

	var ownerID string
	if h.owner != nil {
		ownerID = h.owner(r)
	}

	query := r.URL.Query()
	req := &AuthorizeRequest{
		ResponseType: query.Get("response_type"),
		ClientID:     query.Get("client_id"),
		RedirectURI:  query.Get("redirect_uri"),
		State:        query.Get("state"),
		Secure:       isSecureRequest(r),
	}

	result, err := h.server.Authorize(r.Context(), req, ownerID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	http.Redirect(w, r, result.Location, http.StatusFound)
}

// ServeToken handles the token endpoint.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if !h.allow(r) {
		h.writeError(w, NewOAuthError(ErrorCodeInvalidRequest, "rate limit exceeded", http.StatusTooManyRequests))
		return
	}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			h.writeError(w, ErrInvalidRequest("malformed request body"))
			return
		}
	}

	req := &TokenRequest{
		Method:        r.Method,
		Secure:        isSecureRequest(r),
		Authorization: r.Header.Get("Authorization"),
		GrantType:     r.PostFormValue("grant_type"),
		Username:      r.PostFormValue("username"),
		Password:      r.PostFormValue("password"),
		Code:          r.PostFormValue("code"),
		RedirectURI:   r.PostFormValue("redirect_uri"),
		RefreshToken:  r.PostFormValue("refresh_token"),
		UserID:        r.PostFormValue("user_id"),
	}

	resp, err := h.server.Token(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeTokenResponse(w, resp)
}

func (h *Handler) writeTokenResponse(w http.ResponseWriter, resp *TokenResponse) {
	security.SetTokenResponseHeaders(w)
	security.SetSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode token response", "error", err)
	}
}

// writeError writes an OAuth error as a JSON body with the error's HTTP
// status. Unexpected error values degrade to a 500 server_error.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	oauthErr, ok := err.(*OAuthError)
	if !ok {
		h.logger.Error("Unexpected error type", "error", err)
		oauthErr = ErrServerError("internal error")
	}

	security.SetTokenResponseHeaders(w)
	security.SetSecurityHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(oauthErr.Status)

	body := map[string]string{
		"error":             oauthErr.Code,
		"error_description": oauthErr.Description,
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode error response", "error", err)
	}
}

func (h *Handler) allow(r *http.Request) bool {
	if h.server.rateLimiter == nil {
		return true
	}
	return h.server.rateLimiter.Allow(clientIP(r))
}

// isSecureRequest reports whether the request arrived over a secure scheme,
// honoring X-Forwarded-Proto for deployments behind a TLS-terminating proxy.
func isSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); strings.EqualFold(proto, "https") {
		return true
	}
	return strings.EqualFold(r.URL.Scheme, "https")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type contextKey string

const ownerContextKey contextKey = "oauth.owner"

// OwnerFromContext returns the resource owner identifier stored by
// ValidateToken, or an empty string.
func OwnerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerContextKey).(string)
	return owner
}

// ValidateToken is middleware for resource endpoints. It authenticates the
// request's bearer token against the token store and stores the resource
// owner identifier in the request context.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(authorization) < len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
			h.writeError(w, ErrInvalidToken("bearer token required"))
			return
		}

		ownerID, err := h.server.AuthenticateToken(r.Context(), authorization[len(prefix):])
		if err != nil {
			h.writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), ownerContextKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
