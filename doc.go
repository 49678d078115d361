// Package oauth implements an OAuth2 authorization server core: the
// authorization endpoint (authorization-code and implicit grants), the token
// endpoint (password, authorization_code and refresh_token grants), redirect
// URI resolution, Basic client authentication, and the token/code lifecycle
// rules (one-shot codes, expiry, revocation, refresh rotation).
//
// The Server type holds the grant logic and consumes persistence through the
// storage package interfaces; Handler binds it to net/http. Resource owner
// credential verification is pluggable via the OwnerVerifier interface.
package oauth
