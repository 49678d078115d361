package oauth

// Response types accepted at the authorization endpoint.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// Grant types accepted at the token endpoint.
const (
	GrantTypePassword          = "password"
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
)

// TokenTypeBearer is the only token type this server issues.
const TokenTypeBearer = "bearer"

// AuthorizeRequest is the shape of an authorization endpoint request. The
// transport binding fills it from the incoming request; Secure reports
// whether the request arrived over a secure scheme.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	State        string
	Secure       bool
}

// AuthorizeResult is a successful authorization response: a 302 redirect to
// Location. Code is set for the code grant; Token is set for the implicit
// grant.
type AuthorizeResult struct {
	Location string
	Code     string
	Token    *TokenResponse
}

// TokenRequest is the shape of a token endpoint request. Authorization
// carries the raw authentication header value (Basic scheme); the remaining
// fields are the form parameters of the grant being exercised.
type TokenRequest struct {
	Method        string
	Secure        bool
	Authorization string

	GrantType string

	// password grant
	Username string
	Password string

	// authorization_code grant
	Code        string
	RedirectURI string

	// refresh_token grant
	RefreshToken string
	UserID       string
}

// TokenResponse is the token endpoint's success body. It always contains
// exactly these five fields.
type TokenResponse struct {
	UserID       string `json:"user_id"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
