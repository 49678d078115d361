package oauth

import (
	"net/url"

	"github.com/bentlogic/oauth2-provider/storage"
)

// resolveRedirectURI determines the single effective redirect URI for an
// authorization request. A supplied redirect_uri must match a registered URI
// on scheme, host and path; when omitted, the client's sole registered URI is
// the implicit default. Zero or multiple registered URIs without an explicit
// parameter is a validation failure: the server cannot guess where to send
// the resource owner.
func resolveRedirectURI(client *storage.Client, requested string) (string, error) {
	if requested == "" {
		if len(client.RedirectURIs) == 1 {
			return client.RedirectURIs[0], nil
		}
		return "", ErrInvalidRequest("redirect_uri is required when the client has zero or multiple registered redirect URIs")
	}

	req, err := url.Parse(requested)
	if err != nil {
		return "", ErrInvalidRequest("malformed redirect_uri")
	}

	for _, registered := range client.RedirectURIs {
		reg, err := url.Parse(registered)
		if err != nil {
			continue
		}
		if reg.Scheme == req.Scheme && reg.Host == req.Host && reg.Path == req.Path {
			// The registered entry is the effective URI so a pre-registered
			// query component survives into the response redirect.
			return registered, nil
		}
	}

	return "", ErrInvalidRequest("redirect_uri does not match a registered redirect URI")
}

// buildRedirectLocation merges response parameters into the effective
// redirect URI. Code-grant parameters extend the URI's query string without
// discarding pre-registered query pairs; implicit-grant parameters go into
// the fragment, never the query.
func buildRedirectLocation(base string, params url.Values, inFragment bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", ErrServerError("registered redirect URI is malformed")
	}

	if inFragment {
		u.Fragment = params.Encode()
	} else {
		q := u.Query()
		for key, values := range params {
			q[key] = values
		}
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}
