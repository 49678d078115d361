package oauth

import (
	"net/url"
	"testing"

	"github.com/bentlogic/oauth2-provider/internal/testutil"
	"github.com/bentlogic/oauth2-provider/storage"
)

func clientWithURIs(uris ...string) *storage.Client {
	return &storage.Client{ClientID: "c1", RedirectURIs: uris}
}

func TestResolveRedirectURI(t *testing.T) {
	tests := []struct {
		name      string
		client    *storage.Client
		requested string
		want      string
		wantErr   bool
	}{
		{
			name:   "omitted with single registered URI",
			client: clientWithURIs("https://example.com/cb"),
			want:   "https://example.com/cb",
		},
		{
			name:    "omitted with multiple registered URIs",
			client:  clientWithURIs("https://a.example.com/cb", "https://b.example.com/cb"),
			wantErr: true,
		},
		{
			name:    "omitted with no registered URIs",
			client:  clientWithURIs(),
			wantErr: true,
		},
		{
			name:      "exact match",
			client:    clientWithURIs("https://example.com/cb"),
			requested: "https://example.com/cb",
			want:      "https://example.com/cb",
		},
		{
			name:      "match selects among multiple",
			client:    clientWithURIs("https://a.example.com/cb", "https://b.example.com/cb"),
			requested: "https://b.example.com/cb",
			want:      "https://b.example.com/cb",
		},
		{
			name:      "match ignores registered query and returns it",
			client:    clientWithURIs("https://example.com/cb?tenant=7"),
			requested: "https://example.com/cb",
			want:      "https://example.com/cb?tenant=7",
		},
		{
			name:      "scheme mismatch",
			client:    clientWithURIs("https://example.com/cb"),
			requested: "http://example.com/cb",
			wantErr:   true,
		},
		{
			name:      "host mismatch",
			client:    clientWithURIs("https://example.com/cb"),
			requested: "https://evil.example.com/cb",
			wantErr:   true,
		},
		{
			name:      "path mismatch",
			client:    clientWithURIs("https://example.com/cb"),
			requested: "https://example.com/other",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveRedirectURI(tt.client, tt.requested)
			if tt.wantErr {
				assertOAuthError(t, err, ErrorCodeInvalidRequest, 400)
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, got, tt.want)
		})
	}
}

func TestBuildRedirectLocationQuery(t *testing.T) {
	params := url.Values{}
	params.Set("code", "abc123")
	params.Set("state", "xyz")

	location, err := buildRedirectLocation("https://example.com/cb?some=value", params, false)
	testutil.AssertNoError(t, err)

	u, err := url.Parse(location)
	testutil.AssertNoError(t, err)
	q := u.Query()
	testutil.AssertEqual(t, q.Get("code"), "abc123")
	testutil.AssertEqual(t, q.Get("state"), "xyz")
	testutil.AssertEqual(t, q.Get("some"), "value")
	testutil.AssertEqual(t, u.Fragment, "")
}

func TestBuildRedirectLocationFragment(t *testing.T) {
	params := url.Values{}
	params.Set("access_token", "tok")
	params.Set("token_type", "bearer")

	location, err := buildRedirectLocation("https://example.com/cb?some=value", params, true)
	testutil.AssertNoError(t, err)

	u, err := url.Parse(location)
	testutil.AssertNoError(t, err)

	// Fragment carries the parameters; the query stays as registered.
	testutil.AssertEqual(t, u.Query().Get("access_token"), "")
	testutil.AssertEqual(t, u.Query().Get("some"), "value")

	frag, err := url.ParseQuery(u.Fragment)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, frag.Get("access_token"), "tok")
	testutil.AssertEqual(t, frag.Get("token_type"), "bearer")
}
