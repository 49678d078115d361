package oauth

import (
	"encoding/base64"
	"testing"

	"github.com/bentlogic/oauth2-provider/internal/testutil"
)

func TestParseClientCredentials(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantID     string
		wantSecret string
		wantOK     bool
	}{
		{
			name:       "valid",
			header:     testutil.BasicAuth("client-id", "client-secret"),
			wantID:     "client-id",
			wantSecret: "client-secret",
			wantOK:     true,
		},
		{
			name:       "empty secret",
			header:     testutil.BasicAuth("client-id", ""),
			wantID:     "client-id",
			wantSecret: "",
			wantOK:     true,
		},
		{
			name:       "secret containing colon",
			header:     testutil.BasicAuth("client-id", "se:cr:et"),
			wantID:     "client-id",
			wantSecret: "se:cr:et",
			wantOK:     true,
		},
		{
			name:   "lowercase scheme",
			header: "basic " + base64.StdEncoding.EncodeToString([]byte("client-id:client-secret")),
			wantID: "client-id", wantSecret: "client-secret", wantOK: true,
		},
		{name: "empty header", header: "", wantOK: false},
		{name: "wrong scheme", header: "Bearer abcdef", wantOK: false},
		{name: "invalid base64", header: "Basic !!!", wantOK: false},
		{
			name:   "no separator",
			header: "Basic " + base64.StdEncoding.EncodeToString([]byte("client-id")),
			wantOK: false,
		},
		{
			name:   "empty client id",
			header: "Basic " + base64.StdEncoding.EncodeToString([]byte(":secret")),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, ok := parseClientCredentials(tt.header)
			testutil.AssertEqual(t, ok, tt.wantOK)
			if tt.wantOK {
				testutil.AssertEqual(t, id, tt.wantID)
				testutil.AssertEqual(t, secret, tt.wantSecret)
			}
		})
	}
}
