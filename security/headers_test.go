package security

import (
	"net/http/httptest"
	"testing"
)

func TestSetTokenResponseHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SetTokenResponseHeaders(rr)

	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want %q", got, "no-store")
	}
	if got := rr.Header().Get("Pragma"); got != "no-cache" {
		t.Errorf("Pragma = %q, want %q", got, "no-cache")
	}
}

func TestSetSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SetSecurityHeaders(rr)

	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want %q", got, "DENY")
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
}
