package oauth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bentlogic/oauth2-provider/instrumentation"
	"github.com/bentlogic/oauth2-provider/internal/testutil"
	"github.com/bentlogic/oauth2-provider/security"
	"github.com/bentlogic/oauth2-provider/storage"
	"github.com/bentlogic/oauth2-provider/storage/memory"
)

const (
	testOwnerID  = "500"
	testUsername = "user"
	testPassword = "pass"
)

// staticVerifier accepts exactly one credential pair.
type staticVerifier struct{}

func (staticVerifier) CheckOwner(ctx context.Context, username, password string) (string, error) {
	if username == testUsername && password == testPassword {
		return testOwnerID, nil
	}
	return "", nil
}

type testEnv struct {
	server *Server
	store  *memory.Store
	client *storage.Client
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, config *Config) *testEnv {
	t.Helper()

	store := memory.NewWithInterval(0)
	t.Cleanup(store.Stop)

	server, err := NewServer(store, store, store, staticVerifier{}, config, quietLogger())
	testutil.AssertNoError(t, err)

	client := testutil.GenerateTestClient()
	testutil.AssertNoError(t, store.SaveClient(context.Background(), client))

	return &testEnv{server: server, store: store, client: client}
}

// registerClient provisions an additional client with the given redirect URIs.
func (e *testEnv) registerClient(t *testing.T, redirectURIs ...string) *storage.Client {
	t.Helper()
	client := testutil.GenerateTestClient(redirectURIs...)
	testutil.AssertNoError(t, e.store.SaveClient(context.Background(), client))
	return client
}

func assertOAuthError(t *testing.T, err error, code string, status int) *OAuthError {
	t.Helper()
	testutil.AssertError(t, err)
	oauthErr, ok := err.(*OAuthError)
	if !ok {
		t.Fatalf("expected *OAuthError, got %T: %v", err, err)
	}
	testutil.AssertEqual(t, oauthErr.Code, code)
	testutil.AssertEqual(t, oauthErr.Status, status)
	return oauthErr
}

func TestNewServerRequiresDependencies(t *testing.T) {
	store := memory.NewWithInterval(0)
	defer store.Stop()

	if _, err := NewServer(nil, store, store, staticVerifier{}, nil, quietLogger()); err == nil {
		t.Error("expected error for nil client store")
	}
	if _, err := NewServer(store, nil, store, staticVerifier{}, nil, quietLogger()); err == nil {
		t.Error("expected error for nil token store")
	}
	if _, err := NewServer(store, store, nil, staticVerifier{}, nil, quietLogger()); err == nil {
		t.Error("expected error for nil flow store")
	}
	if _, err := NewServer(store, store, store, nil, nil, quietLogger()); err == nil {
		t.Error("expected error for nil verifier")
	}
}

func TestNewServerAppliesDefaults(t *testing.T) {
	env := newTestEnv(t, nil)
	testutil.AssertEqual(t, env.server.Config().AccessTokenTTL, int64(3600))
	testutil.AssertEqual(t, env.server.Config().AuthorizationCodeTTL, int64(600))
	testutil.AssertFalse(t, env.server.Config().AllowInsecureTransport, "insecure transport should be off by default")
}

func TestAuthenticateToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	token := testutil.GenerateTestToken(env.client.ClientID, testOwnerID)
	testutil.AssertNoError(t, env.store.SaveToken(ctx, token))

	ownerID, err := env.server.AuthenticateToken(ctx, token.AccessToken)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ownerID, testOwnerID)
}

func TestAuthenticateTokenUnknown(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.server.AuthenticateToken(context.Background(), security.GenerateToken())
	assertOAuthError(t, err, ErrorCodeInvalidToken, 401)
}

func TestAuthenticateTokenExpired(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	token := testutil.GenerateTestToken(env.client.ClientID, testOwnerID)
	token.CreatedAt = time.Now().Add(-2 * time.Hour)
	testutil.AssertNoError(t, env.store.SaveToken(ctx, token))

	_, err := env.server.AuthenticateToken(ctx, token.AccessToken)
	assertOAuthError(t, err, ErrorCodeInvalidToken, 401)
}

func TestRevokeAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	token := testutil.GenerateTestToken(env.client.ClientID, testOwnerID)
	testutil.AssertNoError(t, env.store.SaveToken(ctx, token))

	testutil.AssertNoError(t, env.server.RevokeAccessToken(ctx, token.AccessToken))

	_, err := env.server.AuthenticateToken(ctx, token.AccessToken)
	assertOAuthError(t, err, ErrorCodeInvalidToken, 401)

	// Revoking again is a no-op, not an error.
	testutil.AssertNoError(t, env.server.RevokeAccessToken(ctx, token.AccessToken))
}

func TestServerWithInstrumentation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	inst, err := instrumentation.New(instrumentation.Config{ServiceName: "test"})
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { inst.Shutdown(context.Background()) })

	env.server.SetMetrics(inst.Metrics())
	env.server.SetTracer(inst.Tracer("test"))
	env.server.SetAuditor(security.NewAuditor(quietLogger(), true))

	result, err := env.server.Authorize(ctx, codeAuthorizeRequest(env.client.ClientID), testOwnerID)
	testutil.AssertNoError(t, err)

	resp, err := env.server.Token(ctx, codeTokenRequest(env.client.ClientID, result.Code, env.client.RedirectURIs[0]))
	testutil.AssertNoError(t, err)
	assertTokenResponse(t, resp, testOwnerID)
}

func TestRevokeAccessTokenUnknown(t *testing.T) {
	env := newTestEnv(t, nil)

	err := env.server.RevokeAccessToken(context.Background(), security.GenerateToken())
	assertOAuthError(t, err, ErrorCodeInvalidToken, 401)
}
