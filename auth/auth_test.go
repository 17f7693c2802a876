package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdtest "github.com/teranos/pulsedesk/internal/testing"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Store, *Authenticator) {
	t.Helper()
	store := NewStore(pdtest.CreateMigratedDB(t))
	return store, NewAuthenticator(store, "", nil)
}

func monitoringUser(t *testing.T, store *Store, login string) *User {
	t.Helper()
	ctx := context.Background()
	user, err := store.CreateUser(ctx, login, login+"@example.com", "secret", true, t0)
	require.NoError(t, err)
	require.NoError(t, store.Grant(ctx, user.ID, MonitoringPermission))
	return user
}

func TestAuthenticate(t *testing.T) {
	store, a := setup(t)
	ctx := context.Background()
	monitoringUser(t, store, "admin")

	user, err := a.Authenticate(ctx, "admin", "secret", t0)
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Login)
	require.NotNil(t, user.LastLogin)

	stored, err := store.GetUser(ctx, "admin")
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	assert.True(t, stored.LastLogin.Equal(t0))

	_, err = a.Authenticate(ctx, "admin", "wrong", t0)
	assert.True(t, IsAuthenticationError(err))

	_, err = a.Authenticate(ctx, "nobody", "secret", t0)
	assert.True(t, IsAuthenticationError(err))

	// the system user has no password and is inactive
	_, err = a.Authenticate(ctx, "-", "", t0)
	assert.True(t, IsAuthenticationError(err))
}

func TestAuthenticateInactiveUser(t *testing.T) {
	store, a := setup(t)
	ctx := context.Background()
	user := monitoringUser(t, store, "admin")
	require.NoError(t, store.SetUserActive(ctx, user.ID, false, t0))

	_, err := a.Authenticate(ctx, "admin", "secret", t0)
	assert.True(t, IsAuthenticationError(err))
}

func TestAuthorize(t *testing.T) {
	store, a := setup(t)
	ctx := context.Background()
	admin := monitoringUser(t, store, "admin")
	agent, err := store.CreateUser(ctx, "agent", "", "secret", true, t0)
	require.NoError(t, err)
	require.NoError(t, store.Grant(ctx, agent.ID, "ticket.agent"))

	assert.NoError(t, a.Authorize(ctx, admin))
	assert.True(t, IsAuthorizationError(a.Authorize(ctx, agent)))

	require.NoError(t, store.SetPermissionActive(ctx, MonitoringPermission, false))
	assert.True(t, IsAuthorizationError(a.Authorize(ctx, admin)))
}

func TestGrantUnknownPermission(t *testing.T) {
	store, _ := setup(t)
	user := monitoringUser(t, store, "admin")
	err := store.Grant(context.Background(), user.ID, "admin.nonexistent")
	assert.Error(t, err)
}

func TestMintAndVerifyToken(t *testing.T) {
	_, a := setup(t)
	ctx := context.Background()

	ok, err := a.VerifyToken(ctx, "anything")
	require.NoError(t, err)
	assert.False(t, ok, "no token configured")

	token, err := a.MintToken(ctx, t0)
	require.NoError(t, err)
	assert.Len(t, token, 43)

	ok, err = a.VerifyToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, ok)

	rotated, err := a.MintToken(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, token, rotated)

	ok, err = a.VerifyToken(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok, "old token no longer valid")
}

func TestStaticTokenOverridesStored(t *testing.T) {
	_, a := setup(t)
	ctx := context.Background()
	stored, err := a.MintToken(ctx, t0)
	require.NoError(t, err)

	a.SetStaticToken("configured")
	ok, err := a.VerifyToken(ctx, "configured")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.VerifyToken(ctx, stored)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheck(t *testing.T) {
	store, a := setup(t)
	ctx := context.Background()
	monitoringUser(t, store, "admin")
	_, err := store.CreateUser(ctx, "agent", "", "secret", true, t0)
	require.NoError(t, err)
	token, err := a.MintToken(ctx, t0)
	require.NoError(t, err)

	caller, err := a.Check(ctx, Credentials{Token: token}, true, t0)
	require.NoError(t, err)
	assert.True(t, caller.ViaToken)

	_, err = a.Check(ctx, Credentials{Token: token}, false, t0)
	assert.True(t, IsAuthenticationError(err), "token alone cannot mint")

	caller, err = a.Check(ctx, Credentials{Token: "bad", Login: "admin", Password: "secret", Basic: true}, true, t0)
	require.NoError(t, err)
	require.NotNil(t, caller.User)
	assert.Equal(t, "admin", caller.User.Login)

	_, err = a.Check(ctx, Credentials{Login: "agent", Password: "secret", Basic: true}, true, t0)
	assert.True(t, IsAuthorizationError(err))

	_, err = a.Check(ctx, Credentials{}, true, t0)
	assert.True(t, IsAuthenticationError(err))
}

func TestCredentialsFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		header string
		want   string
	}{
		{"query", "/x?token=abc", "", "abc"},
		{"bearer", "/x", "Bearer abc", "abc"},
		{"token header", "/x", `Token token="abc"`, "abc"},
		{"token header bare", "/x", "Token token=abc", "abc"},
		{"none", "/x", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, CredentialsFromRequest(r).Token)
		})
	}

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.SetBasicAuth("admin", "secret")
	creds := CredentialsFromRequest(r)
	assert.True(t, creds.Basic)
	assert.Equal(t, "admin", creds.Login)
	assert.Equal(t, "secret", creds.Password)
}

func TestCallerContext(t *testing.T) {
	assert.Nil(t, CallerFromContext(context.Background()))
	ctx := WithCaller(context.Background(), &Caller{ViaToken: true})
	assert.True(t, CallerFromContext(ctx).ViaToken)
}
