package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const callerKey contextKey = "auth_caller"

// CredentialsFromRequest collects what a request presented. The token is
// taken from the token query parameter, then from an Authorization header
// of the form "Token token=..." or "Bearer ...".
func CredentialsFromRequest(r *http.Request) Credentials {
	var creds Credentials
	creds.Login, creds.Password, creds.Basic = r.BasicAuth()
	creds.Token = extractToken(r)
	return creds
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	header := r.Header.Get("Authorization")
	switch {
	case strings.HasPrefix(header, "Bearer "):
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	case strings.HasPrefix(header, "Token "):
		value := strings.TrimSpace(strings.TrimPrefix(header, "Token "))
		value = strings.TrimPrefix(value, "token=")
		return strings.Trim(value, `"`)
	}
	return ""
}

// WithCaller stores the caller in the context
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext extracts the authenticated caller from the request context
func CallerFromContext(ctx context.Context) *Caller {
	caller, _ := ctx.Value(callerKey).(*Caller)
	return caller
}
