// Package auth authenticates callers of the monitoring API. A caller is
// let in by the shared monitoring token or by HTTP basic auth of an active
// user holding the active monitoring permission.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/teranos/pulsedesk/errors"
	"github.com/teranos/pulsedesk/logger"
)

// MonitoringPermission grants access to the monitoring API
const MonitoringPermission = "admin.monitoring"

// TokenSetting is the settings row holding the monitoring token
const TokenSetting = "monitoring_token"

const tokenBytes = 32

// User is a helpdesk user as far as authentication is concerned
type User struct {
	ID        int64      `json:"id"`
	Login     string     `json:"login"`
	Email     string     `json:"email,omitempty"`
	Active    bool       `json:"active"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Credentials are what a request presented
type Credentials struct {
	Token    string
	Login    string
	Password string
	Basic    bool // Login/Password were supplied
}

// Caller is an authenticated caller
type Caller struct {
	User     *User // nil when let in by token
	ViaToken bool
}

// Authenticator checks monitoring credentials
type Authenticator struct {
	store *Store
	log   *zap.SugaredLogger

	mu          sync.RWMutex
	staticToken string
}

// NewAuthenticator creates an authenticator. A non-empty staticToken
// (configuration) takes precedence over the stored token.
func NewAuthenticator(store *Store, staticToken string, log *zap.SugaredLogger) *Authenticator {
	if log == nil {
		log = logger.ComponentLogger("auth")
	}
	return &Authenticator{store: store, staticToken: staticToken, log: log}
}

// SetStaticToken replaces the configured token (config reload)
func (a *Authenticator) SetStaticToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.staticToken = token
}

// Token returns the token currently accepted, or "" when none exists.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.RLock()
	static := a.staticToken
	a.mu.RUnlock()
	if static != "" {
		return static, nil
	}

	token, err := a.store.GetSetting(ctx, TokenSetting)
	if errors.IsNotFoundError(err) {
		return "", nil
	}
	return token, err
}

// VerifyToken reports whether token is the monitoring token.
func (a *Authenticator) VerifyToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	expected, err := a.Token(ctx)
	if err != nil {
		return false, err
	}
	if expected == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1, nil
}

// Authenticate checks a login and password and stamps the login time.
func (a *Authenticator) Authenticate(ctx context.Context, login, password string, now time.Time) (*User, error) {
	user, hash, err := a.store.userByLogin(ctx, login)
	if errors.IsNotFoundError(err) {
		return nil, errors.Mark(errors.Newf("unknown user %q", login), errors.ErrAuthentication)
	}
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, errors.Mark(errors.Newf("user %q is inactive", login), errors.ErrAuthentication)
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, errors.Mark(errors.Newf("wrong password for %q", login), errors.ErrAuthentication)
	}

	if err := a.store.TouchLogin(ctx, user.ID, now); err != nil {
		a.log.Warnw("Failed to stamp last login", logger.FieldUserID, user.ID, logger.FieldError, err)
	} else {
		user.LastLogin = &now
	}
	return user, nil
}

// Authorize checks that user holds the monitoring permission.
func (a *Authenticator) Authorize(ctx context.Context, user *User) error {
	ok, err := a.store.HasPermission(ctx, user.ID, MonitoringPermission)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Mark(errors.Newf("user %q lacks %s", user.Login, MonitoringPermission), errors.ErrAuthorization)
	}
	return nil
}

// Check lets a request in. With allowToken a valid token is enough;
// otherwise, or without a valid token, basic auth of a user holding the
// monitoring permission is required. Failures are marked
// ErrAuthentication or ErrAuthorization.
func (a *Authenticator) Check(ctx context.Context, creds Credentials, allowToken bool, now time.Time) (*Caller, error) {
	if allowToken && creds.Token != "" {
		ok, err := a.VerifyToken(ctx, creds.Token)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Caller{ViaToken: true}, nil
		}
	}

	if !creds.Basic {
		return nil, errors.Mark(errors.New("no valid token or credentials"), errors.ErrAuthentication)
	}
	user, err := a.Authenticate(ctx, creds.Login, creds.Password, now)
	if err != nil {
		return nil, err
	}
	if err := a.Authorize(ctx, user); err != nil {
		return nil, err
	}
	return &Caller{User: user}, nil
}

// MintToken creates and stores a new monitoring token. A configured
// static token still wins until it is removed from the configuration.
func (a *Authenticator) MintToken(ctx context.Context, now time.Time) (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to generate token")
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := a.store.SetSetting(ctx, TokenSetting, token, now); err != nil {
		return "", err
	}
	a.log.Infow("Monitoring token rotated")
	return token, nil
}

// HashPassword hashes a password for storage
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "failed to hash password")
	}
	return string(hash), nil
}

// IsAuthenticationError checks if an error is or wraps ErrAuthentication
func IsAuthenticationError(err error) bool {
	return err != nil && errors.Is(err, errors.ErrAuthentication)
}

// IsAuthorizationError checks if an error is or wraps ErrAuthorization
func IsAuthorizationError(err error) bool {
	return err != nil && errors.Is(err, errors.ErrAuthorization)
}
