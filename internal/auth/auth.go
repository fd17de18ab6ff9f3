// Package auth talks to the token and registration endpoints and decides
// whether a protected route may be entered.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"orgsync/backend"
	"orgsync/backend/rest"
	"orgsync/internal/credentials"
	"orgsync/internal/utils"
)

// Endpoint paths
const (
	TokenPath    = "/api/token/"
	RefreshPath  = "/api/token/refresh/"
	RegisterPath = "/api/register/"
)

// ErrPasswordMismatch is returned by Register before any request is sent
var ErrPasswordMismatch = errors.New("passwords do not match")

// TokenStore persists the issued tokens
type TokenStore interface {
	Save(t credentials.Tokens) error
	Load() (*credentials.Info, error)
	Clear() error
}

// Client performs authentication requests
type Client struct {
	transport *rest.Transport
	store     TokenStore
}

// NewClient creates an auth client. t should carry no credentials: a stale
// bearer token makes the token endpoint refuse the request.
func NewClient(t *rest.Transport, store TokenStore) *Client {
	return &Client{transport: t, store: store}
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Login exchanges a username and password for tokens and stores them
func (c *Client) Login(ctx context.Context, username, password string) error {
	var pair tokenPair
	err := c.transport.Do(ctx, http.MethodPost, TokenPath, map[string]string{
		"username": username,
		"password": password,
	}, &pair)
	if err != nil {
		if f, ok := backend.AsFailure(err); ok && (f.StatusCode == http.StatusUnauthorized || f.StatusCode == http.StatusBadRequest) {
			return utils.ErrAuthenticationFailed(username)
		}
		return err
	}
	if pair.Access == "" {
		return fmt.Errorf("token endpoint returned no access token")
	}

	if err := c.store.Save(credentials.Tokens{Username: username, Access: pair.Access, Refresh: pair.Refresh}); err != nil {
		return fmt.Errorf("login succeeded but tokens could not be stored: %w", err)
	}
	utils.Debugf("logged in as %s", username)
	return nil
}

// Registration is the body of the registration endpoint
type Registration struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
}

// Register creates an account. It does not sign in.
func (c *Client) Register(ctx context.Context, r Registration) error {
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if r.Password != r.Password2 {
		return ErrPasswordMismatch
	}
	return c.transport.Do(ctx, http.MethodPost, RegisterPath, r, nil)
}

// Refresh trades the stored refresh token for a new access token
func (c *Client) Refresh(ctx context.Context) error {
	info, err := c.store.Load()
	if err != nil {
		return err
	}
	if info.Refresh == "" {
		return utils.ErrNotAuthenticated()
	}

	var pair tokenPair
	if err := c.transport.Do(ctx, http.MethodPost, RefreshPath, map[string]string{"refresh": info.Refresh}, &pair); err != nil {
		return err
	}
	if pair.Access == "" {
		return fmt.Errorf("refresh endpoint returned no access token")
	}

	next := info.Tokens
	next.Access = pair.Access
	if pair.Refresh != "" {
		next.Refresh = pair.Refresh
	}
	return c.store.Save(next)
}

// Logout forgets the stored tokens
func (c *Client) Logout() error {
	return c.store.Clear()
}

// =============================================================================
// Guard
// =============================================================================

// Decision is the outcome of a guard check
type Decision int

const (
	Allow Decision = iota
	RedirectToLogin
)

// Refresher renews an expired access token
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Guard decides whether a protected route may be mounted. A route is allowed
// when an access token is stored and, if it is a JWT with an expiry, that
// expiry has not passed. The signature is not verified; the server does that.
type Guard struct {
	store     TokenStore
	refresher Refresher
	now       func() time.Time
}

// GuardOption is a functional option for Guard
type GuardOption func(*Guard)

// WithRefresher lets the guard renew an expired token once before refusing
func WithRefresher(r Refresher) GuardOption {
	return func(g *Guard) { g.refresher = r }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// NewGuard creates a guard over store
func NewGuard(store TokenStore, opts ...GuardOption) *Guard {
	g := &Guard{store: store, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check evaluates the stored credentials
func (g *Guard) Check(ctx context.Context) Decision {
	info, err := g.store.Load()
	if err != nil {
		utils.Warnf("reading credentials: %v", err)
		return RedirectToLogin
	}
	if !info.Found || info.Access == "" {
		return RedirectToLogin
	}
	if !Expired(info.Access, g.now()) {
		return Allow
	}

	if g.refresher == nil || info.Refresh == "" {
		return RedirectToLogin
	}
	if err := g.refresher.Refresh(ctx); err != nil {
		utils.Debugf("token refresh failed: %v", err)
		return RedirectToLogin
	}
	return Allow
}

// Expired reports whether token is a JWT whose exp claim is at or before now.
// Opaque tokens and JWTs without exp never expire here.
func Expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
