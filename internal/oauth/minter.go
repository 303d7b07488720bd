// Package oauth mints short-lived Google access tokens for the configured
// service account. Tokens are never cached: every Mint performs a fresh
// JWT-bearer exchange with the token endpoint.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/apperr"
)

var (
	ErrNotConfigured = fmt.Errorf("%w: service account email or private key is empty", apperr.ErrConfiguration)
	ErrExchange      = fmt.Errorf("%w: token exchange failed", apperr.ErrUpstream)
)

// TokenMinter is what consumers of delegated tokens depend on.
type TokenMinter interface {
	Mint(ctx context.Context) (*oauth2.Token, error)
}

// Options configures a Minter.
type Options struct {
	Email string
	// PrivateKey is a PEM key; literal "\n" sequences are turned into newlines.
	PrivateKey string
	Scopes     []string
	TokenURL   string
	Timeout    time.Duration
	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

// Minter exchanges a signed service-account assertion for an access token.
type Minter struct {
	email      string
	privateKey []byte
	scopes     []string
	tokenURL   string
	client     *http.Client
}

func NewMinter(o Options) *Minter {
	client := o.HTTPClient
	if client == nil {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Minter{
		email:      strings.TrimSpace(o.Email),
		privateKey: []byte(UnescapeKey(o.PrivateKey)),
		scopes:     o.Scopes,
		tokenURL:   o.TokenURL,
		client:     client,
	}
}

// UnescapeKey converts the single-line env form of a PEM key back to multi-line.
func UnescapeKey(k string) string {
	return strings.ReplaceAll(k, `\n`, "\n")
}

// Configured reports whether both email and private key are present.
func (m *Minter) Configured() bool {
	return m.email != "" && len(strings.TrimSpace(string(m.privateKey))) > 0
}

// Mint performs one token exchange.
func (m *Minter) Mint(ctx context.Context) (*oauth2.Token, error) {
	if !m.Configured() {
		return nil, ErrNotConfigured
	}
	conf := &jwt.Config{
		Email:      m.email,
		PrivateKey: m.privateKey,
		Scopes:     m.scopes,
		TokenURL:   m.tokenURL,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.client)
	tok, err := conf.TokenSource(ctx).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrExchange)
	}
	return tok, nil
}
