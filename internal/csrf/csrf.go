// Package csrf implements double-submit cookie protection: the token is
// handed out in a readable cookie and must be echoed back in a header on
// state-changing requests.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-expense-go/pkg/utilities"
)

const (
	DefaultCookieName = "XSRF-TOKEN"
	DefaultHeaderName = "X-CSRF-Token"

	tokenBytes = 32
)

var ErrTokenMismatch = fmt.Errorf("%w: csrf token missing or mismatched", apperr.ErrForbidden)

type Config struct {
	Enabled    bool
	CookieName string
	HeaderName string
	Secure     bool
	SameSite   http.SameSite
	MaxAge     time.Duration
}

func DefaultConfig() Config {
	return Config{
		CookieName: DefaultCookieName,
		HeaderName: DefaultHeaderName,
		SameSite:   http.SameSiteLaxMode,
		MaxAge:     24 * time.Hour,
	}
}

// Guard issues and checks tokens.
type Guard struct {
	cfg    Config
	logger *zap.SugaredLogger
}

func New(cfg Config, logger *zap.SugaredLogger) *Guard {
	def := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = def.HeaderName
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = def.SameSite
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = def.MaxAge
	}
	return &Guard{cfg: cfg, logger: logger}
}

// TokenResponse is the body of GET /api/csrf-token.
type TokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// Token returns the caller's current token, minting one if the cookie is
// absent, and refreshes the cookie.
func (g *Guard) Token(w http.ResponseWriter, r *http.Request) {
	token := readCookie(r, g.cfg.CookieName)
	if token == "" {
		var err error
		token, err = newToken()
		if err != nil {
			g.logger.Errorw("csrf token generation failed", "err", err)
			utilities.WriteError(w, http.StatusInternalServerError, "Failed to create CSRF token")
			return
		}
	}
	g.setCookie(w, token)
	utilities.WriteJSON(w, http.StatusOK, TokenResponse{CSRFToken: token})
}

// Protect rejects unsafe requests whose header does not match the cookie.
// It is a pass-through when the guard is disabled.
func (g *Guard) Protect(next http.Handler) http.Handler {
	if !g.cfg.Enabled {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if err := g.Check(r); err != nil {
			g.logger.Warnw("csrf check failed", "path", r.URL.Path, "remote", r.RemoteAddr)
			utilities.WriteError(w, apperr.Status(err), "Invalid CSRF token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Check compares the cookie and header tokens in constant time.
func (g *Guard) Check(r *http.Request) error {
	cookie := readCookie(r, g.cfg.CookieName)
	header := r.Header.Get(g.cfg.HeaderName)
	if cookie == "" || header == "" {
		return ErrTokenMismatch
	}
	if subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

func (g *Guard) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cfg.CookieName,
		Value:    token,
		Path:     "/",
		Secure:   g.cfg.Secure,
		HttpOnly: false,
		MaxAge:   int(g.cfg.MaxAge.Seconds()),
		SameSite: g.cfg.SameSite,
	})
}

func readCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
