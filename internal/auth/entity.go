package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/apperr"
)

// Claims is the payload of a session token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Token is a signed session token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Principal is the authenticated operator attached to a request.
type Principal struct {
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var (
	ErrNotConfigured  = fmt.Errorf("%w: operator credentials are not configured", apperr.ErrConfiguration)
	ErrBadCredentials = fmt.Errorf("%w: invalid username or password", apperr.ErrAuthentication)
	ErrMissingToken   = fmt.Errorf("%w: missing bearer token", apperr.ErrAuthentication)
	ErrInvalidToken   = fmt.Errorf("%w: invalid or expired token", apperr.ErrForbidden)
)

// Client-facing messages. They never say which check failed.
const (
	MsgBadCredentials = "Invalid username or password"
	MsgNotConfigured  = "Authentication is not configured"
	MsgMissingToken   = "Access token required"
	MsgInvalidToken   = "Invalid or expired token"
	MsgInternal       = "Internal server error"
)
