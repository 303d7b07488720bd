package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	// Verify returns nil on match, bcrypt.ErrMismatchedHashAndPassword on
	// mismatch and any other error for a malformed hash.
	Verify(hash, pw string) error
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
}

// Options configures a Service.
type Options struct {
	Username     string
	PasswordHash string
	Secret       string
	Lifetime     time.Duration
	Hasher       PasswordHasher
	Now          func() time.Time
}

// Service issues and verifies session tokens for the single operator.
type Service struct {
	username     string
	passwordHash string
	secret       []byte
	lifetime     time.Duration
	hasher       PasswordHasher
	now          func() time.Time
}

func NewService(o Options) *Service {
	if o.Hasher == nil {
		o.Hasher = BcryptHasher{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Lifetime <= 0 {
		o.Lifetime = time.Hour
	}
	return &Service{
		username:     o.Username,
		passwordHash: o.PasswordHash,
		secret:       []byte(o.Secret),
		lifetime:     o.Lifetime,
		hasher:       o.Hasher,
		now:          o.Now,
	}
}

// Configured reports whether username, hash and secret are all present.
func (s *Service) Configured() bool {
	return s.username != "" && s.passwordHash != "" && len(s.secret) > 0
}

// Issue checks the credentials and returns a signed session token.
// The password hash is compared even when the username is wrong so both
// failures take the same path and return the same error.
func (s *Service) Issue(username, password string) (*Token, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	userOK := ConstantTimeCompare(username, s.username)
	err := s.hasher.Verify(s.passwordHash, password)
	if err != nil && !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return nil, fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	if err != nil || !userOK {
		return nil, ErrBadCredentials
	}

	now := s.now()
	exp := now.Add(s.lifetime)
	claims := Claims{
		Username: s.username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.username,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Authenticate verifies signature and expiry of a session token. Every
// verification failure collapses into ErrInvalidToken.
func (s *Service) Authenticate(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	if len(s.secret) == 0 {
		return nil, ErrNotConfigured
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid || claims.Username == "" {
		return nil, ErrInvalidToken
	}

	p := &Principal{Username: claims.Username, ExpiresAt: claims.ExpiresAt.Time}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	return p, nil
}

// ConstantTimeCompare helper
func ConstantTimeCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
