package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned by Parse for tokens that fail verification
var ErrInvalidToken = errors.New("invalid session token")

// Minter issues signed session tokens
type Minter interface {
	Mint(ctx context.Context, claims *Claims) (string, error)
}

// JWTMinter signs session tokens with HS256
type JWTMinter struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option configures a JWTMinter
type Option func(*JWTMinter)

// WithClock replaces the clock used to fill missing timestamps and to verify tokens
func WithClock(now func() time.Time) Option {
	return func(m *JWTMinter) {
		m.now = now
	}
}

// NewJWTMinter creates a minter. The secret must be non-empty.
func NewJWTMinter(secret []byte, issuer string, opts ...Option) (*JWTMinter, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("session secret is required")
	}
	m := &JWTMinter{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Mint signs claims. ExpiresAt must be set by the caller; issuer, ID,
// IssuedAt and NotBefore are filled in when missing. claims is not modified.
func (m *JWTMinter) Mint(ctx context.Context, claims *Claims) (string, error) {
	if claims == nil || claims.ExpiresAt == nil {
		return "", fmt.Errorf("session claims must carry an expiry")
	}

	c := *claims
	now := m.now()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Issuer == "" {
		c.Issuer = m.issuer
	}
	if c.IssuedAt == nil {
		c.IssuedAt = jwt.NewNumericDate(now)
	}
	if c.NotBefore == nil {
		c.NotBefore = c.IssuedAt
	}
	if c.Provider == "" {
		c.Provider = Provider
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &c).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token minted by m and returns its claims
func (m *JWTMinter) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}
