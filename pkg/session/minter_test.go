package session

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sampleClaims(now time.Time, lifetime time.Duration) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
		Name:              "Alice",
		PreferredUsername: "alice",
		Customers:         []string{},
		Scope:             SpaceDelimited{"read", "write"},
		Roles:             []string{"developer", "developer"},
		Groups:            []string{"eng", "ops"},
		Email:             "alice@example.com",
		EmailVerified:     true,
	}
}

func TestJWTMinter_MintAndParse(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	minter, err := NewJWTMinter(testSecret, "alerta", WithClock(fixedClock(now)))
	require.NoError(t, err)

	token, err := minter.Mint(context.Background(), sampleClaims(now, time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	claims, err := minter.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.Subject)
	assert.Equal(t, "alerta", claims.Issuer)
	assert.Equal(t, Provider, claims.Provider)
	assert.Len(t, claims.ID, 36)
	assert.True(t, now.Add(time.Hour).Equal(claims.ExpiresAt.Time))
	assert.True(t, now.Equal(claims.NotBefore.Time))
	assert.Equal(t, []string{"developer", "developer"}, claims.Roles)
	assert.Equal(t, SpaceDelimited{"read", "write"}, claims.Scope)
	assert.True(t, claims.EmailVerified)
}

func TestJWTMinter_UniqueIDs(t *testing.T) {
	now := time.Now()
	minter, err := NewJWTMinter(testSecret, "alerta")
	require.NoError(t, err)

	a, err := minter.Mint(context.Background(), sampleClaims(now, time.Hour))
	require.NoError(t, err)
	b, err := minter.Mint(context.Background(), sampleClaims(now, time.Hour))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestJWTMinter_DoesNotModifyInput(t *testing.T) {
	now := time.Now()
	minter, err := NewJWTMinter(testSecret, "alerta")
	require.NoError(t, err)

	claims := sampleClaims(now, time.Hour)
	_, err = minter.Mint(context.Background(), claims)
	require.NoError(t, err)
	assert.Empty(t, claims.ID)
	assert.Empty(t, claims.Issuer)
}

func TestJWTMinter_RequiresExpiry(t *testing.T) {
	minter, err := NewJWTMinter(testSecret, "alerta")
	require.NoError(t, err)

	_, err = minter.Mint(context.Background(), &Claims{})
	assert.Error(t, err)
	_, err = minter.Mint(context.Background(), nil)
	assert.Error(t, err)
}

func TestJWTMinter_ParseRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	minter, err := NewJWTMinter(testSecret, "alerta", WithClock(fixedClock(now)))
	require.NoError(t, err)
	token, err := minter.Mint(context.Background(), sampleClaims(now, time.Minute))
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later, err := NewJWTMinter(testSecret, "alerta", WithClock(fixedClock(now.Add(2*time.Minute))))
		require.NoError(t, err)
		_, err = later.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewJWTMinter([]byte("another-secret-another-secret-xx"), "alerta", WithClock(fixedClock(now)))
		require.NoError(t, err)
		_, err = other.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewJWTMinter(testSecret, "someone-else", WithClock(fixedClock(now)))
		require.NoError(t, err)
		_, err = other.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := minter.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewJWTMinter_RequiresSecret(t *testing.T) {
	_, err := NewJWTMinter(nil, "alerta")
	assert.Error(t, err)
}

func TestSpaceDelimited_JSON(t *testing.T) {
	data, err := json.Marshal(SpaceDelimited{"read", "write:alerts"})
	require.NoError(t, err)
	assert.Equal(t, `"read write:alerts"`, string(data))

	var s SpaceDelimited
	require.NoError(t, json.Unmarshal([]byte(`"admin  read"`), &s))
	assert.Equal(t, SpaceDelimited{"admin", "read"}, s)

	require.NoError(t, json.Unmarshal([]byte(`""`), &s))
	assert.Empty(t, s)
}
