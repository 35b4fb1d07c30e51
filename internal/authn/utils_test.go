package authn

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func signed(t *testing.T, method jwt.SigningMethod, key interface{}, expires time.Time, roles ...string) string {
	t.Helper()
	claims := Claims{
		StandardClaims: jwt.StandardClaims{ExpiresAt: expires.Unix()},
		Username:       "alice",
	}
	claims.RealmAccess.Roles = roles

	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestParseClaims(t *testing.T) {
	token := signed(t, jwt.SigningMethodHS256, secret, time.Now().Add(time.Hour), "directory_admin")

	claims, err := ParseClaims(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.HasRole("directory_admin"))
	assert.False(t, claims.HasRole("directory_info"))
}

func TestParseClaimsRejects(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		secret []byte
	}{
		{"garbage", "not-a-token", secret},
		{"wrong secret", signed(t, jwt.SigningMethodHS256, secret, time.Now().Add(time.Hour)), []byte("other")},
		{"expired", signed(t, jwt.SigningMethodHS256, secret, time.Now().Add(-time.Hour)), secret},
		{"unsigned", signed(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, time.Now().Add(time.Hour)), secret},
		{"no secret configured", signed(t, jwt.SigningMethodHS256, secret, time.Now().Add(time.Hour)), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClaims(tt.token, tt.secret)
			assert.True(t, errors.Is(err, ErrInvalidJWT), "expected ErrInvalidJWT, got %v", err)
		})
	}
}
