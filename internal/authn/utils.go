package authn

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidJWT = errors.New("invalid jwt token")
var ErrInvalidClaims = errors.New("invalid claims")

type Claims struct {
	jwt.StandardClaims
	Username    string `json:"preferred_username"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// ParseClaims verifies an HMAC signed token and returns its claims.
func ParseClaims(token string, secret []byte) (Claims, error) {
	claims := Claims{}
	if len(secret) == 0 {
		return claims, ErrInvalidJWT
	}

	t, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return claims, fmt.Errorf("%w: %v", ErrInvalidJWT, err)
	}
	if !t.Valid {
		return claims, ErrInvalidClaims
	}
	return claims, nil
}

// HasRole checks if the claims carry a realm role.
func (c Claims) HasRole(role string) bool {
	for _, r := range c.RealmAccess.Roles {
		if r == role {
			return true
		}
	}
	return false
}
