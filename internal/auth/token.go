package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer token payload. The subject is the principal id.
type Claims struct {
	PrincipalType PrincipalType `json:"ptype"`
	jwt.RegisteredClaims
}

// SignHS256 issues a compact HS256 token for p valid for ttl.
func SignHS256(p Principal, secret []byte, ttl time.Duration) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	now := time.Now()
	claims := Claims{
		PrincipalType: p.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAndVerifyHS256 verifies token's signature and expiry and returns the
// principal it names.
func ParseAndVerifyHS256(token string, secret []byte) (Principal, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("verify token: %w", err)
	}
	if !parsed.Valid {
		return Principal{}, errors.New("verify token: invalid")
	}
	p := Principal{Type: claims.PrincipalType, ID: claims.Subject}
	if err := p.Validate(); err != nil {
		return Principal{}, err
	}
	return p, nil
}
