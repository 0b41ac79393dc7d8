package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the subset of a backend access token this layer reads.
// The signature is never checked here; the backend remains the authority
// and a forged exp only costs an extra refresh or an extra 401.
type AccessClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type,omitempty"`
}

var unverifiedParser = jwt.NewParser()

// ParseUnverified decodes the claims of a JWT without verifying its signature.
func ParseUnverified(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of token. ok is false for opaque tokens
// and tokens without exp.
func ExpiresAt(token string) (exp time.Time, ok bool) {
	claims, err := ParseUnverified(token)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// ExpiresWithin reports whether token expires before now+skew.
// Tokens whose expiry cannot be read are treated as fresh.
func ExpiresWithin(token string, skew time.Duration, now time.Time) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return !now.Add(skew).Before(exp)
}
