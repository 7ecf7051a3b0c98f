// Package servicetoken issues and verifies the short-lived HMAC token that
// gates the privileged control endpoints (scheduler start/stop/pause/resume,
// automation enable/disable). A single service-identity token; this surface
// has no end-user identity to carry.
package servicetoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid service token")
	ErrExpiredToken = errors.New("service token has expired")
)

// Claims identifies the operator/service issuing a privileged request.
type Claims struct {
	Subject string `json:"sub_name"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies service tokens with a single shared secret
// (SecurityConfig.JWTSecret). A zero-value Issuer (empty secret) means the
// control surface runs unauthenticated, which callers must treat as
// "disabled" rather than silently accepting a forged token.
type Issuer struct {
	secret string
}

func New(secret string) *Issuer {
	return &Issuer{secret: secret}
}

// Enabled reports whether a secret is configured. When it is not, the
// RequirePrivileged middleware skips verification and lets privileged
// requests through, logging each one at warn level.
func (i *Issuer) Enabled() bool { return i.secret != "" }

// Issue creates a service token valid for ttl, identifying subject (an
// operator name or automation job name) in the token's subject claim.
func (i *Issuer) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Subject: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "engagement-agent",
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.secret))
}

// Verify parses and validates a bearer token, rejecting anything not signed
// with the configured HMAC secret or already expired.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(i.secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
