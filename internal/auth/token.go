// Package auth issues and verifies the HS256 tokens of the admin API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/userdir/internal/errs"
	"github.com/and161185/userdir/internal/model"
)

// Claims are the token claims of an admin API caller.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Privileged reports whether the caller may use privileged directory operations.
func (c Claims) Privileged() bool { return c.Role == model.RoleAdmin }

// Issue signs a token for subject with role, valid for ttl.
func Issue(signKey []byte, subject string, role model.Role, ttl time.Duration) (string, time.Time, error) {
	if len(signKey) == 0 {
		return "", time.Time{}, errors.New("empty signing key")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signKey)
	return signed, exp, err
}

// Parse verifies tok and returns its claims. Every failure wraps errs.ErrUnauthorized.
func Parse(signKey []byte, tok string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return signKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
	}
	if !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: empty subject", errs.ErrUnauthorized)
	}
	return claims, nil
}
