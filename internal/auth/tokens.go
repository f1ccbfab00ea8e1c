package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joao-fontenele/marketplace/internal/domain"
)

type claims struct {
	Kind domain.AccountKind `json:"kind"`
	Role domain.AdminRole   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	secret   []byte
	userTTL  time.Duration
	adminTTL time.Duration
	now      func() time.Time
}

func NewTokens(secret string, userTTL, adminTTL time.Duration) *Tokens {
	return &Tokens{
		secret:   []byte(secret),
		userTTL:  userTTL,
		adminTTL: adminTTL,
		now:      time.Now,
	}
}

func (t *Tokens) Issue(p Principal) (string, error) {
	ttl := t.userTTL
	if p.Kind == domain.AccountAdmin {
		ttl = t.adminTTL
	}

	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Kind: p.Kind,
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry and returns the caller. Every
// failure is reported as ErrUnauthorized.
func (t *Tokens) Parse(raw string) (Principal, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
		}
		return Principal{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}

	p := Principal{Kind: c.Kind, ID: c.Subject, Role: c.Role}
	switch {
	case p.ID == "":
		return Principal{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	case p.Kind == domain.AccountUser:
		p.Role = ""
	case p.Kind == domain.AccountAdmin && p.Role.Valid():
	default:
		return Principal{}, fmt.Errorf("%w: unknown account kind", domain.ErrUnauthorized)
	}
	return p, nil
}
