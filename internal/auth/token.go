// Package auth verifies identity-provider bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stwalsh4118/urnext/internal/models"
)

// Token errors
var (
	// ErrMissingToken indicates no bearer token was presented
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken indicates the token failed signature or claim validation
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the identity claims carried by an access token. The subject is
// the stable user id.
type Claims struct {
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// Identity converts claims into an Identity
func (c *Claims) Identity() models.Identity {
	return models.Identity{
		UserID:        c.Subject,
		DisplayName:   c.Name,
		Email:         models.NormalizeEmail(c.Email),
		EmailVerified: c.EmailVerified,
	}
}

// Verifier validates HS256 access tokens
type Verifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewVerifier creates a verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}
}

// Verify parses raw and returns the identity it vouches for
func (v *Verifier) Verify(raw string) (models.Identity, error) {
	if raw == "" {
		return models.Identity{}, ErrMissingToken
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return models.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims.Identity(), nil
}

// Sign issues a token for identity valid for ttl. It is used by tests and
// local tooling; production tokens come from the identity provider.
func (v *Verifier) Sign(identity models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Name:          identity.DisplayName,
		Email:         identity.Email,
		EmailVerified: identity.EmailVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
