// Package auth issues and validates the HS256 access tokens handed out at login.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when token validation fails
var ErrInvalidToken = errors.New("invalid token")

// CustomClaims are the non-registered claims carried by access tokens
type CustomClaims struct {
	Email string `json:"email"`
}

// Validate implements validator.CustomClaims
func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// accessClaims is the signed form of CustomClaims plus the registered claims
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer signs access tokens
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenIssuer creates a TokenIssuer
func NewTokenIssuer(secret, issuer, audience string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue returns a signed token whose subject is userID, and its expiry
func (i *TokenIssuer) Issue(userID, email string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := accessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// TokenValidator validates access tokens
type TokenValidator struct {
	validator *validator.Validator
}

// NewTokenValidator creates a TokenValidator for tokens signed with secret
func NewTokenValidator(secret, issuer, audience string) (*TokenValidator, error) {
	key := []byte(secret)
	jwtValidator, err := validator.New(
		func(ctx context.Context) (interface{}, error) {
			return key, nil
		},
		validator.HS256,
		issuer,
		[]string{audience},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &CustomClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}
	return &TokenValidator{validator: jwtValidator}, nil
}

// Validate checks token and returns its validated claims
func (v *TokenValidator) Validate(ctx context.Context, token string) (*validator.ValidatedClaims, error) {
	claims, err := v.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok || validatedClaims.RegisteredClaims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return validatedClaims, nil
}
