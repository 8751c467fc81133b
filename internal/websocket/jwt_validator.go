package websocket

import (
	"context"
	"errors"

	"github.com/auth0/go-jwt-middleware/v2/validator"
)

// ErrInvalidToken is returned when JWT validation fails
var ErrInvalidToken = errors.New("invalid token")

// ErrUserNotFound is returned when the token subject no longer exists
var ErrUserNotFound = errors.New("user not found")

// TokenValidator validates a raw JWT
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*validator.ValidatedClaims, error)
}

// UserLookup confirms a user still exists
type UserLookup interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// JWTAuthenticator authenticates WebSocket connections from a query-string token.
// Browsers cannot set headers on the upgrade request, so the token travels as ?token=.
type JWTAuthenticator struct {
	validator TokenValidator
	users     UserLookup
}

// NewJWTAuthenticator creates a new JWTAuthenticator
func NewJWTAuthenticator(v TokenValidator, users UserLookup) *JWTAuthenticator {
	return &JWTAuthenticator{validator: v, users: users}
}

// Authenticate validates token and returns the user it was issued to
func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := a.validator.Validate(ctx, token)
	if err != nil {
		return "", ErrInvalidToken
	}

	userID := claims.RegisteredClaims.Subject
	if a.users != nil {
		exists, err := a.users.UserExists(ctx, userID)
		if err != nil || !exists {
			return "", ErrUserNotFound
		}
	}

	return userID, nil
}
