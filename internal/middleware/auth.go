package middleware

import (
	"context"
	"strings"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type userIDKey struct{}

// TokenValidator validates a bearer token and returns its claims
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*validator.ValidatedClaims, error)
}

// AuthMiddleware rejects requests without a valid access token
type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(v TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: v}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticate stores the token subject as the request's user ID
func (m *AuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return unauthorizedError(c, "missing authorization header")
			}
			token, ok := bearerToken(header)
			if !ok {
				return unauthorizedError(c, "invalid authorization header format")
			}

			claims, err := m.validator.Validate(c.Request().Context(), token)
			if err != nil {
				log.Debug().Err(err).Str("path", c.Path()).Msg("Rejected access token")
				return unauthorizedError(c, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(WithUserID(c.Request().Context(), claims.RegisteredClaims.Subject)))
			return next(c)
		}
	}
}

// WithUserID returns ctx carrying an authenticated user ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID returns the authenticated user ID, or "" outside the auth middleware
func GetUserID(c echo.Context) string {
	id, _ := c.Request().Context().Value(userIDKey{}).(string)
	return id
}
