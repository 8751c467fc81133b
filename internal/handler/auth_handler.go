package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/middleware"
	"github.com/dafibh/fortuna/fortuna-budget/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	IsEmailVerified bool   `json:"isEmailVerified"`
	CreatedAt       string `json:"createdAt"`
}

// LoginResponse represents a successful login
type LoginResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresAt   string       `json:"expiresAt"`
}

// Register godoc
// @Summary Register a user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 201 {object} UserResponse
// @Failure 400 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	user, err := h.authService.Register(c.Request().Context(), service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidEmail):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "email", Message: "A valid email is required"},
			})
		case errors.Is(err, domain.ErrPasswordTooShort):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "password", Message: "Password must be at least 8 characters"},
			})
		case errors.Is(err, domain.ErrEmailAlreadyExists):
			return NewConflictError(c, "User with this email already exists")
		}
		log.Error().Err(err).Msg("Failed to register user")
		return NewInternalError(c, "Failed to register user")
	}

	return c.JSON(http.StatusCreated, toUserResponse(user))
}

// Login godoc
// @Summary Log in
// @Description Exchange email and password for a bearer access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.Email == "" || req.Password == "" {
		return NewValidationError(c, "Email and password are required", nil)
	}

	result, err := h.authService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return NewUnauthorizedError(c, "Invalid email or password")
		}
		log.Error().Err(err).Msg("Failed to log in")
		return NewInternalError(c, "Failed to log in")
	}

	log.Info().Str("user_id", result.User.ID).Msg("User logged in")

	return c.JSON(http.StatusOK, LoginResponse{
		User:        toUserResponse(result.User),
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		ExpiresAt:   result.ExpiresAt.Format(time.RFC3339),
	})
}

// Me godoc
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	user, err := h.authService.GetUserByID(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return NewNotFoundError(c, "User not found")
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		return NewInternalError(c, "Failed to get user")
	}

	return c.JSON(http.StatusOK, toUserResponse(user))
}

// ListUsers godoc
// @Summary List users
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {array} UserResponse
// @Failure 401 {object} ProblemDetails
// @Router /auth/users [get]
func (h *AuthHandler) ListUsers(c echo.Context) error {
	users, err := h.authService.ListUsers(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users")
		return NewInternalError(c, "Failed to list users")
	}

	response := make([]UserResponse, len(users))
	for i, user := range users {
		response[i] = toUserResponse(user)
	}
	return c.JSON(http.StatusOK, response)
}

// GetUser godoc
// @Summary Get user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} UserResponse
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /auth/users/{id} [get]
func (h *AuthHandler) GetUser(c echo.Context) error {
	user, err := h.authService.GetUserByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return NewNotFoundError(c, "User not found")
		}
		log.Error().Err(err).Str("target_user_id", c.Param("id")).Msg("Failed to get user")
		return NewInternalError(c, "Failed to get user")
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

func toUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:              user.ID,
		Email:           user.Email,
		FirstName:       user.FirstName,
		LastName:        user.LastName,
		IsEmailVerified: user.IsEmailVerified,
		CreatedAt:       user.CreatedAt.Format(time.RFC3339),
	}
}
