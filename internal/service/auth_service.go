package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs access tokens for authenticated users
type TokenIssuer interface {
	Issue(userID, email string) (string, time.Time, error)
}

// AuthService handles registration, login and user lookup
type AuthService struct {
	userRepo   domain.UserRepository
	issuer     TokenIssuer
	bcryptCost int
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo domain.UserRepository, issuer TokenIssuer) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		issuer:     issuer,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// RegisterInput holds the input for registering a user
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// LoginResult is a user together with a freshly signed access token
type LoginResult struct {
	User        *domain.User `json:"user"`
	AccessToken string       `json:"accessToken"`
	TokenType   string       `json:"tokenType"`
	ExpiresAt   time.Time    `json:"expiresAt"`
}

// Register creates a user with a bcrypt-hashed password
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	email := normalizeEmail(input.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, domain.ErrInvalidEmail
	}
	if len(input.Password) < domain.MinPasswordLength {
		return nil, domain.ErrPasswordTooShort
	}

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return nil, domain.ErrEmailAlreadyExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash password")
		return nil, domain.ErrInternalError
	}

	user, err := s.userRepo.Create(ctx, &domain.User{
		Email:           email,
		PasswordHash:    string(hash),
		FirstName:       strings.TrimSpace(input.FirstName),
		LastName:        strings.TrimSpace(input.LastName),
		IsEmailVerified: false,
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("user_id", user.ID).Msg("Registered new user")
	return user, nil
}

// Login verifies credentials and issues an access token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Debug().Str("user_id", user.ID).Msg("Password mismatch")
		return nil, domain.ErrInvalidCredentials
	}

	token, expiresAt, err := s.issuer.Issue(user.ID, user.Email)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to sign access token")
		return nil, domain.ErrInternalError
	}

	return &LoginResult{
		User:        user,
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}, nil
}

// GetUserByID retrieves a user by their ID
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// ListUsers returns every registered user
func (s *AuthService) ListUsers(ctx context.Context) ([]*domain.User, error) {
	return s.userRepo.List(ctx)
}

// UserExists reports whether a user with id exists
func (s *AuthService) UserExists(ctx context.Context, id string) (bool, error) {
	_, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
