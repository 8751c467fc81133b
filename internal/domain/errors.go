package domain

import "errors"

// Domain errors
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInternalError = errors.New("internal error")
	ErrNameRequired  = errors.New("name is required")
	ErrNameTooLong   = errors.New("name exceeds maximum length")
	ErrInvalidAmount = errors.New("invalid amount")
)

// User errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailAlreadyExists = errors.New("user with this email already exists")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrPasswordTooShort   = errors.New("password is too short")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Category errors
var (
	ErrCategoryNotFound      = errors.New("category not found")
	ErrCategoryAlreadyExists = errors.New("category with this name already exists")
	ErrInvalidCategoryType   = errors.New("invalid category type")
	ErrInvalidColor          = errors.New("invalid color")
	ErrCategoryInUse         = errors.New("category has transactions")
)

// Transaction errors
var (
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrDescriptionTooLong     = errors.New("description exceeds maximum length")
	ErrBudgetCheckFailed      = errors.New("transaction recorded but budget check failed")
)

// Budget errors
var (
	ErrBudgetNotFound          = errors.New("budget not found")
	ErrBudgetUpdateFailed      = errors.New("failed to update budget")
	ErrBudgetAlreadyActive     = errors.New("another budget is already live for this category")
	ErrInvalidStatusTransition = errors.New("invalid budget status transition")
	ErrInvalidThreshold        = errors.New("alert threshold must be between 0 and 1")
	ErrInvalidPeriod           = errors.New("invalid budget period")
	ErrInvalidStatus           = errors.New("invalid budget status")
	ErrInvalidDateRange        = errors.New("end date must not be before start date")
	ErrInvalidCurrency         = errors.New("invalid currency code")
)

// Validation constants
const (
	MaxCategoryNameLength        = 100
	MaxTransactionDescriptionLen = 500
	MinPasswordLength            = 8
)
