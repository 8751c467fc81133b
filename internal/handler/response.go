package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ProblemDetails is the RFC 7807 body of every error response
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError names one rejected request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const errorTypeBase = "https://fortuna-budget.dev/errors/"

const (
	ErrorTypeValidation   = errorTypeBase + "validation"
	ErrorTypeNotFound     = errorTypeBase + "not-found"
	ErrorTypeUnauthorized = errorTypeBase + "unauthorized"
	ErrorTypeConflict     = errorTypeBase + "conflict"
	ErrorTypeInternal     = errorTypeBase + "internal"
	ErrorTypeUnavailable  = errorTypeBase + "unavailable"
)

var problemTypes = map[int]string{
	http.StatusBadRequest:          ErrorTypeValidation,
	http.StatusNotFound:            ErrorTypeNotFound,
	http.StatusUnauthorized:        ErrorTypeUnauthorized,
	http.StatusConflict:            ErrorTypeConflict,
	http.StatusInternalServerError: ErrorTypeInternal,
	http.StatusServiceUnavailable:  ErrorTypeUnavailable,
}

// problem writes a ProblemDetails for status, titled with the standard status text
func problem(c echo.Context, status int, detail string, errs []ValidationError) error {
	title := http.StatusText(status)
	if status == http.StatusBadRequest {
		title = "Validation Error"
	}
	return c.JSON(status, ProblemDetails{
		Type:     problemTypes[status],
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Errors:   errs,
	})
}

func NewValidationError(c echo.Context, detail string, errors []ValidationError) error {
	return problem(c, http.StatusBadRequest, detail, errors)
}

func NewNotFoundError(c echo.Context, detail string) error {
	return problem(c, http.StatusNotFound, detail, nil)
}

func NewUnauthorizedError(c echo.Context, detail string) error {
	return problem(c, http.StatusUnauthorized, detail, nil)
}

func NewConflictError(c echo.Context, detail string) error {
	return problem(c, http.StatusConflict, detail, nil)
}

func NewInternalError(c echo.Context, detail string) error {
	return problem(c, http.StatusInternalServerError, detail, nil)
}

func NewServiceUnavailableError(c echo.Context, detail string) error {
	return problem(c, http.StatusServiceUnavailable, detail, nil)
}
