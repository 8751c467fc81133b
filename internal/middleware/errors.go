package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// problemDetails mirrors the handler package's RFC 7807 body for errors raised before a handler runs
type problemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeProblem(c echo.Context, status int, kind, title, detail string) error {
	return c.JSON(status, problemDetails{
		Type:     "https://fortuna-budget.dev/errors/" + kind,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

func unauthorizedError(c echo.Context, detail string) error {
	return writeProblem(c, http.StatusUnauthorized, "unauthorized", "Unauthorized", detail)
}

func rateLimitError(c echo.Context, retryAfter int) error {
	detail := fmt.Sprintf("Too many requests. Please retry after %d seconds.", retryAfter)
	return writeProblem(c, http.StatusTooManyRequests, "rate-limit", "Rate Limit Exceeded", detail)
}
