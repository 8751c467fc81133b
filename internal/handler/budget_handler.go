package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/middleware"
	"github.com/dafibh/fortuna/fortuna-budget/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// BudgetHandler handles budget-related HTTP requests
type BudgetHandler struct {
	budgetService   *service.BudgetService
	categoryService *service.CategoryService
}

// NewBudgetHandler creates a new BudgetHandler
func NewBudgetHandler(budgetService *service.BudgetService, categoryService *service.CategoryService) *BudgetHandler {
	return &BudgetHandler{
		budgetService:   budgetService,
		categoryService: categoryService,
	}
}

// CreateBudgetRequest represents the create budget request body
type CreateBudgetRequest struct {
	CategoryID     string  `json:"categoryId"`
	LimitAmount    string  `json:"limitAmount"`
	LimitCurrency  string  `json:"limitCurrency"`
	Period         string  `json:"period"`
	StartDate      string  `json:"startDate,omitempty"`
	EndDate        string  `json:"endDate,omitempty"`
	AlertThreshold *string `json:"alertThreshold,omitempty"`
}

// UpdateBudgetRequest represents the update budget request body.
// Omitted fields are left unchanged.
type UpdateBudgetRequest struct {
	LimitAmount    *string `json:"limitAmount,omitempty"`
	LimitCurrency  *string `json:"limitCurrency,omitempty"`
	SpentAmount    *string `json:"spentAmount,omitempty"`
	Period         *string `json:"period,omitempty"`
	Status         *string `json:"status,omitempty"`
	StartDate      *string `json:"startDate,omitempty"`
	EndDate        *string `json:"endDate,omitempty"`
	AlertThreshold *string `json:"alertThreshold,omitempty"`
}

// CheckBudgetRequest represents a spend to evaluate against the active budget
type CheckBudgetRequest struct {
	CategoryID string `json:"categoryId"`
	Amount     string `json:"amount"`
}

// BudgetResponse represents a budget in API responses
type BudgetResponse struct {
	ID             string `json:"id"`
	CategoryID     string `json:"categoryId"`
	LimitAmount    string `json:"limitAmount"`
	LimitCurrency  string `json:"limitCurrency"`
	SpentAmount    string `json:"spentAmount"`
	Period         string `json:"period"`
	Status         string `json:"status"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	AlertThreshold string `json:"alertThreshold"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// BudgetCheckResponse represents the outcome of evaluating spend against a budget
type BudgetCheckResponse struct {
	Budget          *BudgetResponse `json:"budget"`
	PreviousStatus  string          `json:"previousStatus,omitempty"`
	UsagePercentage string          `json:"usagePercentage"`
	IsExceeded      bool            `json:"isExceeded"`
	ShouldAlert     bool            `json:"shouldAlert"`
	Message         string          `json:"message"`
}

// BudgetStatsResponse represents budget consumption in API responses
type BudgetStatsResponse struct {
	LimitAmount     string `json:"limitAmount"`
	SpentAmount     string `json:"spentAmount"`
	RemainingAmount string `json:"remainingAmount"`
	UsagePercentage string `json:"usagePercentage"`
	Status          string `json:"status"`
}

// CreateBudget godoc
// @Summary Create a budget
// @Description Create a spending limit for a category. New budgets start in CREATED and must be activated.
// @Description startDate defaults to today and endDate to the last day of the first period.
// @Tags budgets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateBudgetRequest true "Budget data"
// @Success 201 {object} BudgetResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /budgets [post]
func (h *BudgetHandler) CreateBudget(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var req CreateBudgetRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	var validationErrors []ValidationError
	if req.CategoryID == "" {
		validationErrors = append(validationErrors, ValidationError{Field: "categoryId", Message: "Category is required"})
	}
	limit, err := decimal.NewFromString(req.LimitAmount)
	if err != nil {
		validationErrors = append(validationErrors, ValidationError{Field: "limitAmount", Message: "Invalid amount format"})
	}
	var startDate, endDate time.Time
	if req.StartDate != "" {
		if startDate, err = time.Parse("2006-01-02", req.StartDate); err != nil {
			validationErrors = append(validationErrors, ValidationError{Field: "startDate", Message: "Invalid date format (use YYYY-MM-DD)"})
		}
	}
	if req.EndDate != "" {
		if endDate, err = time.Parse("2006-01-02", req.EndDate); err != nil {
			validationErrors = append(validationErrors, ValidationError{Field: "endDate", Message: "Invalid date format (use YYYY-MM-DD)"})
		}
	}
	var threshold *decimal.Decimal
	if req.AlertThreshold != nil {
		parsed, err := decimal.NewFromString(*req.AlertThreshold)
		if err != nil {
			validationErrors = append(validationErrors, ValidationError{Field: "alertThreshold", Message: "Invalid threshold format"})
		}
		threshold = &parsed
	}
	if len(validationErrors) > 0 {
		return NewValidationError(c, "Validation failed", validationErrors)
	}

	if _, err := h.categoryService.GetCategoryByID(c.Request().Context(), userID, req.CategoryID); err != nil {
		if errors.Is(err, domain.ErrCategoryNotFound) {
			return NewNotFoundError(c, "Category not found")
		}
		log.Error().Err(err).Str("user_id", userID).Str("category_id", req.CategoryID).Msg("Failed to look up category")
		return NewInternalError(c, "Failed to create budget")
	}

	budget, err := h.budgetService.CreateBudget(c.Request().Context(), service.CreateBudgetInput{
		UserID:         userID,
		CategoryID:     req.CategoryID,
		LimitAmount:    limit,
		LimitCurrency:  req.LimitCurrency,
		Period:         domain.BudgetPeriod(strings.ToUpper(req.Period)),
		StartDate:      startDate,
		EndDate:        endDate,
		AlertThreshold: threshold,
	})
	if err != nil {
		if handled, resp := budgetErrorResponse(c, err); handled {
			return resp
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to create budget")
		return NewInternalError(c, "Failed to create budget")
	}

	log.Info().Str("user_id", userID).Str("budget_id", budget.ID).Str("category_id", budget.CategoryID).Msg("Budget created")

	return c.JSON(http.StatusCreated, toBudgetResponse(budget))
}

// GetBudgets godoc
// @Summary List budgets
// @Description Get the user's budgets, optionally narrowed by status or category
// @Tags budgets
// @Produce json
// @Security BearerAuth
// @Param status query string false "CREATED, ACTIVE, WARNING or EXCEEDED"
// @Param categoryId query string false "Filter by category ID"
// @Success 200 {array} BudgetResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /budgets [get]
func (h *BudgetHandler) GetBudgets(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	filter := domain.BudgetFilter{
		UserID:     userID,
		CategoryID: c.QueryParam("categoryId"),
		Status:     domain.BudgetStatus(strings.ToUpper(c.QueryParam("status"))),
	}

	budgets, err := h.budgetService.ListBudgets(c.Request().Context(), filter)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStatus) {
			return NewValidationError(c, "Invalid status (must be CREATED, ACTIVE, WARNING or EXCEEDED)", nil)
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list budgets")
		return NewInternalError(c, "Failed to list budgets")
	}

	response := make([]BudgetResponse, len(budgets))
	for i, budget := range budgets {
		response[i] = toBudgetResponse(budget)
	}

	return c.JSON(http.StatusOK, response)
}

// GetBudget godoc
// @Summary Get a budget
// @Tags budgets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Budget ID"
// @Success 200 {object} BudgetResponse
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /budgets/{id} [get]
func (h *BudgetHandler) GetBudget(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	budget, err := h.budgetService.GetBudgetForUser(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return h.lookupError(c, userID, err)
	}

	return c.JSON(http.StatusOK, toBudgetResponse(budget))
}

// GetBudgetStats godoc
// @Summary Budget consumption
// @Description Limit, spent, remaining (may be negative) and usage percentage
// @Tags budgets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Budget ID"
// @Success 200 {object} BudgetStatsResponse
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /budgets/{id}/stats [get]
func (h *BudgetHandler) GetBudgetStats(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	budget, err := h.budgetService.GetBudgetForUser(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return h.lookupError(c, userID, err)
	}

	stats, err := h.budgetService.GetStats(c.Request().Context(), budget.ID)
	if err != nil {
		return h.lookupError(c, userID, err)
	}

	return c.JSON(http.StatusOK, BudgetStatsResponse{
		LimitAmount:     stats.LimitAmount.String(),
		SpentAmount:     stats.SpentAmount.String(),
		RemainingAmount: stats.RemainingAmount.String(),
		UsagePercentage: stats.UsagePercentage.String(),
		Status:          string(stats.Status),
	})
}

// UpdateBudget godoc
// @Summary Update a budget
// @Description Partially update a budget. Status and spent amount may be corrected explicitly.
// @Tags budgets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Budget ID"
// @Param request body UpdateBudgetRequest true "Fields to change"
// @Success 200 {object} BudgetResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /budgets/{id} [put]
func (h *BudgetHandler) UpdateBudget(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var req UpdateBudgetRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	patch, validationErrors := req.toPatch()
	if len(validationErrors) > 0 {
		return NewValidationError(c, "Validation failed", validationErrors)
	}

	if _, err := h.budgetService.GetBudgetForUser(c.Request().Context(), userID, c.Param("id")); err != nil {
		return h.lookupError(c, userID, err)
	}

	budget, err := h.budgetService.UpdateBudget(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		if errors.Is(err, domain.ErrBudgetNotFound) {
			return NewNotFoundError(c, "Budget not found")
		}
		if handled, resp := budgetErrorResponse(c, err); handled {
			return resp
		}
		log.Error().Err(err).Str("user_id", userID).Str("budget_id", c.Param("id")).Msg("Failed to update budget")
		return NewInternalError(c, "Failed to update budget")
	}

	log.Info().Str("user_id", userID).Str("budget_id", budget.ID).Msg("Budget updated")

	return c.JSON(http.StatusOK, toBudgetResponse(budget))
}

func (r UpdateBudgetRequest) toPatch() (domain.BudgetPatch, []ValidationError) {
	var patch domain.BudgetPatch
	var validationErrors []ValidationError

	parseDecimal := func(field string, value *string) *decimal.Decimal {
		if value == nil {
			return nil
		}
		d, err := decimal.NewFromString(*value)
		if err != nil {
			validationErrors = append(validationErrors, ValidationError{Field: field, Message: "Invalid number format"})
			return nil
		}
		return &d
	}
	parseDate := func(field string, value *string) *time.Time {
		if value == nil {
			return nil
		}
		t, err := time.Parse("2006-01-02", *value)
		if err != nil {
			validationErrors = append(validationErrors, ValidationError{Field: field, Message: "Invalid date format (use YYYY-MM-DD)"})
			return nil
		}
		return &t
	}

	patch.LimitAmount = parseDecimal("limitAmount", r.LimitAmount)
	patch.SpentAmount = parseDecimal("spentAmount", r.SpentAmount)
	patch.AlertThreshold = parseDecimal("alertThreshold", r.AlertThreshold)
	patch.StartDate = parseDate("startDate", r.StartDate)
	patch.EndDate = parseDate("endDate", r.EndDate)
	patch.LimitCurrency = r.LimitCurrency
	if r.Period != nil {
		period := domain.BudgetPeriod(strings.ToUpper(*r.Period))
		patch.Period = &period
	}
	if r.Status != nil {
		status := domain.BudgetStatus(strings.ToUpper(*r.Status))
		patch.Status = &status
	}

	return patch, validationErrors
}

// DeleteBudget godoc
// @Summary Delete a budget
// @Tags budgets
// @Security BearerAuth
// @Param id path string true "Budget ID"
// @Success 204 "No Content"
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /budgets/{id} [delete]
func (h *BudgetHandler) DeleteBudget(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	if _, err := h.budgetService.GetBudgetForUser(c.Request().Context(), userID, c.Param("id")); err != nil {
		return h.lookupError(c, userID, err)
	}

	if err := h.budgetService.DeleteBudget(c.Request().Context(), c.Param("id")); err != nil {
		return h.lookupError(c, userID, err)
	}

	log.Info().Str("user_id", userID).Str("budget_id", c.Param("id")).Msg("Budget deleted")

	return c.NoContent(http.StatusNoContent)
}

// ActivateBudget godoc
// @Summary Activate a budget
// @Description Move a CREATED budget to ACTIVE so spend is tracked against it
// @Tags budgets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Budget ID"
// @Success 200 {object} BudgetResponse
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /budgets/{id}/activate [post]
func (h *BudgetHandler) ActivateBudget(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	if _, err := h.budgetService.GetBudgetForUser(c.Request().Context(), userID, c.Param("id")); err != nil {
		return h.lookupError(c, userID, err)
	}

	budget, err := h.budgetService.ActivateBudget(c.Request().Context(), c.Param("id"))
	if err != nil {
		if handled, resp := budgetErrorResponse(c, err); handled {
			return resp
		}
		return h.lookupError(c, userID, err)
	}

	return c.JSON(http.StatusOK, toBudgetResponse(budget))
}

// ReevaluateBudget godoc
// @Summary Re-evaluate a budget
// @Description Recompute alert signals from the stored spend and advance the status if needed
// @Tags budgets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Budget ID"
// @Success 200 {object} BudgetCheckResponse
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /budgets/{id}/reevaluate [post]
func (h *BudgetHandler) ReevaluateBudget(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	if _, err := h.budgetService.GetBudgetForUser(c.Request().Context(), userID, c.Param("id")); err != nil {
		return h.lookupError(c, userID, err)
	}

	result, err := h.budgetService.ReevaluateBudget(c.Request().Context(), c.Param("id"))
	if err != nil {
		if handled, resp := budgetErrorResponse(c, err); handled {
			return resp
		}
		return h.lookupError(c, userID, err)
	}

	return c.JSON(http.StatusOK, toBudgetCheckResponse(result))
}

// CheckBudget godoc
// @Summary Record spend against a budget
// @Description Add an amount to the category's ACTIVE budget and report the alert signals
// @Tags budgets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CheckBudgetRequest true "Spend to record"
// @Success 200 {object} BudgetCheckResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /budgets/check [post]
func (h *BudgetHandler) CheckBudget(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var req CheckBudgetRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	if req.CategoryID == "" {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "categoryId", Message: "Category is required"},
		})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || !amount.IsPositive() {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "amount", Message: "Amount must be a positive number"},
		})
	}

	result, err := h.budgetService.CheckBudget(c.Request().Context(), userID, req.CategoryID, amount)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("category_id", req.CategoryID).Msg("Failed to check budget")
		if errors.Is(err, domain.ErrBudgetUpdateFailed) {
			return NewInternalError(c, "Failed to update budget")
		}
		return NewInternalError(c, "Failed to check budget")
	}

	return c.JSON(http.StatusOK, toBudgetCheckResponse(result))
}

func (h *BudgetHandler) lookupError(c echo.Context, userID string, err error) error {
	if errors.Is(err, domain.ErrBudgetNotFound) {
		return NewNotFoundError(c, "Budget not found")
	}
	log.Error().Err(err).Str("user_id", userID).Str("budget_id", c.Param("id")).Msg("Budget operation failed")
	return NewInternalError(c, "Failed to process budget")
}

// budgetErrorResponse maps budget validation and state errors to problem responses
func budgetErrorResponse(c echo.Context, err error) (bool, error) {
	var resp error
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "limitAmount", Message: "Amount must be greater than zero"},
		})
	case errors.Is(err, domain.ErrInvalidThreshold):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "alertThreshold", Message: "Threshold must be between 0 and 1 (or a percentage up to 100)"},
		})
	case errors.Is(err, domain.ErrInvalidPeriod):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "period", Message: "Period must be DAILY, WEEKLY, MONTHLY or YEARLY"},
		})
	case errors.Is(err, domain.ErrInvalidStatus):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "status", Message: "Status must be CREATED, ACTIVE, WARNING or EXCEEDED"},
		})
	case errors.Is(err, domain.ErrInvalidDateRange):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "endDate", Message: "End date must not be before start date"},
		})
	case errors.Is(err, domain.ErrInvalidCurrency):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "limitCurrency", Message: "Currency must be a 3-letter ISO code"},
		})
	case errors.Is(err, domain.ErrInvalidInput):
		resp = NewValidationError(c, err.Error(), nil)
	case errors.Is(err, domain.ErrBudgetAlreadyActive):
		resp = NewConflictError(c, "Another budget is already active for this category")
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		resp = NewConflictError(c, err.Error())
	default:
		return false, nil
	}
	return true, resp
}

func toBudgetResponse(b *domain.Budget) BudgetResponse {
	return BudgetResponse{
		ID:             b.ID,
		CategoryID:     b.CategoryID,
		LimitAmount:    b.LimitAmount.String(),
		LimitCurrency:  b.LimitCurrency,
		SpentAmount:    b.SpentAmount.String(),
		Period:         string(b.Period),
		Status:         string(b.Status),
		StartDate:      b.StartDate.Format("2006-01-02"),
		EndDate:        b.EndDate.Format("2006-01-02"),
		AlertThreshold: b.AlertThreshold.String(),
		CreatedAt:      b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      b.UpdatedAt.Format(time.RFC3339),
	}
}

func toBudgetCheckResponse(r *domain.BudgetCheckResult) BudgetCheckResponse {
	resp := BudgetCheckResponse{
		PreviousStatus:  string(r.PreviousStatus),
		UsagePercentage: r.UsagePercentage.String(),
		IsExceeded:      r.IsExceeded,
		ShouldAlert:     r.ShouldAlert,
		Message:         r.Message,
	}
	if r.Budget != nil {
		budget := toBudgetResponse(r.Budget)
		resp.Budget = &budget
	}
	return resp
}
