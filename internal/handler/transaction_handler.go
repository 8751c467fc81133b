package handler

import (
	"errors"
	"io"
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

// TransactionHandler handles transaction-related HTTP requests
type TransactionHandler struct {
	transactionService *service.TransactionService
	receiptService     *service.ReceiptService
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(transactionService *service.TransactionService, receiptService *service.ReceiptService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		receiptService:     receiptService,
	}
}

// CreateTransactionRequest represents the create transaction request body
type CreateTransactionRequest struct {
	CategoryID  string  `json:"categoryId"`
	Type        string  `json:"type"`
	Amount      string  `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	Date        *string `json:"date,omitempty"`
}

// UpdateTransactionRequest represents the update transaction request body.
// Omitted fields are left unchanged.
type UpdateTransactionRequest struct {
	CategoryID  *string `json:"categoryId,omitempty"`
	Type        *string `json:"type,omitempty"`
	Amount      *string `json:"amount,omitempty"`
	Currency    *string `json:"currency,omitempty"`
	Description *string `json:"description,omitempty"`
	Date        *string `json:"date,omitempty"`
}

// TransactionResponse represents a transaction in API responses
type TransactionResponse struct {
	ID          string `json:"id"`
	CategoryID  string `json:"categoryId"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Date        string `json:"date"`
	HasReceipt  bool   `json:"hasReceipt"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// CreateTransactionResponse is returned by POST /transactions. BudgetCheckError is set
// when the transaction was stored but the budget could not be evaluated.
type CreateTransactionResponse struct {
	Transaction      TransactionResponse  `json:"transaction"`
	BudgetCheck      *BudgetCheckResponse `json:"budgetCheck,omitempty"`
	BudgetCheckError string               `json:"budgetCheckError,omitempty"`
}

// TransactionStatsResponse represents income/expense totals in API responses
type TransactionStatsResponse struct {
	TotalIncome   string `json:"totalIncome"`
	TotalExpenses string `json:"totalExpenses"`
	Balance       string `json:"balance"`
}

// CreateTransaction godoc
// @Summary Create a transaction
// @Description Record an income or expense. Expenses are checked against the category's active budget.
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateTransactionRequest true "Transaction data"
// @Success 201 {object} CreateTransactionResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /transactions [post]
func (h *TransactionHandler) CreateTransaction(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var req CreateTransactionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	if req.CategoryID == "" {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "categoryId", Message: "Category is required"},
		})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "amount", Message: "Invalid amount format"},
		})
	}

	input := service.CreateTransactionInput{
		CategoryID:  req.CategoryID,
		Type:        domain.TransactionType(strings.ToUpper(req.Type)),
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
	}

	if req.Date != nil && *req.Date != "" {
		parsed, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "date", Message: "Invalid date format (use YYYY-MM-DD)"},
			})
		}
		input.Date = &parsed
	}

	result, err := h.transactionService.CreateTransaction(c.Request().Context(), userID, input)
	if err != nil && service.IsBudgetCheckFailure(err) && result != nil {
		return c.JSON(http.StatusCreated, CreateTransactionResponse{
			Transaction:      toTransactionResponse(result.Transaction),
			BudgetCheckError: "Transaction recorded but the budget could not be checked",
		})
	}
	if err != nil {
		if handled, resp := transactionErrorResponse(c, err); handled {
			return resp
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to create transaction")
		return NewInternalError(c, "Failed to create transaction")
	}

	log.Info().
		Str("user_id", userID).
		Str("transaction_id", result.Transaction.ID).
		Str("type", string(result.Transaction.Type)).
		Msg("Transaction created")

	resp := CreateTransactionResponse{Transaction: toTransactionResponse(result.Transaction)}
	if result.BudgetCheck != nil {
		check := toBudgetCheckResponse(result.BudgetCheck)
		resp.BudgetCheck = &check
	}
	return c.JSON(http.StatusCreated, resp)
}

// GetTransactions godoc
// @Summary List transactions
// @Description Get the user's transactions, newest first, with optional filters
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param type query string false "INCOME or EXPENSE"
// @Param categoryId query string false "Filter by category ID"
// @Param startDate query string false "Start date (YYYY-MM-DD)"
// @Param endDate query string false "End date (YYYY-MM-DD)"
// @Success 200 {array} TransactionResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /transactions [get]
func (h *TransactionHandler) GetTransactions(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	filters := &domain.TransactionFilters{}

	if categoryID := c.QueryParam("categoryId"); categoryID != "" {
		filters.CategoryID = &categoryID
	}

	if typeStr := c.QueryParam("type"); typeStr != "" {
		transactionType := domain.TransactionType(strings.ToUpper(typeStr))
		if !transactionType.Valid() {
			return NewValidationError(c, "Invalid type (must be 'INCOME' or 'EXPENSE')", nil)
		}
		filters.Type = &transactionType
	}

	if startDateStr := c.QueryParam("startDate"); startDateStr != "" {
		parsed, err := time.Parse("2006-01-02", startDateStr)
		if err != nil {
			return NewValidationError(c, "Invalid startDate format (use YYYY-MM-DD)", nil)
		}
		filters.StartDate = &parsed
	}

	if endDateStr := c.QueryParam("endDate"); endDateStr != "" {
		parsed, err := time.Parse("2006-01-02", endDateStr)
		if err != nil {
			return NewValidationError(c, "Invalid endDate format (use YYYY-MM-DD)", nil)
		}
		filters.EndDate = &parsed
	}

	transactions, err := h.transactionService.GetTransactions(c.Request().Context(), userID, filters)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDateRange) {
			return NewValidationError(c, "startDate must not be after endDate", nil)
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get transactions")
		return NewInternalError(c, "Failed to get transactions")
	}

	response := make([]TransactionResponse, len(transactions))
	for i, transaction := range transactions {
		response[i] = toTransactionResponse(transaction)
	}

	return c.JSON(http.StatusOK, response)
}

// GetTransactionStats godoc
// @Summary Transaction totals
// @Description Total income, total expenses and balance for the user
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} TransactionStatsResponse
// @Failure 401 {object} ProblemDetails
// @Router /transactions/stats [get]
func (h *TransactionHandler) GetTransactionStats(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	stats, err := h.transactionService.GetStats(c.Request().Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get transaction stats")
		return NewInternalError(c, "Failed to get transaction stats")
	}

	return c.JSON(http.StatusOK, TransactionStatsResponse{
		TotalIncome:   stats.TotalIncome.StringFixed(2),
		TotalExpenses: stats.TotalExpenses.StringFixed(2),
		Balance:       stats.Balance.StringFixed(2),
	})
}

// GetTransaction godoc
// @Summary Get a transaction
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} TransactionResponse
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /transactions/{id} [get]
func (h *TransactionHandler) GetTransaction(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	transaction, err := h.transactionService.GetTransactionByID(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return NewNotFoundError(c, "Transaction not found")
		}
		log.Error().Err(err).Str("user_id", userID).Str("transaction_id", c.Param("id")).Msg("Failed to get transaction")
		return NewInternalError(c, "Failed to get transaction")
	}

	return c.JSON(http.StatusOK, toTransactionResponse(transaction))
}

// UpdateTransaction godoc
// @Summary Update a transaction
// @Description Partially update a transaction. Budgets are not recalculated.
// @Tags transactions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param request body UpdateTransactionRequest true "Fields to change"
// @Success 200 {object} TransactionResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /transactions/{id} [put]
func (h *TransactionHandler) UpdateTransaction(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var req UpdateTransactionRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	patch := domain.TransactionPatch{
		CategoryID:  req.CategoryID,
		Currency:    req.Currency,
		Description: req.Description,
	}
	if req.Type != nil {
		transactionType := domain.TransactionType(strings.ToUpper(*req.Type))
		patch.Type = &transactionType
	}
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "amount", Message: "Invalid amount format"},
			})
		}
		patch.Amount = &amount
	}
	if req.Date != nil {
		parsed, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "date", Message: "Invalid date format (use YYYY-MM-DD)"},
			})
		}
		patch.Date = &parsed
	}

	transaction, err := h.transactionService.UpdateTransaction(c.Request().Context(), userID, c.Param("id"), patch)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return NewNotFoundError(c, "Transaction not found")
		}
		if handled, resp := transactionErrorResponse(c, err); handled {
			return resp
		}
		log.Error().Err(err).Str("user_id", userID).Str("transaction_id", c.Param("id")).Msg("Failed to update transaction")
		return NewInternalError(c, "Failed to update transaction")
	}

	log.Info().Str("user_id", userID).Str("transaction_id", transaction.ID).Msg("Transaction updated")

	return c.JSON(http.StatusOK, toTransactionResponse(transaction))
}

// DeleteTransaction godoc
// @Summary Delete a transaction
// @Description Delete a transaction. Budgets are not recalculated.
// @Tags transactions
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 204 "No Content"
// @Failure 401 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /transactions/{id} [delete]
func (h *TransactionHandler) DeleteTransaction(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	if err := h.transactionService.DeleteTransaction(c.Request().Context(), userID, c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return NewNotFoundError(c, "Transaction not found")
		}
		log.Error().Err(err).Str("user_id", userID).Str("transaction_id", c.Param("id")).Msg("Failed to delete transaction")
		return NewInternalError(c, "Failed to delete transaction")
	}

	log.Info().Str("user_id", userID).Str("transaction_id", c.Param("id")).Msg("Transaction deleted")

	return c.NoContent(http.StatusNoContent)
}

// UploadReceipt godoc
// @Summary Attach a receipt image
// @Description Upload a JPEG or PNG receipt (max 5MB). Replaces any earlier receipt.
// @Tags transactions
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param file formData file true "Receipt image"
// @Success 201 {object} service.ReceiptURLs
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 503 {object} ProblemDetails
// @Router /transactions/{id}/receipt [post]
func (h *TransactionHandler) UploadReceipt(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	if h.receiptService == nil || !h.receiptService.IsEnabled() {
		return NewServiceUnavailableError(c, "Receipt uploads are disabled (storage not configured)")
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewValidationError(c, "No file provided", []ValidationError{
			{Field: "file", Message: "File is required"},
		})
	}

	src, err := file.Open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open uploaded file")
		return NewInternalError(c, "Failed to process file")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, service.MaxReceiptSize+1))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read uploaded file")
		return NewInternalError(c, "Failed to read file")
	}

	urls, err := h.receiptService.UploadReceipt(c.Request().Context(), userID, c.Param("id"), data, file.Filename)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTransactionNotFound):
			return NewNotFoundError(c, "Transaction not found")
		case errors.Is(err, service.ErrReceiptTooLarge),
			errors.Is(err, service.ErrInvalidReceiptFormat),
			errors.Is(err, service.ErrReceiptTooSmall),
			errors.Is(err, service.ErrInvalidReceiptData):
			return NewValidationError(c, "Validation failed", []ValidationError{
				{Field: "file", Message: err.Error()},
			})
		default:
			log.Error().Err(err).Str("user_id", userID).Str("transaction_id", c.Param("id")).Msg("Failed to upload receipt")
			return NewInternalError(c, "Failed to upload receipt")
		}
	}

	return c.JSON(http.StatusCreated, urls)
}

// GetReceipt godoc
// @Summary Get receipt URLs
// @Description Fresh presigned URLs for the transaction's receipt variants
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} service.ReceiptURLs
// @Failure 404 {object} ProblemDetails
// @Failure 503 {object} ProblemDetails
// @Router /transactions/{id}/receipt [get]
func (h *TransactionHandler) GetReceipt(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	if h.receiptService == nil || !h.receiptService.IsEnabled() {
		return NewServiceUnavailableError(c, "Receipt storage is not configured")
	}

	urls, err := h.receiptService.GetReceiptURLs(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTransactionNotFound):
			return NewNotFoundError(c, "Transaction not found")
		case errors.Is(err, service.ErrReceiptNotFound):
			return NewNotFoundError(c, "Transaction has no receipt")
		default:
			log.Error().Err(err).Str("user_id", userID).Str("transaction_id", c.Param("id")).Msg("Failed to get receipt")
			return NewInternalError(c, "Failed to get receipt")
		}
	}

	return c.JSON(http.StatusOK, urls)
}

// transactionErrorResponse maps validation and lookup errors shared by create and update
func transactionErrorResponse(c echo.Context, err error) (bool, error) {
	var resp error
	switch {
	case errors.Is(err, domain.ErrCategoryNotFound):
		resp = NewNotFoundError(c, "Category not found")
	case errors.Is(err, domain.ErrInvalidTransactionType):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "type", Message: "Type must be INCOME or EXPENSE"},
		})
	case errors.Is(err, domain.ErrInvalidAmount):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "amount", Message: "Amount must be greater than zero"},
		})
	case errors.Is(err, domain.ErrInvalidCurrency):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "currency", Message: "Currency must be a 3-letter ISO code"},
		})
	case errors.Is(err, domain.ErrDescriptionTooLong):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "description", Message: "Description must be 500 characters or less"},
		})
	default:
		return false, nil
	}
	return true, resp
}

func toTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          t.ID,
		CategoryID:  t.CategoryID,
		Type:        string(t.Type),
		Amount:      t.Amount.StringFixed(2),
		Currency:    t.Currency,
		Description: t.Description,
		Date:        t.Date.Format("2006-01-02"),
		HasReceipt:  t.ReceiptPath != nil,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339),
	}
}
