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
)

// CategoryHandler handles category-related HTTP requests
type CategoryHandler struct {
	categoryService *service.CategoryService
}

// NewCategoryHandler creates a new CategoryHandler
func NewCategoryHandler(categoryService *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{
		categoryService: categoryService,
	}
}

// CreateCategoryRequest represents the create category request body
type CreateCategoryRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// UpdateCategoryRequest represents the update category request body
type UpdateCategoryRequest struct {
	Name  *string `json:"name,omitempty"`
	Type  *string `json:"type,omitempty"`
	Color *string `json:"color,omitempty"`
	Icon  *string `json:"icon,omitempty"`
}

// CategoryResponse represents a category in API responses
type CategoryResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Color     string `json:"color"`
	Icon      string `json:"icon"`
	IsDefault bool   `json:"isDefault"`
	CreatedAt string `json:"createdAt"`
}

// CreateCategory godoc
// @Summary Create a category
// @Tags categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateCategoryRequest true "Category data"
// @Success 201 {object} CategoryResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /categories [post]
func (h *CategoryHandler) CreateCategory(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var req CreateCategoryRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	category, err := h.categoryService.CreateCategory(c.Request().Context(), userID, service.CreateCategoryInput{
		Name:  req.Name,
		Type:  domain.CategoryType(strings.ToUpper(req.Type)),
		Color: req.Color,
		Icon:  req.Icon,
	})
	if err != nil {
		if handled, resp := categoryErrorResponse(c, err); handled {
			return resp
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to create category")
		return NewInternalError(c, "Failed to create category")
	}

	log.Info().Str("user_id", userID).Str("category_id", category.ID).Str("name", category.Name).Msg("Category created")

	return c.JSON(http.StatusCreated, toCategoryResponse(category))
}

// GetCategories godoc
// @Summary List categories
// @Tags categories
// @Produce json
// @Security BearerAuth
// @Param type query string false "INCOME or EXPENSE"
// @Success 200 {array} CategoryResponse
// @Failure 400 {object} ProblemDetails
// @Failure 401 {object} ProblemDetails
// @Router /categories [get]
func (h *CategoryHandler) GetCategories(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var categoryType *domain.CategoryType
	if typeStr := c.QueryParam("type"); typeStr != "" {
		t := domain.CategoryType(strings.ToUpper(typeStr))
		if !t.Valid() {
			return NewValidationError(c, "Invalid type (must be 'INCOME' or 'EXPENSE')", nil)
		}
		categoryType = &t
	}

	categories, err := h.categoryService.GetCategories(c.Request().Context(), userID, categoryType)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get categories")
		return NewInternalError(c, "Failed to get categories")
	}

	response := make([]CategoryResponse, len(categories))
	for i, category := range categories {
		response[i] = toCategoryResponse(category)
	}

	return c.JSON(http.StatusOK, response)
}

// GetCategory godoc
// @Summary Get a category
// @Tags categories
// @Produce json
// @Security BearerAuth
// @Param id path string true "Category ID"
// @Success 200 {object} CategoryResponse
// @Failure 404 {object} ProblemDetails
// @Router /categories/{id} [get]
func (h *CategoryHandler) GetCategory(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	category, err := h.categoryService.GetCategoryByID(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrCategoryNotFound) {
			return NewNotFoundError(c, "Category not found")
		}
		log.Error().Err(err).Str("user_id", userID).Str("category_id", c.Param("id")).Msg("Failed to get category")
		return NewInternalError(c, "Failed to get category")
	}

	return c.JSON(http.StatusOK, toCategoryResponse(category))
}

// UpdateCategory godoc
// @Summary Update a category
// @Tags categories
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Category ID"
// @Param request body UpdateCategoryRequest true "Fields to change"
// @Success 200 {object} CategoryResponse
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /categories/{id} [put]
func (h *CategoryHandler) UpdateCategory(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	var req UpdateCategoryRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	patch := domain.CategoryPatch{
		Name:  req.Name,
		Color: req.Color,
		Icon:  req.Icon,
	}
	if req.Type != nil {
		t := domain.CategoryType(strings.ToUpper(*req.Type))
		patch.Type = &t
	}

	category, err := h.categoryService.UpdateCategory(c.Request().Context(), userID, c.Param("id"), patch)
	if err != nil {
		if handled, resp := categoryErrorResponse(c, err); handled {
			return resp
		}
		log.Error().Err(err).Str("user_id", userID).Str("category_id", c.Param("id")).Msg("Failed to update category")
		return NewInternalError(c, "Failed to update category")
	}

	return c.JSON(http.StatusOK, toCategoryResponse(category))
}

// DeleteCategory godoc
// @Summary Delete a category
// @Description Categories that still have transactions cannot be deleted
// @Tags categories
// @Security BearerAuth
// @Param id path string true "Category ID"
// @Success 204 "No Content"
// @Failure 404 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /categories/{id} [delete]
func (h *CategoryHandler) DeleteCategory(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return NewUnauthorizedError(c, "Authentication required")
	}

	if err := h.categoryService.DeleteCategory(c.Request().Context(), userID, c.Param("id")); err != nil {
		if handled, resp := categoryErrorResponse(c, err); handled {
			return resp
		}
		log.Error().Err(err).Str("user_id", userID).Str("category_id", c.Param("id")).Msg("Failed to delete category")
		return NewInternalError(c, "Failed to delete category")
	}

	log.Info().Str("user_id", userID).Str("category_id", c.Param("id")).Msg("Category deleted")

	return c.NoContent(http.StatusNoContent)
}

func categoryErrorResponse(c echo.Context, err error) (bool, error) {
	var resp error
	switch {
	case errors.Is(err, domain.ErrCategoryNotFound):
		resp = NewNotFoundError(c, "Category not found")
	case errors.Is(err, domain.ErrNameRequired):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "name", Message: "Name is required"},
		})
	case errors.Is(err, domain.ErrNameTooLong):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "name", Message: "Name must be 100 characters or less"},
		})
	case errors.Is(err, domain.ErrInvalidCategoryType):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "type", Message: "Type must be INCOME or EXPENSE"},
		})
	case errors.Is(err, domain.ErrInvalidColor):
		resp = NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "color", Message: "Color must be a hex value like #4CAF50"},
		})
	case errors.Is(err, domain.ErrCategoryAlreadyExists):
		resp = NewConflictError(c, "Category with this name already exists")
	case errors.Is(err, domain.ErrCategoryInUse):
		resp = NewConflictError(c, "Category has transactions and cannot be deleted")
	default:
		return false, nil
	}
	return true, resp
}

func toCategoryResponse(category *domain.Category) CategoryResponse {
	return CategoryResponse{
		ID:        category.ID,
		Name:      category.Name,
		Type:      string(category.Type),
		Color:     category.Color,
		Icon:      category.Icon,
		IsDefault: category.IsDefault,
		CreatedAt: category.CreatedAt.Format(time.RFC3339),
	}
}
