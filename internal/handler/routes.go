package handler

import (
	"net/http"

	"github.com/dafibh/fortuna/fortuna-budget/internal/middleware"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Handlers groups the HTTP handlers served under /api/v1
type Handlers struct {
	Auth        *AuthHandler
	Category    *CategoryHandler
	Transaction *TransactionHandler
	Budget      *BudgetHandler
	WebSocket   *WebSocketHandler
}

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter, h Handlers) {
	e.GET("/health", Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)
	e.GET("/openapi.json", ServeOpenAPI3Spec)

	// API version 1
	api := e.Group("/api/v1")

	// Auth routes (public)
	auth := api.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)

	// WebSocket authenticates with ?token= since browsers cannot send headers on upgrade
	api.GET("/ws", h.WebSocket.HandleWS)

	// Everything below requires a bearer token
	protected := api.Group("")
	protected.Use(authMiddleware.Authenticate())
	protected.Use(middleware.RateLimitMiddleware(rateLimiter))

	protected.GET("/auth/me", h.Auth.Me)
	protected.GET("/auth/users", h.Auth.ListUsers)
	protected.GET("/auth/users/:id", h.Auth.GetUser)

	// Category routes
	categories := protected.Group("/categories")
	categories.POST("", h.Category.CreateCategory)
	categories.GET("", h.Category.GetCategories)
	categories.GET("/:id", h.Category.GetCategory)
	categories.PUT("/:id", h.Category.UpdateCategory)
	categories.DELETE("/:id", h.Category.DeleteCategory)

	// Transaction routes
	transactions := protected.Group("/transactions")
	transactions.POST("", h.Transaction.CreateTransaction)
	transactions.GET("", h.Transaction.GetTransactions)
	transactions.GET("/stats", h.Transaction.GetTransactionStats)
	transactions.GET("/:id", h.Transaction.GetTransaction)
	transactions.PUT("/:id", h.Transaction.UpdateTransaction)
	transactions.DELETE("/:id", h.Transaction.DeleteTransaction)
	transactions.POST("/:id/receipt", h.Transaction.UploadReceipt)
	transactions.GET("/:id/receipt", h.Transaction.GetReceipt)

	// Budget routes
	budgets := protected.Group("/budgets")
	budgets.POST("", h.Budget.CreateBudget)
	budgets.GET("", h.Budget.GetBudgets)
	budgets.POST("/check", h.Budget.CheckBudget)
	budgets.GET("/:id", h.Budget.GetBudget)
	budgets.GET("/:id/stats", h.Budget.GetBudgetStats)
	budgets.PUT("/:id", h.Budget.UpdateBudget)
	budgets.DELETE("/:id", h.Budget.DeleteBudget)
	budgets.POST("/:id/activate", h.Budget.ActivateBudget)
	budgets.POST("/:id/reevaluate", h.Budget.ReevaluateBudget)
}

// Health godoc
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
