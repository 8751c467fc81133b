package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/auth"
	"github.com/dafibh/fortuna/fortuna-budget/internal/broker"
	"github.com/dafibh/fortuna/fortuna-budget/internal/config"
	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/dafibh/fortuna/fortuna-budget/internal/handler"
	"github.com/dafibh/fortuna/fortuna-budget/internal/middleware"
	"github.com/dafibh/fortuna/fortuna-budget/internal/repository/memory"
	"github.com/dafibh/fortuna/fortuna-budget/internal/repository/postgres"
	"github.com/dafibh/fortuna/fortuna-budget/internal/repository/storage"
	"github.com/dafibh/fortuna/fortuna-budget/internal/service"
	"github.com/dafibh/fortuna/fortuna-budget/internal/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// @title Fortuna Budget API
// @version 1.0
// @description Personal finance API: categories, transactions and budgets with spend alerts.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.
func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	repos, closeRepos := openRepositories(cfg)
	defer closeRepos()

	// Realtime hub
	hub := websocket.NewHub()

	// Initialize services
	issuer := auth.NewTokenIssuer(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.TTL)
	authService := service.NewAuthService(repos.users, issuer)
	categoryService := service.NewCategoryService(repos.categories, repos.transactions)
	budgetService := service.NewBudgetService(repos.budgets)
	transactionService := service.NewTransactionService(repos.transactions, repos.categories, budgetService)

	categoryService.SetEventPublisher(hub)
	budgetService.SetEventPublisher(hub)
	transactionService.SetEventPublisher(hub)

	// Budget alerts to the broker
	var alertPublisher *broker.AsyncPublisher
	if cfg.AMQP.Enabled() {
		alertPublisher = broker.NewAsyncPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue)
		transactionService.SetAlertPublisher(alertPublisher)
		log.Info().Str("exchange", cfg.AMQP.Exchange).Str("queue", cfg.AMQP.Queue).Msg("Budget alerts publishing to AMQP")
	} else {
		transactionService.SetAlertPublisher(broker.NoOpPublisher{})
		log.Info().Msg("AMQP not configured, budget alerts go to websocket clients only")
	}

	// Receipt storage
	receiptService := service.NewReceiptService(nil, repos.transactions, cfg.S3.URLExpiry)
	if cfg.S3.Enabled() {
		store, err := storage.NewS3ReceiptStore(context.Background(), cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create receipt storage")
		}
		receiptService = service.NewReceiptService(store, repos.transactions, cfg.S3.URLExpiry)
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Receipt storage enabled")
	} else {
		log.Info().Msg("S3 not configured, receipt uploads disabled")
	}

	// Initialize auth
	tokenValidator, err := auth.NewTokenValidator(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create token validator")
	}
	authMiddleware := middleware.NewAuthMiddleware(tokenValidator)
	rateLimiter := middleware.NewRateLimiterWithConfig(cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	// Initialize handlers
	handlers := handler.Handlers{
		Auth:        handler.NewAuthHandler(authService),
		Category:    handler.NewCategoryHandler(categoryService),
		Transaction: handler.NewTransactionHandler(transactionService, receiptService),
		Budget:      handler.NewBudgetHandler(budgetService, categoryService),
		WebSocket:   handler.NewWebSocketHandler(hub, websocket.NewJWTAuthenticator(tokenValidator, authService), cfg.CORSOrigins),
	}

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Security headers middleware
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	// Uploads are capped at 5MB, leave room for the multipart envelope
	e.Use(echomiddleware.BodyLimit("6M"))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	// Register routes
	handler.RegisterRoutes(e, authMiddleware, rateLimiter, handlers)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Str("storage", cfg.StorageDriver).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Shutdown()
	rateLimiter.Stop()
	if alertPublisher != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := alertPublisher.Close(flushCtx); err != nil {
			log.Warn().Err(err).Msg("Alert publisher did not flush in time")
		}
		flushCancel()
	}

	log.Info().Msg("Server exited")
}

type repositories struct {
	users        domain.UserRepository
	categories   domain.CategoryRepository
	transactions domain.TransactionRepository
	budgets      domain.BudgetRepository
}

// openRepositories builds the configured storage driver. The returned func releases it.
func openRepositories(cfg *config.Config) (repositories, func()) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		store := memory.NewStore()
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		return repositories{
			users:        store.Users,
			categories:   store.Categories,
			transactions: store.Transactions,
			budgets:      store.Budgets,
		}, func() {}
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	// Verify database connection
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	return repositories{
		users:        postgres.NewUserRepository(pool),
		categories:   postgres.NewCategoryRepository(pool),
		transactions: postgres.NewTransactionRepository(pool),
		budgets:      postgres.NewBudgetRepository(pool),
	}, pool.Close
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			event := log.Info()
			if res.Status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Msg("request")

			return nil
		}
	}
}
