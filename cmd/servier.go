package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/senderpro/senderpro/pkg/config"
	"github.com/senderpro/senderpro/pkg/errx"
	"github.com/senderpro/senderpro/pkg/iam/apikey"
	"github.com/senderpro/senderpro/pkg/iam/auth"
	"github.com/senderpro/senderpro/pkg/iam/scopes"
	"github.com/senderpro/senderpro/pkg/kernel"
	"github.com/senderpro/senderpro/pkg/logx"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	if cfg.Auth.JWT.Secret == "" {
		logx.Fatal("SECRET_KEY is required")
	}

	logx.Info("🚀 Starting SenderPro API Server...")

	// 2. Initialize Dependency Container
	container := NewContainer(cfg)
	defer container.Cleanup()

	// 3. Create Fiber App with Config
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler,
		IdleTimeout:           120 * time.Second,
	})

	// 4. Global Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return uuid.New().String()
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  getCORSOrigins(),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-API-Key, X-Refresh-Token, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID, X-New-Access-Token, X-Token-Refreshed",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	// 5. Health Check & Info Endpoints
	app.Get("/health", healthCheckHandler(container))
	app.Get("/", infoHandler)

	// 6. Register Routes

	// ========================================================================
	// Session Routes
	// ========================================================================
	// Routes: /auth/login, /auth/refresh, /auth/logout, /auth/logout-all, /auth/me
	container.IAM.AuthHandlers.RegisterRoutes(app, container.IAM.AuthMiddleware)
	logx.Info("✓ Auth routes registered")

	// ========================================================================
	// API Key Management Routes
	// ========================================================================
	// Routes: /api/v1/api-keys, /api/v1/api-keys/regenerate, /api/v1/api-keys/scopes
	container.IAM.APIKeyHandlers.RegisterRoutes(app, container.IAM.AuthMiddleware.Authenticate(), auth.RequireAuth())
	logx.Info("✓ API key routes registered")

	// ========================================================================
	// Integration Routes (scoped API key required)
	// ========================================================================
	registerIntegrationRoutes(app, container.IAM.KeyManager)
	logx.Info("✓ Integration routes registered")

	// 7. 404 Handler
	app.Use(notFoundHandler)

	// 8. Start Server with Graceful Shutdown
	container.StartBackgroundServices()
	startServer(app, cfg)
}

// registerIntegrationRoutes mounts one scoped verification endpoint per
// recognized scope. Integration clients hit these to check a key before
// pointing real traffic at the channel APIs.
func registerIntegrationRoutes(app *fiber.App, validator apikey.KeyValidator) {
	grp := app.Group("/api/v1/integrations")
	for _, scope := range scopes.All() {
		route := strings.ReplaceAll(scope, "_", "-")
		grp.Get("/"+route+"/verify", apikey.RequireScope(validator, scope), integrationVerifyHandler(scope))
	}
}

func integrationVerifyHandler(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authCtx, _ := c.Locals(string(kernel.AuthContextKey)).(*kernel.AuthContext)
		if authCtx == nil {
			return fiber.ErrUnauthorized
		}
		return c.JSON(fiber.Map{
			"user_id": authCtx.UserID,
			"scope":   scope,
			"valid":   true,
		})
	}
}

// ============================================================================
// Handler Functions
// ============================================================================

// healthCheckHandler returns a health check handler
func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": container.Config.App.Name,
			"version": getEnv("APP_VERSION", "1.0.0"),
		}

		// Check database
		if err := container.DB.Ping(); err != nil {
			health["db"] = "unhealthy"
			health["db_error"] = err.Error()
			health["status"] = "degraded"
		} else {
			health["db"] = "healthy"
		}

		// Check Redis only when the bundle store depends on it
		if container.Config.Auth.APIKey.BundleStore == "redis" {
			if err := container.Redis.Ping(c.Context()).Err(); err != nil {
				health["redis"] = "unhealthy"
				health["redis_error"] = err.Error()
				health["status"] = "degraded"
			} else {
				health["redis"] = "healthy"
			}
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}

		return c.Status(status).JSON(health)
	}
}

// infoHandler returns basic API information
func infoHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service":     "SenderPro API",
		"version":     getEnv("APP_VERSION", "1.0.0"),
		"description": "Multi-channel marketing automation backend",
		"endpoints": fiber.Map{
			"auth":     "/auth/*",
			"api_keys": "/api/v1/api-keys/*",
			"health":   "/health",
		},
		"authentication": fiber.Map{
			"types": []string{"JWT", "API Key"},
			"headers": fiber.Map{
				"jwt":     "Authorization: Bearer <token>",
				"api_key": "X-API-Key: <key>",
			},
		},
	})
}

// notFoundHandler handles 404 errors
func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"message":    "The requested endpoint does not exist",
		"request_id": c.Get("X-Request-ID"),
	})
}

// ============================================================================
// Error Handler
// ============================================================================

// globalErrorHandler converts internal errors to standard HTTP responses
func globalErrorHandler(c *fiber.Ctx, err error) error {
	// Log the error with context
	logx.WithFields(logx.Fields{
		"path":       c.Path(),
		"method":     c.Method(),
		"ip":         c.IP(),
		"request_id": c.Get("X-Request-ID"),
		"user_agent": c.Get("User-Agent"),
	}).Errorf("Request error: %v", err)

	// If it's a Fiber error
	if e, ok := err.(*fiber.Error); ok {
		return c.Status(e.Code).JSON(fiber.Map{
			"error":      e.Message,
			"code":       "FIBER_ERROR",
			"status":     e.Code,
			"request_id": c.Get("X-Request-ID"),
		})
	}

	// If it's our custom errx.Error
	if e, ok := err.(*errx.Error); ok {
		response := fiber.Map{
			"error":      e.Message,
			"code":       e.Code,
			"type":       string(e.Type),
			"status":     e.HTTPStatus,
			"request_id": c.Get("X-Request-ID"),
		}

		// Include details if present
		if len(e.Details) > 0 {
			response["details"] = e.Details
		}

		// Include underlying error in debug mode
		if getEnv("DEBUG", "false") == "true" && e.Err != nil {
			response["underlying_error"] = e.Err.Error()
		}

		return c.Status(e.HTTPStatus).JSON(response)
	}

	// Default unknown error
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":      "Internal Server Error",
		"type":       "INTERNAL",
		"code":       "INTERNAL_ERROR",
		"message":    "An unexpected error occurred",
		"request_id": c.Get("X-Request-ID"),
	})
}

// ============================================================================
// Utility Functions
// ============================================================================

// getCORSOrigins returns allowed CORS origins
func getCORSOrigins() string {
	origins := os.Getenv("CORS_ORIGINS")
	if origins == "" {
		return "*" // Default for development
	}
	return origins
}

// startServer starts the server with graceful shutdown
func startServer(app *fiber.App, cfg *config.Config) {
	addr := fmt.Sprintf(":%d", cfg.App.Port)

	// Run server in a goroutine
	go func() {
		logx.Infof("🚀 Server listening on %s", addr)
		logx.Infof("💚 Health Check: http://localhost%s/health", addr)

		if err := app.Listen(addr); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	gracefulShutdown(app)
}

// gracefulShutdown handles graceful server shutdown
func gracefulShutdown(app *fiber.App) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for interrupt signal
	sig := <-sigChan
	logx.Infof("🛑 Received signal: %v", sig)
	logx.Info("Shutting down gracefully...")

	// Shutdown the server with timeout
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}

	logx.Info("✅ Server exited successfully")
}
