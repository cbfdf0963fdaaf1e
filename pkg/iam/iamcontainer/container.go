package iamcontainer

import (
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/senderpro/senderpro/pkg/config"
	"github.com/senderpro/senderpro/pkg/iam/apikey"
	"github.com/senderpro/senderpro/pkg/iam/apikey/apikeyinfra"
	"github.com/senderpro/senderpro/pkg/iam/apikey/apikeysrv"
	"github.com/senderpro/senderpro/pkg/iam/auth"
	"github.com/senderpro/senderpro/pkg/iam/auth/authinfra"
	"github.com/senderpro/senderpro/pkg/logx"
)

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// No hidden globals, no ambient state — everything comes through here.
// ---------------------------------------------------------------------------

type Deps struct {
	DB    *sqlx.DB
	Redis *redis.Client
	Cfg   *config.Config
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// Only expose what other modules or cmd/ actually need.
// Internal repos, infra details, etc. stay private.
// ---------------------------------------------------------------------------

type Container struct {
	// Services — available for cross-module consumption via interfaces
	TokenService   auth.TokenService
	SessionService *auth.SessionService
	KeyManager     *apikeysrv.Manager

	// Handlers — needed by cmd/ to register routes
	AuthHandlers   *auth.AuthHandlers
	APIKeyHandlers *apikey.Handlers

	// Middleware — needed by cmd/ to protect route groups
	AuthMiddleware *auth.TokenMiddleware

	// Background services
	CleanupService *authinfra.CleanupService
}

// ---------------------------------------------------------------------------
// New: constructs the entire IAM dependency graph.
// Order matters: infra → repos → services → handlers → middleware.
// ---------------------------------------------------------------------------

func New(deps Deps) *Container {
	logx.Info("🔧 Initializing IAM container...")

	c := &Container{}

	// ── Repositories ─────────────────────────────────────────────────────

	tokenRepo := authinfra.NewPostgresTokenRepository(deps.DB)
	userDirectory := authinfra.NewPostgresUserDirectory(deps.DB)

	var bundleRepo apikey.BundleRepository
	if deps.Cfg.Auth.APIKey.BundleStore == "redis" {
		bundleRepo = apikeyinfra.NewRedisBundleRepository(deps.Redis, deps.Cfg.Auth.APIKey.ExpiryWindow)
		logx.Info("  ✅ Using Redis key bundle store")
	} else {
		bundleRepo = apikeyinfra.NewPostgresBundleRepository(deps.DB)
		logx.Info("  ✅ Using Postgres key bundle store")
	}

	// ── Infrastructure services ──────────────────────────────────────────

	passwordSvc := authinfra.NewBcryptPasswordService(deps.Cfg.Auth.Password.BcryptCost)
	auditSvc := authinfra.NewLogxAuditService()

	c.TokenService = auth.NewJWTServiceFromConfig(&deps.Cfg.Auth.JWT)

	refreshStore := auth.NewRefreshTokenStore(tokenRepo, deps.Cfg.Auth.RefreshToken.TTL)

	// ── Domain services ──────────────────────────────────────────────────

	c.SessionService = auth.NewSessionService(
		c.TokenService,
		refreshStore,
		userDirectory,
		auditSvc,
	)

	c.KeyManager = apikeysrv.NewManager(bundleRepo, &deps.Cfg.Auth.APIKey)

	// ── Handlers ─────────────────────────────────────────────────────────

	c.AuthHandlers = auth.NewAuthHandlers(
		c.SessionService,
		userDirectory,
		passwordSvc,
		c.KeyManager,
	)
	c.APIKeyHandlers = apikey.NewHandlers(c.KeyManager)

	// ── Middleware ────────────────────────────────────────────────────────

	c.AuthMiddleware = auth.NewTokenMiddleware(c.TokenService, c.SessionService, userDirectory)

	// ── Background services ──────────────────────────────────────────────

	c.CleanupService = authinfra.NewCleanupService(refreshStore, deps.Cfg.Auth.RefreshToken.CleanupInterval)

	logx.Info("✅ IAM container initialized")
	return c
}

// StartBackgroundServices starts IAM-specific background workers.
func (c *Container) StartBackgroundServices() {
	c.CleanupService.Start()
	logx.Info("  ✅ IAM cleanup service started")
}

// StopBackgroundServices stops IAM-specific background workers.
func (c *Container) StopBackgroundServices() {
	c.CleanupService.Stop()
}
