package apikey

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/senderpro/senderpro/pkg/iam"
	"github.com/senderpro/senderpro/pkg/iam/scopes"
	"github.com/senderpro/senderpro/pkg/kernel"
)

// BundleManager is the service surface the HTTP handlers need. Implemented
// by apikeysrv.Manager.
type BundleManager interface {
	GetBundleWithAutoRotate(ctx context.Context, userID kernel.UserID) (map[string]KeyEntry, error)
	GenerateAllKeys(ctx context.Context, userID kernel.UserID) (*Bundle, error)
}

// Handlers exposes key bundle management over HTTP. Every route requires an
// authenticated session; keys are never managed with an API key.
type Handlers struct {
	manager BundleManager
}

// NewHandlers creates the handler set.
func NewHandlers(manager BundleManager) *Handlers {
	return &Handlers{manager: manager}
}

// RegisterRoutes mounts the key management endpoints behind the given
// guards, normally session authentication plus the auth-context check.
func (h *Handlers) RegisterRoutes(app *fiber.App, guards ...fiber.Handler) {
	grp := app.Group("/api/v1/api-keys", guards...)
	grp.Get("/", h.GetBundle)
	grp.Post("/regenerate", h.Regenerate)
	grp.Get("/scopes", h.ListScopes)
}

// GetBundle returns the caller's current key bundle, generating or rotating
// it first when needed.
func (h *Handlers) GetBundle(c *fiber.Ctx) error {
	authCtx := sessionUser(c)
	if authCtx == nil {
		return respondError(c, iam.ErrUnauthorized())
	}

	keys, err := h.manager.GetBundleWithAutoRotate(c.UserContext(), authCtx.UserID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"api_keys": keys})
}

// Regenerate replaces the caller's whole bundle with fresh keys. The old
// keys stop validating only once their own expiry passes; the new bundle is
// what subsequent reads return.
func (h *Handlers) Regenerate(c *fiber.Ctx) error {
	authCtx := sessionUser(c)
	if authCtx == nil {
		return respondError(c, iam.ErrUnauthorized())
	}

	bundle, err := h.manager.GenerateAllKeys(c.UserContext(), authCtx.UserID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"api_keys":     bundle.Keys,
		"last_rotated": bundle.LastRotated,
	})
}

// ListScopes returns the recognized scope catalog.
func (h *Handlers) ListScopes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"scopes": scopes.Descriptions})
}

// sessionUser returns the auth context only when it belongs to a session,
// never an API key.
func sessionUser(c *fiber.Ctx) *kernel.AuthContext {
	authCtx, ok := c.Locals(string(kernel.AuthContextKey)).(*kernel.AuthContext)
	if !ok || authCtx == nil || !authCtx.IsValid() || authCtx.IsAPIKey {
		return nil
	}
	return authCtx
}
