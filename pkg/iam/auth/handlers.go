package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/senderpro/senderpro/pkg/iam"
	"github.com/senderpro/senderpro/pkg/iam/apikey"
	"github.com/senderpro/senderpro/pkg/kernel"
	"github.com/senderpro/senderpro/pkg/logx"
)

// KeyBundleProvider supplies the integration key bundle embedded in login
// responses. The method name spells out that reading may rotate and write.
type KeyBundleProvider interface {
	GetBundleWithAutoRotate(ctx context.Context, userID kernel.UserID) (map[string]apikey.KeyEntry, error)
}

// AuthHandlers exposes the session lifecycle over HTTP.
type AuthHandlers struct {
	sessions  *SessionService
	users     UserDirectory
	passwords PasswordService
	keys      KeyBundleProvider
}

// NewAuthHandlers creates the handler set.
func NewAuthHandlers(sessions *SessionService, users UserDirectory, passwords PasswordService, keys KeyBundleProvider) *AuthHandlers {
	return &AuthHandlers{
		sessions:  sessions,
		users:     users,
		passwords: passwords,
		keys:      keys,
	}
}

// RegisterRoutes mounts the auth endpoints.
func (h *AuthHandlers) RegisterRoutes(app *fiber.App, mw *TokenMiddleware) {
	grp := app.Group("/auth")
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", mw.Authenticate(), h.Logout)
	grp.Post("/logout-all", mw.Authenticate(), h.LogoutAll)
	grp.Get("/me", mw.Authenticate(), h.Me)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	TokenPair
	APIKeys map[string]apikey.KeyEntry `json:"api_keys,omitempty"`
}

// Login authenticates by email/password and issues the credential pair plus
// the user's current integration key bundle. A wrong email and a wrong
// password answer identically.
func (h *AuthHandlers) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
		return respondError(c, ErrInvalidCredential())
	}

	ctx := requestContext(c)

	user, err := h.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if isUnavailable(err) {
			return respondError(c, err)
		}
		// Unknown email answers exactly like a wrong password.
		return respondError(c, ErrInvalidCredential())
	}

	if err := h.passwords.Verify(user.PasswordHash, req.Password); err != nil {
		return respondError(c, ErrInvalidCredential())
	}

	pair, err := h.sessions.Login(ctx, user)
	if err != nil {
		return respondError(c, err)
	}

	resp := loginResponse{TokenPair: *pair}
	if h.keys != nil {
		keys, err := h.keys.GetBundleWithAutoRotate(ctx, user.ID)
		if err != nil {
			// The session is already established; a key-store hiccup should
			// not fail the login. The client can re-fetch the bundle.
			logx.WithError(err).WithField("user_id", user.ID).Warn("key bundle unavailable at login")
		} else {
			resp.APIKeys = keys
		}
	}

	return c.JSON(resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a refresh token, supplied in the body or the
// X-Refresh-Token header, for a new access token.
func (h *AuthHandlers) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	_ = c.BodyParser(&req)
	if req.RefreshToken == "" {
		req.RefreshToken = c.Get(HeaderRefreshToken)
	}
	if req.RefreshToken == "" {
		return respondError(c, ErrInvalidRefreshToken())
	}

	refreshed, err := h.sessions.Refresh(requestContext(c), req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(refreshed)
}

// Logout revokes the presented refresh token, or every token of the session
// user when none is supplied.
func (h *AuthHandlers) Logout(c *fiber.Ctx) error {
	authCtx := AuthContextFrom(c)
	if authCtx == nil {
		return respondError(c, iam.ErrUnauthorized())
	}

	var req refreshRequest
	_ = c.BodyParser(&req)
	if req.RefreshToken == "" {
		req.RefreshToken = c.Get(HeaderRefreshToken)
	}

	ctx := requestContext(c)

	var err error
	if req.RefreshToken != "" {
		err = h.sessions.Logout(ctx, authCtx.UserID, req.RefreshToken)
	} else {
		err = h.sessions.LogoutEverywhere(ctx, authCtx.UserID)
	}
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "logged out"})
}

// LogoutAll revokes every refresh token of the session user.
func (h *AuthHandlers) LogoutAll(c *fiber.Ctx) error {
	authCtx := AuthContextFrom(c)
	if authCtx == nil {
		return respondError(c, iam.ErrUnauthorized())
	}

	if err := h.sessions.LogoutEverywhere(requestContext(c), authCtx.UserID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"message": "logged out everywhere"})
}

// Me returns the resolved identity of the session user.
func (h *AuthHandlers) Me(c *fiber.Ctx) error {
	authCtx := AuthContextFrom(c)
	if authCtx == nil {
		return respondError(c, iam.ErrUnauthorized())
	}

	user, err := h.users.FindByID(requestContext(c), authCtx.UserID)
	if err != nil {
		if isUnavailable(err) {
			return respondError(c, err)
		}
		return respondError(c, iam.ErrUnauthorized())
	}

	return c.JSON(fiber.Map{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}

// requestContext returns the request context enriched with the caller IP for
// audit logging.
func requestContext(c *fiber.Ctx) context.Context {
	return context.WithValue(c.UserContext(), kernel.ClientIPKey, c.IP())
}
