package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/senderpro/senderpro/pkg/errx"
	"github.com/senderpro/senderpro/pkg/iam"
	"github.com/senderpro/senderpro/pkg/kernel"
	"github.com/senderpro/senderpro/pkg/logx"
)

// Header names for the silent-renewal handshake.
const (
	HeaderRefreshToken   = "X-Refresh-Token"
	HeaderNewAccessToken = "X-New-Access-Token"
	HeaderTokenRefreshed = "X-Token-Refreshed"
)

// TokenMiddleware guards session-authenticated routes. Per request it walks
// through: no credential → 401; valid access token → proceed; expired access
// token plus a refresh token in X-Refresh-Token → mint a replacement access
// token, surface it via response headers, and proceed; anything else → 401.
type TokenMiddleware struct {
	tokens   TokenService
	sessions *SessionService
	users    UserDirectory
}

// NewTokenMiddleware creates the session guard.
func NewTokenMiddleware(tokens TokenService, sessions *SessionService, users UserDirectory) *TokenMiddleware {
	return &TokenMiddleware{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
	}
}

// Authenticate validates the bearer token on every request it wraps.
func (am *TokenMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return respondError(c, iam.ErrUnauthorized())
		}

		claims, err := am.tokens.VerifyAccessToken(token)
		if err != nil {
			var refreshed *RefreshedTokens
			if isExpiredCredential(err) {
				refreshed, err = am.trySilentRenewal(c)
			}
			if err != nil {
				return respondError(c, err)
			}

			claims, err = am.tokens.VerifyAccessToken(refreshed.AccessToken)
			if err != nil {
				return respondError(c, err)
			}

			c.Set(HeaderNewAccessToken, refreshed.AccessToken)
			c.Set(HeaderTokenRefreshed, "true")
		}

		user, err := am.users.FindByEmail(c.UserContext(), claims.Subject)
		if err != nil {
			if isUnavailable(err) {
				return respondError(c, err)
			}
			return respondError(c, iam.ErrUnauthorized())
		}

		// Session credentials act with the user's full authority; scoped
		// restriction is an API key concern.
		c.Locals(string(kernel.AuthContextKey), &kernel.AuthContext{
			UserID: user.ID,
			Email:  user.Email,
			Scopes: []string{kernel.ScopeAll},
		})

		return c.Next()
	}
}

// trySilentRenewal runs the expired-with-refresh branch of the state machine.
// No refresh token supplied, or a refresh that fails, leaves the request in
// the expired-without-recovery state: 401, the client must re-authenticate.
func (am *TokenMiddleware) trySilentRenewal(c *fiber.Ctx) (*RefreshedTokens, error) {
	refreshToken := c.Get(HeaderRefreshToken)
	if refreshToken == "" {
		return nil, ErrExpiredCredential()
	}

	refreshed, err := am.sessions.Refresh(c.UserContext(), refreshToken)
	if err != nil {
		// A store outage must not read as "bad credential".
		if isUnavailable(err) {
			return nil, err
		}
		logx.WithError(err).Debug("silent token renewal failed")
		return nil, ErrExpiredCredential()
	}

	return refreshed, nil
}

// RequireAuth rejects requests whose context was not populated by
// Authenticate or an API key guard.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authCtx := AuthContextFrom(c)
		if authCtx == nil || !authCtx.IsValid() {
			return respondError(c, iam.ErrUnauthorized())
		}
		return c.Next()
	}
}

// RequireScope gates a route on the resolved credential carrying at least
// one of the given scopes. Session credentials hold the wildcard and always
// pass; API key credentials hold exactly the scope they were minted for.
func RequireScope(scopes ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authCtx := AuthContextFrom(c)
		if authCtx == nil || !authCtx.IsValid() {
			return respondError(c, iam.ErrUnauthorized())
		}
		if !authCtx.HasAnyScope(scopes...) {
			return respondError(c, iam.ErrAccessDenied().WithDetail("required_scopes", scopes))
		}
		return c.Next()
	}
}

// AuthContextFrom reads the resolved credential off the request, nil if the
// request never passed a guard.
func AuthContextFrom(c *fiber.Ctx) *kernel.AuthContext {
	authCtx, _ := c.Locals(string(kernel.AuthContextKey)).(*kernel.AuthContext)
	return authCtx
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

func isExpiredCredential(err error) bool {
	var e *errx.Error
	return errx.As(err, &e) && e.Code == CodeExpiredCredential.Code
}

// isUnavailable reports a transient store failure, which must surface with
// its own status rather than being read as an authorization verdict.
func isUnavailable(err error) bool {
	var e *errx.Error
	return errx.As(err, &e) && e.Type == errx.TypeUnavailable
}

// respondError renders any error as a structured JSON body with the status
// the error carries; unknown errors become a 500 without detail leakage.
func respondError(c *fiber.Ctx, err error) error {
	var e *errx.Error
	if errx.As(err, &e) {
		return c.Status(e.HTTPStatus).JSON(e.ToHTTPResponse())
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal error",
	})
}
