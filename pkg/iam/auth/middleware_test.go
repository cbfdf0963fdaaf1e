package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/senderpro/senderpro/pkg/kernel"
)

type middlewareFixture struct {
	app     *fiber.App
	jwt     *JWTService
	repo    *fakeTokenRepo
	refresh *RefreshTokenStore
	users   *fakeUserDirectory
	user    *User
}

func newMiddlewareFixture(t *testing.T) *middlewareFixture {
	t.Helper()

	user := testUser()
	repo := newFakeTokenRepo()
	users := newFakeUserDirectory(user)

	jwtSvc := NewJWTService("test-secret", 180*time.Minute, "senderpro")
	refresh := NewRefreshTokenStore(repo, 10*24*time.Hour)
	sessions := NewSessionService(jwtSvc, refresh, users, nil)
	mw := NewTokenMiddleware(jwtSvc, sessions, users)

	app := fiber.New()
	app.Get("/protected", mw.Authenticate(), func(c *fiber.Ctx) error {
		authCtx := AuthContextFrom(c)
		if authCtx == nil {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.JSON(fiber.Map{"user_id": authCtx.UserID})
	})
	app.Get("/campaigns", mw.Authenticate(), RequireScope("email_marketing"), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	return &middlewareFixture{app: app, jwt: jwtSvc, repo: repo, refresh: refresh, users: users, user: user}
}

// expiredAccessToken signs a token whose whole lifetime lies in the past.
func (f *middlewareFixture) expiredAccessToken(t *testing.T) string {
	t.Helper()
	f.jwt.now = func() time.Time { return time.Now().Add(-181 * time.Minute) }
	token, _, err := f.jwt.IssueAccessToken(f.user.Email)
	if err != nil {
		t.Fatalf("issuing expired token failed: %v", err)
	}
	f.jwt.now = time.Now
	return token
}

func TestAuthenticate_MissingCredential(t *testing.T) {
	f := newMiddlewareFixture(t)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/protected", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthenticate_ValidToken(t *testing.T) {
	f := newMiddlewareFixture(t)

	token, _, err := f.jwt.IssueAccessToken(f.user.Email)
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get(HeaderTokenRefreshed) != "" {
		t.Fatal("no renewal headers expected on a live token")
	}
}

func TestAuthenticate_ExpiredWithoutRefresh(t *testing.T) {
	f := newMiddlewareFixture(t)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+f.expiredAccessToken(t))

	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthenticate_SilentRenewal(t *testing.T) {
	f := newMiddlewareFixture(t)

	refreshToken, err := f.refresh.Issue(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+f.expiredAccessToken(t))
	req.Header.Set(HeaderRefreshToken, refreshToken.Token)

	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get(HeaderTokenRefreshed) != "true" {
		t.Fatal("X-Token-Refreshed header missing")
	}

	minted := resp.Header.Get(HeaderNewAccessToken)
	if minted == "" {
		t.Fatal("X-New-Access-Token header missing")
	}
	claims, err := f.jwt.VerifyAccessToken(minted)
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if claims.Subject != f.user.Email {
		t.Fatalf("minted subject = %s, want %s", claims.Subject, f.user.Email)
	}
}

func TestAuthenticate_RenewalWithRevokedToken(t *testing.T) {
	f := newMiddlewareFixture(t)

	refreshToken, err := f.refresh.Issue(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := f.refresh.Revoke(context.Background(), refreshToken.Token); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+f.expiredAccessToken(t))
	req.Header.Set(HeaderRefreshToken, refreshToken.Token)

	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if resp.Header.Get(HeaderNewAccessToken) != "" {
		t.Fatal("no access token may be minted off a revoked refresh token")
	}
}

func TestAuthenticate_RenewalDuringStoreOutage(t *testing.T) {
	f := newMiddlewareFixture(t)

	refreshToken, err := f.refresh.Issue(context.Background(), f.user.ID)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// The store goes down between issuing and redeeming.
	f.repo.findErr = ErrStoreUnavailable(context.DeadlineExceeded)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+f.expiredAccessToken(t))
	req.Header.Set(HeaderRefreshToken, refreshToken.Token)

	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: an outage must not read as a credential verdict", resp.StatusCode)
	}
}

func TestAuthenticate_DirectoryOutage(t *testing.T) {
	f := newMiddlewareFixture(t)

	token, _, err := f.jwt.IssueAccessToken(f.user.Email)
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	f.users.err = ErrStoreUnavailable(context.DeadlineExceeded)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: a directory outage must not read as a credential verdict", resp.StatusCode)
	}
}

func TestAuthenticate_SessionSatisfiesScopeGuard(t *testing.T) {
	f := newMiddlewareFixture(t)

	token, _, err := f.jwt.IssueAccessToken(f.user.Email)
	if err != nil {
		t.Fatalf("IssueAccessToken failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/campaigns", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)

	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200: session credentials carry every scope", resp.StatusCode)
	}
}

func guardApp(authCtx *kernel.AuthContext, guard fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Get("/guarded", func(c *fiber.Ctx) error {
		if authCtx != nil {
			c.Locals(string(kernel.AuthContextKey), authCtx)
		}
		return c.Next()
	}, guard, func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireAuth(t *testing.T) {
	cases := []struct {
		name    string
		authCtx *kernel.AuthContext
		want    int
	}{
		{"no context", nil, fiber.StatusUnauthorized},
		{"empty context", &kernel.AuthContext{}, fiber.StatusUnauthorized},
		{"resolved user", &kernel.AuthContext{UserID: kernel.NewUserID("u1")}, fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := guardApp(tc.authCtx, RequireAuth())
			resp, err := app.Test(httptest.NewRequest("GET", "/guarded", nil))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestRequireScope(t *testing.T) {
	cases := []struct {
		name    string
		authCtx *kernel.AuthContext
		scopes  []string
		want    int
	}{
		{
			"api key with matching scope",
			&kernel.AuthContext{UserID: kernel.NewUserID("u1"), Scopes: []string{"sms_marketing"}, IsAPIKey: true},
			[]string{"sms_marketing"},
			fiber.StatusOK,
		},
		{
			"api key with wrong scope",
			&kernel.AuthContext{UserID: kernel.NewUserID("u1"), Scopes: []string{"sms_marketing"}, IsAPIKey: true},
			[]string{"email_marketing"},
			fiber.StatusForbidden,
		},
		{
			"api key matching one of several",
			&kernel.AuthContext{UserID: kernel.NewUserID("u1"), Scopes: []string{"sms_marketing"}, IsAPIKey: true},
			[]string{"email_marketing", "sms_marketing"},
			fiber.StatusOK,
		},
		{
			"session wildcard",
			&kernel.AuthContext{UserID: kernel.NewUserID("u1"), Scopes: []string{kernel.ScopeAll}},
			[]string{"device_management"},
			fiber.StatusOK,
		},
		{
			"unauthenticated",
			nil,
			[]string{"device_management"},
			fiber.StatusUnauthorized,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := guardApp(tc.authCtx, RequireScope(tc.scopes...))
			resp, err := app.Test(httptest.NewRequest("GET", "/guarded", nil))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Basic abc123", ""},
		{"abc123", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := bearerToken(tc.header); got != tc.want {
			t.Fatalf("bearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
