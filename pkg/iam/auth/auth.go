package auth

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/senderpro/senderpro/pkg/errx"
	"github.com/senderpro/senderpro/pkg/kernel"
)

// ============================================================================
// Token Types
// ============================================================================

// RefreshToken is a persisted, revocable, long-lived opaque credential. A user
// holds one per active session; all of them mint access tokens independently.
type RefreshToken struct {
	ID        string        `db:"id" json:"id"`
	Token     string        `db:"token" json:"token"`
	UserID    kernel.UserID `db:"user_id" json:"user_id"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	ExpiresAt time.Time     `db:"expires_at" json:"expires_at"`
	IsRevoked bool          `db:"is_revoked" json:"is_revoked"`
}

// NewRefreshToken builds a fresh token record with a cryptographically random
// opaque value. ttl must be positive; the zero-lifetime case is a programming
// error, not a runtime condition.
func NewRefreshToken(userID kernel.UserID, ttl time.Duration, now time.Time) (*RefreshToken, error) {
	if userID.IsEmpty() {
		return nil, errx.Validation("refresh token requires a user id")
	}
	if ttl <= 0 {
		return nil, errx.Validation("refresh token ttl must be positive")
	}

	opaque, err := randomOpaque(32)
	if err != nil {
		return nil, ErrTokenGenerationFailed().WithDetail("error", err.Error())
	}

	return &RefreshToken{
		ID:        uuid.NewString(),
		Token:     opaque,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		IsRevoked: false,
	}, nil
}

// IsExpired checks if the refresh token has expired
func (r *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// IsValid checks if the refresh token can still be redeemed. Once revoked or
// expired there is no way back.
func (r *RefreshToken) IsValid(now time.Time) bool {
	return !r.IsRevoked && !r.IsExpired(now)
}

// AccessTokenClaims is the verified claim set of an access token. Access
// tokens are never persisted; these values exist only for the request that
// carried them.
type AccessTokenClaims struct {
	Subject   string    `json:"sub"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// User is the identity record owned by the external user directory. The
// credential layer reads it, never writes it.
type User struct {
	ID           kernel.UserID `json:"id"`
	Email        string        `json:"email"`
	Name         string        `json:"name,omitempty"`
	PasswordHash string        `json:"-"`
}

// TokenPair is what a successful login hands back.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
}

// RefreshedTokens is what redeeming a refresh token hands back. The refresh
// token itself is not rotated; it stays valid until its own expiry or an
// explicit revoke.
type RefreshedTokens struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func randomOpaque(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("AUTH")

var (
	// CodeInvalidRefreshToken deliberately covers "not found", "revoked" and
	// "expired" alike so callers cannot probe token state.
	CodeInvalidRefreshToken   = ErrRegistry.Register("INVALID_REFRESH_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or expired refresh token")
	CodeInvalidCredential     = ErrRegistry.Register("INVALID_CREDENTIAL", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid credential")
	CodeExpiredCredential     = ErrRegistry.Register("EXPIRED_CREDENTIAL", errx.TypeAuthorization, http.StatusUnauthorized, "Expired credential")
	CodeDuplicateToken        = ErrRegistry.Register("DUPLICATE_TOKEN", errx.TypeConflict, http.StatusConflict, "Refresh token collision, retry with fresh randomness")
	CodeTokenGenerationFailed = ErrRegistry.Register("TOKEN_GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token generation failed")
	CodeStoreUnavailable      = ErrRegistry.Register("STORE_UNAVAILABLE", errx.TypeUnavailable, http.StatusServiceUnavailable, "Credential store unavailable, retry later")
)

// Helper functions
func ErrInvalidRefreshToken() *errx.Error {
	return ErrRegistry.New(CodeInvalidRefreshToken)
}

func ErrInvalidCredential() *errx.Error {
	return ErrRegistry.New(CodeInvalidCredential)
}

func ErrExpiredCredential() *errx.Error {
	return ErrRegistry.New(CodeExpiredCredential)
}

func ErrDuplicateToken() *errx.Error {
	return ErrRegistry.New(CodeDuplicateToken)
}

func ErrTokenGenerationFailed() *errx.Error {
	return ErrRegistry.New(CodeTokenGenerationFailed)
}

func ErrStoreUnavailable(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeStoreUnavailable, cause)
}
