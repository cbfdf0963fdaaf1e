package auth

import (
	"context"

	"github.com/senderpro/senderpro/pkg/kernel"
)

// TokenRepository defines the contract for refresh-token persistence. Every
// method may block on store I/O; callers bound them with a context deadline.
// Transient store failures surface as CodeStoreUnavailable, never as an
// authorization verdict.
type TokenRepository interface {
	// SaveRefreshToken persists a new record. Returns CodeDuplicateToken when
	// the opaque token value collides with an existing one.
	SaveRefreshToken(ctx context.Context, token RefreshToken) error

	// FindRefreshToken looks a record up by its exact opaque value. Returns
	// CodeInvalidRefreshToken when no such record exists.
	FindRefreshToken(ctx context.Context, tokenValue string) (*RefreshToken, error)

	// RevokeRefreshToken marks one record revoked. Idempotent; a missing
	// record is a no-op, not an error. The write is visible to the very next
	// FindRefreshToken on the same record.
	RevokeRefreshToken(ctx context.Context, tokenValue string) error

	// RevokeAllUserTokens marks every non-revoked record of one user revoked.
	RevokeAllUserTokens(ctx context.Context, userID kernel.UserID) error

	// CleanExpiredTokens purges records whose expiry has passed. Returns the
	// number of rows removed.
	CleanExpiredTokens(ctx context.Context) (int64, error)
}

// TokenService is the stateless access-token codec: it signs and verifies,
// never stores. An issued token cannot be revoked individually; session
// revocation goes through the refresh token.
type TokenService interface {
	// IssueAccessToken signs a token for the subject and returns it together
	// with its lifetime in seconds.
	IssueAccessToken(subject string) (token string, expiresIn int, err error)

	// VerifyAccessToken checks signature and structure. Fails with
	// CodeExpiredCredential past expiry and CodeInvalidCredential on any
	// structural or signature problem.
	VerifyAccessToken(token string) (*AccessTokenClaims, error)
}

// UserDirectory is the external user-management collaborator. Only reads.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id kernel.UserID) (*User, error)
}

// PasswordService verifies a password against its stored hash. The hashing
// scheme itself belongs to the directory side of the fence.
type PasswordService interface {
	Verify(hashedPassword, plainPassword string) error
}

// AuditService records security-relevant credential events.
type AuditService interface {
	LogLoginAttempt(ctx context.Context, userID kernel.UserID, success bool, ip string)
	LogLogout(ctx context.Context, userID kernel.UserID, everywhere bool, ip string)
	LogTokenRefresh(ctx context.Context, userID kernel.UserID, ip string)
}
