package authinfra

import (
	"context"
	"database/sql"
	"errors"
	"net"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/senderpro/senderpro/pkg/errx"
	"github.com/senderpro/senderpro/pkg/iam/auth"
	"github.com/senderpro/senderpro/pkg/kernel"
)

// PostgresTokenRepository is the Postgres implementation of
// auth.TokenRepository. One row per refresh token; the token column carries a
// unique index, and every mutation is a single-row atomic statement, which is
// all the cross-request coordination the store needs.
type PostgresTokenRepository struct {
	db *sqlx.DB
}

// NewPostgresTokenRepository creates the repository.
func NewPostgresTokenRepository(db *sqlx.DB) auth.TokenRepository {
	return &PostgresTokenRepository{db: db}
}

// SaveRefreshToken inserts a new token record.
func (r *PostgresTokenRepository) SaveRefreshToken(ctx context.Context, token auth.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, token, user_id, created_at, expires_at, is_revoked)
		VALUES (:id, :token, :user_id, :created_at, :expires_at, :is_revoked)`

	_, err := r.db.NamedExecContext(ctx, query, token)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return auth.ErrDuplicateToken()
		}
		return storeError(err, "failed to save refresh token")
	}
	return nil
}

// FindRefreshToken looks up a record by its exact opaque value.
func (r *PostgresTokenRepository) FindRefreshToken(ctx context.Context, tokenValue string) (*auth.RefreshToken, error) {
	var record auth.RefreshToken
	query := `SELECT id, token, user_id, created_at, expires_at, is_revoked FROM refresh_tokens WHERE token = $1`
	err := r.db.GetContext(ctx, &record, query, tokenValue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrInvalidRefreshToken()
		}
		return nil, storeError(err, "failed to find refresh token")
	}
	return &record, nil
}

// RevokeRefreshToken marks one record revoked. Zero rows affected means the
// token never existed; that is a successful no-op.
func (r *PostgresTokenRepository) RevokeRefreshToken(ctx context.Context, tokenValue string) error {
	query := `UPDATE refresh_tokens SET is_revoked = TRUE WHERE token = $1`
	if _, err := r.db.ExecContext(ctx, query, tokenValue); err != nil {
		return storeError(err, "failed to revoke refresh token")
	}
	return nil
}

// RevokeAllUserTokens marks every live record of a user revoked.
func (r *PostgresTokenRepository) RevokeAllUserTokens(ctx context.Context, userID kernel.UserID) error {
	query := `UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID.String()); err != nil {
		return storeError(err, "failed to revoke user tokens")
	}
	return nil
}

// CleanExpiredTokens deletes rows past their expiry.
func (r *PostgresTokenRepository) CleanExpiredTokens(ctx context.Context) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < NOW()`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, storeError(err, "failed to clean expired tokens")
	}
	return result.RowsAffected()
}

// storeError separates transient infrastructure failures, which callers may
// retry, from everything else. A timeout is never an authorization verdict.
func storeError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return auth.ErrStoreUnavailable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return auth.ErrStoreUnavailable(err)
	}
	return errx.Wrap(err, message, errx.TypeInternal)
}
