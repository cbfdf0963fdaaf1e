package auth

import (
	"context"
	"time"

	"github.com/senderpro/senderpro/pkg/kernel"
	"github.com/senderpro/senderpro/pkg/logx"
)

// RefreshTokenStore manages the lifecycle of persisted refresh tokens on top
// of a TokenRepository. All cross-request coordination happens inside the
// store's per-record atomic operations; no in-process locks are held across
// repository calls.
type RefreshTokenStore struct {
	repo TokenRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewRefreshTokenStore creates a store issuing tokens with the given lifetime.
func NewRefreshTokenStore(repo TokenRepository, ttl time.Duration) *RefreshTokenStore {
	if ttl <= 0 {
		ttl = 10 * 24 * time.Hour
	}
	return &RefreshTokenStore{
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Issue generates and persists a fresh token for the user. On the
// astronomically unlikely token collision the repository reports
// CodeDuplicateToken and the caller retries with fresh randomness.
func (s *RefreshTokenStore) Issue(ctx context.Context, userID kernel.UserID) (*RefreshToken, error) {
	token, err := NewRefreshToken(userID, s.ttl, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveRefreshToken(ctx, *token); err != nil {
		return nil, err
	}

	return token, nil
}

// Redeem exchanges a presented token for the owning user ID. Not-found,
// revoked and expired all fail with the same CodeInvalidRefreshToken; the
// distinction is logged server-side but never returned to the caller.
func (s *RefreshTokenStore) Redeem(ctx context.Context, tokenValue string) (kernel.UserID, error) {
	if tokenValue == "" {
		return "", ErrInvalidRefreshToken()
	}

	record, err := s.repo.FindRefreshToken(ctx, tokenValue)
	if err != nil {
		return "", err
	}

	if !record.IsValid(s.now().UTC()) {
		logx.WithFields(logx.Fields{
			"user_id": record.UserID,
			"revoked": record.IsRevoked,
		}).Debug("refresh token redeem rejected")
		return "", ErrInvalidRefreshToken()
	}

	return record.UserID, nil
}

// Revoke marks one token permanently unusable. Idempotent; revoking an
// unknown token is a no-op.
func (s *RefreshTokenStore) Revoke(ctx context.Context, tokenValue string) error {
	if tokenValue == "" {
		return nil
	}
	return s.repo.RevokeRefreshToken(ctx, tokenValue)
}

// RevokeAll signs the user out everywhere by revoking every live token.
func (s *RefreshTokenStore) RevokeAll(ctx context.Context, userID kernel.UserID) error {
	return s.repo.RevokeAllUserTokens(ctx, userID)
}

// PurgeExpired removes records whose expiry has passed. Called by the
// background cleanup sweep, not by request paths.
func (s *RefreshTokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.CleanExpiredTokens(ctx)
}
