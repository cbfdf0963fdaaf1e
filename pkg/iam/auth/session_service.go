package auth

import (
	"context"

	"github.com/senderpro/senderpro/pkg/kernel"
	"github.com/senderpro/senderpro/pkg/logx"
)

// SessionService orchestrates the access-token codec and the refresh-token
// store into the login / refresh / logout operations the HTTP layer exposes.
type SessionService struct {
	tokens  TokenService
	refresh *RefreshTokenStore
	users   UserDirectory
	audit   AuditService
}

// NewSessionService wires the session orchestration.
func NewSessionService(tokens TokenService, refresh *RefreshTokenStore, users UserDirectory, audit AuditService) *SessionService {
	return &SessionService{
		tokens:  tokens,
		refresh: refresh,
		users:   users,
		audit:   audit,
	}
}

// Login issues an access/refresh pair for an already-authenticated user.
// Both credentials are issued or neither: if refresh-token persistence fails
// the freshly signed access token is discarded, since an access token without
// a matching refresh record would strand the client at first expiry.
func (s *SessionService) Login(ctx context.Context, user *User) (*TokenPair, error) {
	accessToken, expiresIn, err := s.tokens.IssueAccessToken(user.Email)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.refresh.Issue(ctx, user.ID)
	if err != nil {
		logx.WithError(err).WithField("user_id", user.ID).Error("refresh token persistence failed, aborting login")
		return nil, err
	}

	if s.audit != nil {
		s.audit.LogLoginAttempt(ctx, user.ID, true, ipFromContext(ctx))
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken.Token,
		TokenType:    "bearer",
		ExpiresIn:    expiresIn,
		UserID:       user.ID.String(),
		Email:        user.Email,
	}, nil
}

// Refresh redeems a refresh token and mints a new access token. The refresh
// token is not rotated on use; it remains valid until its own expiry or an
// explicit revoke, so a stolen refresh token stays usable for its whole
// window — the documented replay trade-off of this design.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*RefreshedTokens, error) {
	userID, err := s.refresh.Redeem(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if isUnavailable(err) {
			return nil, err
		}
		// The directory no longer knows this user; treat the token as dead
		// rather than leaking which side failed.
		return nil, ErrInvalidRefreshToken()
	}

	accessToken, expiresIn, err := s.tokens.IssueAccessToken(user.Email)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.LogTokenRefresh(ctx, userID, ipFromContext(ctx))
	}

	return &RefreshedTokens{
		AccessToken: accessToken,
		TokenType:   "bearer",
		ExpiresIn:   expiresIn,
	}, nil
}

// Logout revokes the supplied refresh token. The access token it once paired
// with simply ages out; there is nothing to revoke server-side.
func (s *SessionService) Logout(ctx context.Context, userID kernel.UserID, refreshToken string) error {
	if err := s.refresh.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.LogLogout(ctx, userID, false, ipFromContext(ctx))
	}
	return nil
}

// LogoutEverywhere revokes every refresh token the user holds.
func (s *SessionService) LogoutEverywhere(ctx context.Context, userID kernel.UserID) error {
	if err := s.refresh.RevokeAll(ctx, userID); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.LogLogout(ctx, userID, true, ipFromContext(ctx))
	}
	return nil
}

// ipFromContext pulls the caller IP the HTTP layer stashed, if any.
func ipFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(kernel.ClientIPKey).(string); ok {
		return ip
	}
	return ""
}
