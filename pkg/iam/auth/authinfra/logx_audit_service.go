package authinfra

import (
	"context"

	"github.com/senderpro/senderpro/pkg/kernel"
	"github.com/senderpro/senderpro/pkg/logx"
)

// LogxAuditService implements auth.AuditService using structured logx logging.
type LogxAuditService struct{}

func NewLogxAuditService() *LogxAuditService {
	return &LogxAuditService{}
}

func (s *LogxAuditService) LogLoginAttempt(_ context.Context, userID kernel.UserID, success bool, ip string) {
	logx.WithFields(logx.Fields{
		"audit_event": "login_attempt",
		"user_id":     userID,
		"success":     success,
		"ip":          ip,
	}).Info("Audit: login attempt")
}

func (s *LogxAuditService) LogLogout(_ context.Context, userID kernel.UserID, everywhere bool, ip string) {
	logx.WithFields(logx.Fields{
		"audit_event": "logout",
		"user_id":     userID,
		"everywhere":  everywhere,
		"ip":          ip,
	}).Info("Audit: logout")
}

func (s *LogxAuditService) LogTokenRefresh(_ context.Context, userID kernel.UserID, ip string) {
	logx.WithFields(logx.Fields{
		"audit_event": "token_refresh",
		"user_id":     userID,
		"ip":          ip,
	}).Info("Audit: token refresh")
}
