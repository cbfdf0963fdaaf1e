package authinfra

import (
	"context"
	"time"

	"github.com/senderpro/senderpro/pkg/iam/auth"
	"github.com/senderpro/senderpro/pkg/logx"
)

// CleanupService is the background TTL sweep: it periodically purges refresh
// tokens whose expiry has passed. Revoked-but-unexpired rows are kept until
// expiry so revocation stays visible to every Redeem in between.
type CleanupService struct {
	store    *auth.RefreshTokenStore
	interval time.Duration
	timeout  time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCleanupService creates the sweep with the given run interval.
func NewCleanupService(store *auth.RefreshTokenStore, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupService{
		store:    store,
		interval: interval,
		timeout:  30 * time.Second,
	}
}

// Start launches the sweep goroutine. Call Stop to shut it down.
func (s *CleanupService) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	logx.WithField("interval", s.interval).Info("refresh token cleanup sweep started")
}

// Stop halts the sweep and waits for the in-flight pass to finish.
func (s *CleanupService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	logx.Info("refresh token cleanup sweep stopped")
}

func (s *CleanupService) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *CleanupService) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	purged, err := s.store.PurgeExpired(sweepCtx)
	if err != nil {
		logx.WithError(err).Warn("refresh token sweep failed")
		return
	}
	if purged > 0 {
		logx.WithField("purged", purged).Info("expired refresh tokens purged")
	}
}
