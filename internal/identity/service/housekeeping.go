package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/asia-shop/identity/internal/identity/store"
)

// auditRetention is how long audit records are kept before the
// housekeeping sweep prunes them.
const auditRetention = 90 * 24 * time.Hour

// HousekeepingService periodically removes expired records so setup
// sessions, email OTPs, login challenges and dead sessions do not
// accumulate. Expiry is also enforced on read, so this is purely hygiene.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Non-blocking; call Stop() to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker. Blocks until any
// in-progress cleanup finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup performs the actual deletion of expired records.
// Each deletion is independent - failures in one won't stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now().UTC()
	s.Logger.Info("starting housekeeping cleanup")

	var successful int

	if err := s.Store.SetupSessions().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired setup sessions", "error", err)
	} else {
		s.Logger.Debug("deleted expired setup sessions")
		successful++
	}

	if err := s.Store.EmailOTPs().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired email otps", "error", err)
	} else {
		s.Logger.Debug("deleted expired email otps")
		successful++
	}

	if err := s.Store.LoginChallenges().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired login challenges", "error", err)
	} else {
		s.Logger.Debug("deleted expired login challenges")
		successful++
	}

	if err := s.Store.Sessions().DeleteExpired(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired sessions", "error", err)
	} else {
		s.Logger.Debug("deleted expired sessions")
		successful++
	}

	if err := s.Store.AuditLog().DeleteBefore(ctx, now.Add(-auditRetention)); err != nil {
		s.Logger.Error("failed to prune audit log", "error", err)
	} else {
		s.Logger.Debug("pruned audit log")
		successful++
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", successful)
}
