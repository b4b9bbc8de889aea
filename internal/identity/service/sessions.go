package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/asia-shop/identity/internal/identity/audit"
	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/internal/identity/notify"
	"github.com/asia-shop/identity/internal/identity/store"
	"github.com/asia-shop/identity/pkg/cryptox"
	"github.com/asia-shop/identity/pkg/idx"
)

// SessionService is the session registry. It creates sessions under the
// per-user concurrency cap, slides activity windows, and terminates
// sessions individually or in bulk.
type SessionService struct {
	Store    store.Store
	Notifier notify.Notifier
	Audit    *audit.Dispatcher
	Logger   *slog.Logger

	// Now is overridable for tests; when nil, time.Now is used.
	Now func() time.Time
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// DeviceContext carries the request fingerprint captured at login.
type DeviceContext struct {
	UserAgent string
	IPAddress string
}

// CreateSession registers a new session for the user, evicting the
// least-recently-active sessions in the same transaction if the user is at
// their concurrency limit. Returns the session and its refresh token
// plaintext; only the hash is stored.
func (s *SessionService) CreateSession(ctx context.Context, userID string, device DeviceContext) (domain.Session, string, error) {
	settings := s.settingsFor(ctx, userID)
	now := s.now()

	refreshToken, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	info := domain.ParseUserAgent(device.UserAgent)
	session := domain.Session{
		ID:             idx.New().String(),
		UserID:         userID,
		RefreshHash:    cryptox.FingerprintToken(refreshToken),
		DeviceType:     info.DeviceType,
		OS:             info.OS,
		Browser:        info.Browser,
		UserAgent:      device.UserAgent,
		IPAddress:      device.IPAddress,
		LastActivityAt: now,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(settings.SessionTimeoutMinutes) * time.Minute),
	}

	var evicted []string
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		evicted, err = tx.Sessions().CreateWithEviction(ctx, session, settings.MaxConcurrentSessions, now)
		return err
	})
	if err != nil {
		return domain.Session{}, "", fmt.Errorf("failed to create session: %w", err)
	}

	s.Audit.Emit(ctx, audit.Event{
		Timestamp: now,
		UserID:    userID,
		Action:    audit.ActionSessionCreated,
		Outcome:   audit.OutcomeSuccess,
		IP:        device.IPAddress,
		UserAgent: device.UserAgent,
	})
	for _, id := range evicted {
		s.Audit.Emit(ctx, audit.Event{
			Timestamp: now,
			UserID:    userID,
			Action:    audit.ActionSessionEvicted,
			Outcome:   audit.OutcomeSuccess,
			Detail:    id,
		})
	}

	return session, refreshToken, nil
}

// Touch slides the session's activity window forward. Expired or revoked
// sessions are left untouched.
func (s *SessionService) Touch(ctx context.Context, sessionID string) error {
	session, err := s.Store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.E(domain.CodeNotFound, "session not found")
		}
		return fmt.Errorf("failed to load session: %w", err)
	}

	now := s.now()
	if !session.Active(now) {
		return domain.E(domain.CodeNotFound, "session not found")
	}

	settings := s.settingsFor(ctx, session.UserID)
	expiresAt := now.Add(time.Duration(settings.SessionTimeoutMinutes) * time.Minute)
	return s.Store.Sessions().Touch(ctx, sessionID, now, expiresAt)
}

// Terminate revokes one session.
func (s *SessionService) Terminate(ctx context.Context, userID, sessionID, reason string) error {
	session, err := s.Store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.E(domain.CodeNotFound, "session not found")
		}
		return fmt.Errorf("failed to load session: %w", err)
	}
	if session.UserID != userID {
		return domain.E(domain.CodeNotFound, "session not found")
	}

	now := s.now()
	if err := s.Store.Sessions().Revoke(ctx, sessionID, reason, now); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	s.Audit.Emit(ctx, audit.Event{
		Timestamp: now,
		UserID:    userID,
		Action:    audit.ActionSessionTerminated,
		Outcome:   audit.OutcomeSuccess,
		Detail:    sessionID,
	})
	return nil
}

// TerminateAllOthers revokes every active session except the caller's
// current one, returning how many were revoked.
func (s *SessionService) TerminateAllOthers(ctx context.Context, userID, exceptSessionID, reason string) (int, error) {
	now := s.now()
	count, err := s.Store.Sessions().RevokeAllExcept(ctx, userID, exceptSessionID, reason, now)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}

	s.Audit.Emit(ctx, audit.Event{
		Timestamp: now,
		UserID:    userID,
		Action:    audit.ActionSessionsTerminatedAll,
		Outcome:   audit.OutcomeSuccess,
		Detail:    fmt.Sprintf("revoked=%d", count),
	})
	if count > 0 {
		notifyUser(ctx, s.Store, s.Notifier, s.Logger, userID, notify.TemplateSessionsRevoked, map[string]string{
			"count":  fmt.Sprintf("%d", count),
			"reason": reason,
		})
	}
	return count, nil
}

// ListActive returns the user's live sessions, most recently active first.
func (s *SessionService) ListActive(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.Store.Sessions().ListActiveByUserID(ctx, userID, s.now())
}

// Statistics summarises the user's registry state. The total also counts
// revoked and timed-out sessions retained for audit; the device breakdown
// counts active sessions per device family.
func (s *SessionService) Statistics(ctx context.Context, userID string) (domain.SessionStats, error) {
	sessions, err := s.ListActive(ctx, userID)
	if err != nil {
		return domain.SessionStats{}, err
	}
	total, err := s.Store.Sessions().CountByUserID(ctx, userID)
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("failed to count sessions: %w", err)
	}
	settings := s.settingsFor(ctx, userID)

	stats := domain.SessionStats{
		TotalCount:      total,
		ActiveCount:     len(sessions),
		MaxAllowed:      settings.MaxConcurrentSessions,
		DeviceBreakdown: map[string]int{},
	}

	for _, sess := range sessions {
		if stats.DeviceBreakdown[sess.DeviceType] == 0 {
			stats.DeviceTypes = append(stats.DeviceTypes, sess.DeviceType)
		}
		stats.DeviceBreakdown[sess.DeviceType]++
		activity := sess.LastActivityAt
		if stats.OldestActivity == nil || activity.Before(*stats.OldestActivity) {
			t := activity
			stats.OldestActivity = &t
		}
		if stats.NewestActivity == nil || activity.After(*stats.NewestActivity) {
			t := activity
			stats.NewestActivity = &t
		}
	}
	return stats, nil
}

// UpdateSettings validates and stores the user's session policy. Tightening
// the concurrency limit does not retroactively evict sessions; the new limit
// applies on the next creation.
func (s *SessionService) UpdateSettings(ctx context.Context, settings domain.SecuritySettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	settings.UpdatedAt = s.now()
	if err := s.Store.SecuritySettings().Upsert(ctx, settings); err != nil {
		return fmt.Errorf("failed to store security settings: %w", err)
	}

	s.Audit.Emit(ctx, audit.Event{
		Timestamp: settings.UpdatedAt,
		UserID:    settings.UserID,
		Action:    audit.ActionSettingsUpdated,
		Outcome:   audit.OutcomeSuccess,
		Detail: strings.Join([]string{
			fmt.Sprintf("maxConcurrentSessions=%d", settings.MaxConcurrentSessions),
			fmt.Sprintf("sessionTimeoutMinutes=%d", settings.SessionTimeoutMinutes),
		}, " "),
	})
	return nil
}

// Settings returns the user's policy, falling back to defaults when the
// user has never customised it.
func (s *SessionService) Settings(ctx context.Context, userID string) domain.SecuritySettings {
	return s.settingsFor(ctx, userID)
}

func (s *SessionService) settingsFor(ctx context.Context, userID string) domain.SecuritySettings {
	settings, err := s.Store.SecuritySettings().GetByUserID(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.Logger.WarnContext(ctx, "failed to load security settings, using defaults", "user_id", userID, "error", err)
		}
		return domain.DefaultSecuritySettings(userID)
	}
	return settings
}
