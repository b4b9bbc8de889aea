package sqlite

import (
	"context"

	"github.com/asia-shop/identity/internal/identity/domain"
)

type securitySettingsRepo struct {
	db dbtx
}

func (r *securitySettingsRepo) GetByUserID(ctx context.Context, userID string) (domain.SecuritySettings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, max_concurrent_sessions, session_timeout_minutes, updated_at
		FROM security_settings WHERE user_id = ?`, userID)

	var s domain.SecuritySettings
	err := row.Scan(&s.UserID, &s.MaxConcurrentSessions, &s.SessionTimeoutMinutes, &s.UpdatedAt)
	if err != nil {
		return domain.SecuritySettings{}, mapNotFound(err)
	}
	return s, nil
}

func (r *securitySettingsRepo) Upsert(ctx context.Context, s domain.SecuritySettings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO security_settings (user_id, max_concurrent_sessions, session_timeout_minutes, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			max_concurrent_sessions = excluded.max_concurrent_sessions,
			session_timeout_minutes = excluded.session_timeout_minutes,
			updated_at = excluded.updated_at`,
		s.UserID, s.MaxConcurrentSessions, s.SessionTimeoutMinutes, s.UpdatedAt)
	return err
}
