package sqlite

import (
	"context"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
)

type setupSessionsRepo struct {
	db dbtx
}

func (r *setupSessionsRepo) Create(ctx context.Context, s domain.SetupSession) error {
	// One pending session per user; a new setup replaces the old one.
	if _, err := r.db.ExecContext(ctx, `DELETE FROM mfa_setup_sessions WHERE user_id = ?`, s.UserID); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mfa_setup_sessions (id, user_id, secret, qr_code_uri, formatted_secret, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.Secret, s.QRCodeURI, s.FormattedSecret, s.CreatedAt, s.ExpiresAt)
	return err
}

func (r *setupSessionsRepo) GetActiveByUserID(ctx context.Context, userID string, now time.Time) (domain.SetupSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, secret, qr_code_uri, formatted_secret, created_at, expires_at
		FROM mfa_setup_sessions WHERE user_id = ? AND expires_at > ?`, userID, now)

	var s domain.SetupSession
	err := row.Scan(&s.ID, &s.UserID, &s.Secret, &s.QRCodeURI, &s.FormattedSecret, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return domain.SetupSession{}, mapNotFound(err)
	}
	return s, nil
}

func (r *setupSessionsRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_setup_sessions WHERE id = ?`, id)
	return err
}

func (r *setupSessionsRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_setup_sessions WHERE expires_at <= ?`, now)
	return err
}
