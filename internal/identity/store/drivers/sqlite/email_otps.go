package sqlite

import (
	"context"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
)

type emailOTPsRepo struct {
	db dbtx
}

const emailOTPColumns = `id, user_id, code_hash, purpose, attempts, max_attempts, consumed, created_at, expires_at`

func (r *emailOTPsRepo) scan(row interface{ Scan(...any) error }) (domain.EmailOTP, error) {
	var o domain.EmailOTP
	err := row.Scan(&o.ID, &o.UserID, &o.CodeHash, &o.Purpose, &o.Attempts, &o.MaxAttempts,
		&o.Consumed, &o.CreatedAt, &o.ExpiresAt)
	if err != nil {
		return domain.EmailOTP{}, mapNotFound(err)
	}
	return o, nil
}

func (r *emailOTPsRepo) Create(ctx context.Context, o domain.EmailOTP) error {
	// A new code invalidates any prior one for the same purpose.
	if _, err := r.db.ExecContext(ctx, `
		DELETE FROM email_otps WHERE user_id = ? AND purpose = ?`, o.UserID, o.Purpose); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_otps (`+emailOTPColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.CodeHash, o.Purpose, o.Attempts, o.MaxAttempts, o.Consumed, o.CreatedAt, o.ExpiresAt)
	return err
}

func (r *emailOTPsRepo) GetActive(ctx context.Context, userID, purpose string, now time.Time) (domain.EmailOTP, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+emailOTPColumns+` FROM email_otps
		WHERE user_id = ? AND purpose = ? AND consumed = 0 AND expires_at > ?`,
		userID, purpose, now)
	return r.scan(row)
}

func (r *emailOTPsRepo) IncrementAttempts(ctx context.Context, id string) (domain.EmailOTP, error) {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE email_otps SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return domain.EmailOTP{}, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+emailOTPColumns+` FROM email_otps WHERE id = ?`, id)
	return r.scan(row)
}

func (r *emailOTPsRepo) MarkConsumed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE email_otps SET consumed = 1 WHERE id = ?`, id)
	return err
}

func (r *emailOTPsRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM email_otps WHERE expires_at <= ? OR consumed = 1`, now)
	return err
}
