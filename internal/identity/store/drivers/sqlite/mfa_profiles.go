package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/internal/identity/store"
)

type mfaProfilesRepo struct {
	db dbtx
}

const mfaProfileColumns = `user_id, secret, is_enabled, is_totp_enabled, is_email_otp_enabled,
	backup_codes_remaining, is_enforced, enabled_at, last_used_at, grace_period_end,
	disabled_at, disabled_reason, version, created_at, updated_at`

func (r *mfaProfilesRepo) GetByUserID(ctx context.Context, userID string) (domain.MFAProfile, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+mfaProfileColumns+` FROM mfa_profiles WHERE user_id = ?`, userID)

	var p domain.MFAProfile
	var enabledAt, lastUsedAt, graceEnd, disabledAt sql.NullTime
	err := row.Scan(&p.UserID, &p.Secret, &p.IsEnabled, &p.IsTotpEnabled, &p.IsEmailOtpEnabled,
		&p.BackupCodesRemaining, &p.IsEnforced, &enabledAt, &lastUsedAt, &graceEnd,
		&disabledAt, &p.DisabledReason, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.MFAProfile{}, mapNotFound(err)
	}
	p.EnabledAt = mapNullTimePtr(enabledAt)
	p.LastUsedAt = mapNullTimePtr(lastUsedAt)
	p.GracePeriodEnd = mapNullTimePtr(graceEnd)
	p.DisabledAt = mapNullTimePtr(disabledAt)
	return p, nil
}

func (r *mfaProfilesRepo) Upsert(ctx context.Context, p domain.MFAProfile) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mfa_profiles (user_id, secret, is_enabled, is_totp_enabled, is_email_otp_enabled,
			backup_codes_remaining, is_enforced, enabled_at, last_used_at, grace_period_end,
			disabled_at, disabled_reason, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			secret = excluded.secret,
			is_enabled = excluded.is_enabled,
			is_totp_enabled = excluded.is_totp_enabled,
			is_email_otp_enabled = excluded.is_email_otp_enabled,
			backup_codes_remaining = excluded.backup_codes_remaining,
			is_enforced = excluded.is_enforced,
			enabled_at = excluded.enabled_at,
			last_used_at = excluded.last_used_at,
			grace_period_end = excluded.grace_period_end,
			disabled_at = excluded.disabled_at,
			disabled_reason = excluded.disabled_reason,
			version = mfa_profiles.version + 1,
			updated_at = excluded.updated_at`,
		p.UserID, p.Secret, p.IsEnabled, p.IsTotpEnabled, p.IsEmailOtpEnabled,
		p.BackupCodesRemaining, p.IsEnforced, mapOptionalTime(p.EnabledAt), mapOptionalTime(p.LastUsedAt),
		mapOptionalTime(p.GracePeriodEnd), mapOptionalTime(p.DisabledAt), p.DisabledReason,
		p.Version, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *mfaProfilesRepo) UpdateChecked(ctx context.Context, p domain.MFAProfile) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mfa_profiles SET
			secret = ?, is_enabled = ?, is_totp_enabled = ?, is_email_otp_enabled = ?,
			backup_codes_remaining = ?, is_enforced = ?, enabled_at = ?, last_used_at = ?,
			grace_period_end = ?, disabled_at = ?, disabled_reason = ?,
			version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`,
		p.Secret, p.IsEnabled, p.IsTotpEnabled, p.IsEmailOtpEnabled,
		p.BackupCodesRemaining, p.IsEnforced, mapOptionalTime(p.EnabledAt), mapOptionalTime(p.LastUsedAt),
		mapOptionalTime(p.GracePeriodEnd), mapOptionalTime(p.DisabledAt), p.DisabledReason,
		p.UpdatedAt, p.UserID, p.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrVersionMismatch
	}
	return nil
}

func (r *mfaProfilesRepo) TouchLastUsed(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mfa_profiles SET last_used_at = ?, updated_at = ? WHERE user_id = ?`,
		at, at, userID)
	return err
}
