package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
)

type sessionsRepo struct {
	db dbtx
}

const sessionColumns = `id, user_id, refresh_hash, device_type, os, browser, user_agent,
	ip_address, last_activity_at, created_at, expires_at, revoked_at, revoked_reason`

func (r *sessionsRepo) scan(row interface{ Scan(...any) error }) (domain.Session, error) {
	var s domain.Session
	var revokedAt sql.NullTime
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshHash, &s.DeviceType, &s.OS, &s.Browser,
		&s.UserAgent, &s.IPAddress, &s.LastActivityAt, &s.CreatedAt, &s.ExpiresAt,
		&revokedAt, &s.RevokedReason)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.RevokedAt = mapNullTimePtr(revokedAt)
	return s, nil
}

func (r *sessionsRepo) CreateWithEviction(ctx context.Context, s domain.Session, maxAllowed int, now time.Time) ([]string, error) {
	// Evict just enough of the stalest active sessions so that after the
	// insert the user holds at most maxAllowed. Inside a WithTx this whole
	// sequence is atomic; standalone it relies on sqlite's single writer.
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM sessions
		WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?
		ORDER BY last_activity_at ASC`, s.UserID, now)
	if err != nil {
		return nil, err
	}
	var active []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		active = append(active, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var evicted []string
	if excess := len(active) - maxAllowed + 1; excess > 0 {
		for _, id := range active[:excess] {
			if _, err := r.db.ExecContext(ctx, `
				UPDATE sessions SET revoked_at = ?, revoked_reason = 'evicted'
				WHERE id = ? AND revoked_at IS NULL`, now, id); err != nil {
				return nil, err
			}
			evicted = append(evicted, id)
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.RefreshHash, s.DeviceType, s.OS, s.Browser, s.UserAgent,
		s.IPAddress, s.LastActivityAt, s.CreatedAt, s.ExpiresAt,
		mapOptionalTime(s.RevokedAt), s.RevokedReason)
	if err != nil {
		return nil, err
	}
	return evicted, nil
}

func (r *sessionsRepo) GetByID(ctx context.Context, id string) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return r.scan(row)
}

func (r *sessionsRepo) GetByRefreshHash(ctx context.Context, hash string) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE refresh_hash = ?`, hash)
	return r.scan(row)
}

func (r *sessionsRepo) ListActiveByUserID(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ?
		ORDER BY last_activity_at DESC`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionsRepo) CountByUserID(ctx context.Context, userID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *sessionsRepo) Touch(ctx context.Context, id string, now, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET last_activity_at = ?, expires_at = ?
		WHERE id = ? AND revoked_at IS NULL AND expires_at > ?`,
		now, expiresAt, id, now)
	return err
}

func (r *sessionsRepo) Revoke(ctx context.Context, id, reason string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = ?, revoked_reason = ?
		WHERE id = ? AND revoked_at IS NULL`, at, reason, id)
	return err
}

func (r *sessionsRepo) RevokeAllExcept(ctx context.Context, userID, keep, reason string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = ?, revoked_reason = ?
		WHERE user_id = ? AND id != ? AND revoked_at IS NULL AND expires_at > ?`,
		at, reason, userID, keep, at)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *sessionsRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE expires_at <= ? OR revoked_at IS NOT NULL AND revoked_at <= ?`,
		now, now.Add(-24*time.Hour))
	return err
}
