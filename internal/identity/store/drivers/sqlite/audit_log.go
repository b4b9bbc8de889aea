package sqlite

import (
	"context"
	"time"

	"github.com/asia-shop/identity/internal/identity/store"
)

type auditLogRepo struct {
	db dbtx
}

func (r *auditLogRepo) Append(ctx context.Context, rec store.AuditRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, user_id, action, outcome, ip_address, user_agent, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Action, rec.Outcome, rec.IPAddress, rec.UserAgent, rec.Detail, rec.CreatedAt)
	return err
}

func (r *auditLogRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]store.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, action, outcome, ip_address, user_agent, detail, created_at
		FROM audit_log WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AuditRecord
	for rows.Next() {
		var rec store.AuditRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Action, &rec.Outcome,
			&rec.IPAddress, &rec.UserAgent, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *auditLogRepo) DeleteBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	return err
}
