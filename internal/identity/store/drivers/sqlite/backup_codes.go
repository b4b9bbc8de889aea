package sqlite

import (
	"context"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/internal/identity/store"
)

type backupCodesRepo struct {
	db dbtx
}

func (r *backupCodesRepo) ReplaceForUser(ctx context.Context, userID string, codes []domain.BackupCode) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for _, c := range codes {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO backup_codes (id, user_id, code_hash, batch_id, used, used_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.UserID, c.CodeHash, c.BatchID, c.Used, mapOptionalTime(c.UsedAt), c.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *backupCodesRepo) ConsumeByHash(ctx context.Context, userID, codeHash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE backup_codes SET used = 1, used_at = ?
		WHERE user_id = ? AND code_hash = ? AND used = 0`,
		at, userID, codeHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *backupCodesRepo) CountUnused(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM backup_codes WHERE user_id = ? AND used = 0`, userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *backupCodesRepo) DeleteAllForUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}
