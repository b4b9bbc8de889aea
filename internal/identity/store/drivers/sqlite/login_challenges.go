package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
)

type loginChallengesRepo struct {
	db dbtx
}

const loginChallengeColumns = `id, user_id, methods, attempts, max_attempts, created_at, expires_at`

func (r *loginChallengesRepo) scan(row interface{ Scan(...any) error }) (domain.LoginChallenge, error) {
	var c domain.LoginChallenge
	var methods string
	err := row.Scan(&c.ID, &c.UserID, &methods, &c.Attempts, &c.MaxAttempts, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return domain.LoginChallenge{}, mapNotFound(err)
	}
	if methods != "" {
		c.Methods = strings.Fields(methods)
	}
	return c, nil
}

func (r *loginChallengesRepo) Create(ctx context.Context, c domain.LoginChallenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_challenges (`+loginChallengeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, strings.Join(c.Methods, " "), c.Attempts, c.MaxAttempts, c.CreatedAt, c.ExpiresAt)
	return err
}

func (r *loginChallengesRepo) GetActive(ctx context.Context, id string, now time.Time) (domain.LoginChallenge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+loginChallengeColumns+`
		FROM login_challenges WHERE id = ? AND expires_at > ?`, id, now)
	return r.scan(row)
}

func (r *loginChallengesRepo) IncrementAttempts(ctx context.Context, id string) (domain.LoginChallenge, error) {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE login_challenges SET attempts = attempts + 1 WHERE id = ?`, id); err != nil {
		return domain.LoginChallenge{}, err
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+loginChallengeColumns+` FROM login_challenges WHERE id = ?`, id)
	return r.scan(row)
}

func (r *loginChallengesRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM login_challenges WHERE id = ?`, id)
	return err
}

func (r *loginChallengesRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM login_challenges WHERE expires_at <= ?`, now)
	return err
}
