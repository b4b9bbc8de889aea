package store

import (
	"context"
	"errors"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrVersionMismatch is returned by version-checked updates when the row
	// was modified since it was read. Services surface this as a conflict.
	ErrVersionMismatch = errors.New("store: version mismatch")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and to stop callers from accidentally nesting transactions.
type Store interface {
	Users() Users
	MFAProfiles() MFAProfiles
	SetupSessions() SetupSessions
	BackupCodes() BackupCodes
	EmailOTPs() EmailOTPs
	Sessions() Sessions
	SecuritySettings() SecuritySettings
	LoginChallenges() LoginChallenges
	AuditLog() AuditLog

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction. If fn returns an
	// error, the transaction is rolled back; otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during login.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password_hash (argon2) and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// DeleteUser cascades to sessions and MFA state (per schema).
	DeleteUser(ctx context.Context, userID string) error
}

type MFAProfiles interface {
	// GetByUserID returns the MFA profile for a user.
	GetByUserID(ctx context.Context, userID string) (domain.MFAProfile, error)

	// Upsert inserts the profile or replaces it if the user already has one.
	// Used when enabling MFA; resets the version to the stored row's value + 1.
	Upsert(ctx context.Context, p domain.MFAProfile) error

	// UpdateChecked writes the profile only if the stored version still equals
	// p.Version, then bumps it. Returns ErrVersionMismatch on a lost race.
	UpdateChecked(ctx context.Context, p domain.MFAProfile) error

	// TouchLastUsed records a successful verification without a version bump.
	TouchLastUsed(ctx context.Context, userID string, at time.Time) error
}

type SetupSessions interface {
	// Create stores a pending setup session. Any prior pending session for
	// the same user is replaced so at most one is live per user.
	Create(ctx context.Context, s domain.SetupSession) error

	// GetActiveByUserID returns the user's pending session if it has not
	// expired as of now.
	GetActiveByUserID(ctx context.Context, userID string, now time.Time) (domain.SetupSession, error)

	// Delete removes a setup session by id.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes sessions past their TTL (housekeeping).
	DeleteExpired(ctx context.Context, now time.Time) error
}

type BackupCodes interface {
	// ReplaceForUser atomically deletes all existing codes for the user and
	// inserts the new batch.
	ReplaceForUser(ctx context.Context, userID string, codes []domain.BackupCode) error

	// ConsumeByHash marks the matching unused code as used. Returns
	// ErrNotFound if no unused code with that hash exists for the user.
	ConsumeByHash(ctx context.Context, userID, codeHash string, at time.Time) error

	// CountUnused returns the number of remaining codes for a user.
	CountUnused(ctx context.Context, userID string) (int, error)

	// DeleteAllForUser removes every code for a user (on disable).
	DeleteAllForUser(ctx context.Context, userID string) error
}

type EmailOTPs interface {
	// Create stores a new OTP, replacing any active one for the same
	// (user, purpose) pair.
	Create(ctx context.Context, o domain.EmailOTP) error

	// GetActive returns the live OTP for a user and purpose as of now.
	GetActive(ctx context.Context, userID, purpose string, now time.Time) (domain.EmailOTP, error)

	// IncrementAttempts bumps the failed attempt counter and returns the
	// updated record.
	IncrementAttempts(ctx context.Context, id string) (domain.EmailOTP, error)

	// MarkConsumed flips consumed=1 so the code cannot be replayed.
	MarkConsumed(ctx context.Context, id string) error

	// DeleteExpired removes codes past their TTL (housekeeping).
	DeleteExpired(ctx context.Context, now time.Time) error
}

type Sessions interface {
	// CreateWithEviction inserts the session after evicting the oldest active
	// sessions (by last_activity_at) so the user stays within maxAllowed.
	// The evicted session ids are returned for auditing. Must be atomic.
	CreateWithEviction(ctx context.Context, s domain.Session, maxAllowed int, now time.Time) ([]string, error)

	// GetByID returns a session by id.
	GetByID(ctx context.Context, id string) (domain.Session, error)

	// GetByRefreshHash returns the session holding the given refresh hash.
	GetByRefreshHash(ctx context.Context, hash string) (domain.Session, error)

	// ListActiveByUserID returns the user's live sessions, newest activity first.
	ListActiveByUserID(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)

	// CountByUserID counts every retained session for the user, including
	// revoked and timed-out rows not yet swept.
	CountByUserID(ctx context.Context, userID string) (int, error)

	// Touch slides the activity window: sets last_activity_at and extends
	// expires_at. No-op on revoked or already expired sessions.
	Touch(ctx context.Context, id string, now, expiresAt time.Time) error

	// Revoke marks one session revoked with a reason.
	Revoke(ctx context.Context, id, reason string, at time.Time) error

	// RevokeAllExcept revokes every active session for the user except keep.
	// Pass keep as "" to revoke all. Returns the number revoked.
	RevokeAllExcept(ctx context.Context, userID, keep, reason string, at time.Time) (int, error)

	// DeleteExpired removes sessions past expiry or revoked before cutoff.
	DeleteExpired(ctx context.Context, now time.Time) error
}

type SecuritySettings interface {
	// GetByUserID returns the user's settings. ErrNotFound means the caller
	// should fall back to domain.DefaultSecuritySettings.
	GetByUserID(ctx context.Context, userID string) (domain.SecuritySettings, error)

	// Upsert writes the settings row for a user.
	Upsert(ctx context.Context, s domain.SecuritySettings) error
}

type LoginChallenges interface {
	// Create stores a pending MFA login challenge.
	Create(ctx context.Context, c domain.LoginChallenge) error

	// GetActive returns a challenge by id if it has not expired as of now.
	GetActive(ctx context.Context, id string, now time.Time) (domain.LoginChallenge, error)

	// IncrementAttempts bumps the failed attempt counter and returns the
	// updated record.
	IncrementAttempts(ctx context.Context, id string) (domain.LoginChallenge, error)

	// Delete removes a challenge after completion.
	Delete(ctx context.Context, id string) error

	// DeleteExpired removes challenges past their TTL (housekeeping).
	DeleteExpired(ctx context.Context, now time.Time) error
}

type AuditLog interface {
	// Append writes one audit record.
	Append(ctx context.Context, rec AuditRecord) error

	// ListByUserID returns the most recent records for a user, newest first.
	ListByUserID(ctx context.Context, userID string, limit int) ([]AuditRecord, error)

	// DeleteBefore removes records older than the cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) error
}

// AuditRecord is the persisted form of an audit event.
type AuditRecord struct {
	ID        string
	UserID    string
	Action    string
	Outcome   string
	IPAddress string
	UserAgent string
	Detail    string
	CreatedAt time.Time
}
