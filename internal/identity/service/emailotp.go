package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asia-shop/identity/internal/identity/audit"
	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/internal/identity/notify"
	"github.com/asia-shop/identity/internal/identity/store"
	"github.com/asia-shop/identity/pkg/cryptox"
	"github.com/asia-shop/identity/pkg/idx"
)

// Purposes an email OTP can be issued for. At most one code is live per
// (user, purpose) pair.
const (
	PurposeLogin   = "login"
	PurposeDisable = "disable"
)

const (
	emailOTPDigits      = 6
	emailOTPTTL         = 5 * time.Minute
	emailOTPMaxAttempts = 5
	notifyTimeout       = 5 * time.Second
)

// EmailOTPService issues and verifies numeric codes delivered by email.
// Codes are stored hashed; a new send supersedes the previous code for the
// same purpose and resets the attempt counter.
type EmailOTPService struct {
	Store    store.Store
	Notifier notify.Notifier
	Audit    *audit.Dispatcher
	Logger   *slog.Logger

	// Now is overridable for tests; when nil, time.Now is used.
	Now func() time.Time
}

func (s *EmailOTPService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Send generates a fresh 6-digit code, stores its hash, and hands delivery
// to the notifier. A delivery failure after one retry surfaces as
// DependencyFailure but does not remove the stored code; the user simply
// requests another send.
func (s *EmailOTPService) Send(ctx context.Context, userID, purpose string) error {
	if purpose != PurposeLogin && purpose != PurposeDisable {
		return domain.E(domain.CodeValidation, "unknown otp purpose")
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.E(domain.CodeNotFound, "user not found")
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	code, err := cryptox.GenerateNumericCode(emailOTPDigits)
	if err != nil {
		return fmt.Errorf("failed to generate otp: %w", err)
	}

	now := s.now()
	otp := domain.EmailOTP{
		ID:          idx.New().String(),
		UserID:      userID,
		CodeHash:    cryptox.FingerprintToken(code),
		Purpose:     purpose,
		MaxAttempts: emailOTPMaxAttempts,
		CreatedAt:   now,
		ExpiresAt:   now.Add(emailOTPTTL),
	}
	if err := s.Store.EmailOTPs().Create(ctx, otp); err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}

	s.Audit.Emit(ctx, audit.Event{
		Timestamp: now,
		UserID:    userID,
		Action:    audit.ActionEmailOTPSent,
		Outcome:   audit.OutcomeSuccess,
		Detail:    purpose,
	})

	err = notify.SendWithRetry(ctx, s.Notifier, user.Email, notify.TemplateEmailOTP, map[string]string{
		"code":    code,
		"purpose": purpose,
		"expires": fmt.Sprintf("%d minutes", int(emailOTPTTL.Minutes())),
	}, notifyTimeout)
	if err != nil {
		s.Logger.WarnContext(ctx, "otp delivery failed", "user_id", userID, "error", err)
		return domain.Wrap(domain.CodeDependencyFailure, "failed to deliver code, request a new one", err)
	}
	return nil
}

// notifyUser delivers a security notification best-effort. Delivery
// problems are logged and never fail the triggering operation.
func notifyUser(ctx context.Context, st store.Store, n notify.Notifier, logger *slog.Logger, userID, template string, vars map[string]string) {
	if n == nil {
		return
	}
	user, err := st.Users().GetUserByID(ctx, userID)
	if err != nil {
		logger.WarnContext(ctx, "failed to load user for notification", "user_id", userID, "template", template, "error", err)
		return
	}
	if err := notify.SendWithRetry(ctx, n, user.Email, template, vars, notifyTimeout); err != nil {
		logger.WarnContext(ctx, "notification delivery failed", "user_id", userID, "template", template, "error", err)
	}
}

// Verify checks a submitted code. Wrong codes increment the attempt counter
// and return InvalidCode; once the counter reaches the limit every further
// attempt, correct or not, returns TooManyAttempts until a fresh send.
func (s *EmailOTPService) Verify(ctx context.Context, userID, purpose, code string) error {
	return verifyEmailOTP(ctx, s.Store, userID, purpose, code, s.now())
}

// verifyEmailOTP is the shared verification path used both by the standalone
// endpoint and by the MFA state machine's EmailOTP dispatch.
func verifyEmailOTP(ctx context.Context, st store.Store, userID, purpose, code string, now time.Time) error {
	otp, err := st.EmailOTPs().GetActive(ctx, userID, purpose, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Missing and expired are indistinguishable to the caller.
			return domain.ErrInvalidCode
		}
		return fmt.Errorf("failed to load otp: %w", err)
	}

	if otp.Attempts >= otp.MaxAttempts {
		return domain.ErrTooManyAttempts
	}

	if cryptox.FingerprintToken(code) != otp.CodeHash {
		updated, err := st.EmailOTPs().IncrementAttempts(ctx, otp.ID)
		if err != nil {
			return fmt.Errorf("failed to record failed attempt: %w", err)
		}
		if updated.Attempts >= updated.MaxAttempts {
			return domain.ErrTooManyAttempts
		}
		return domain.ErrInvalidCode
	}

	if err := st.EmailOTPs().MarkConsumed(ctx, otp.ID); err != nil {
		return fmt.Errorf("failed to consume otp: %w", err)
	}
	return nil
}
