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
	"github.com/asia-shop/identity/internal/identity/totp"
	"github.com/asia-shop/identity/pkg/cryptox"
	"github.com/asia-shop/identity/pkg/idx"
)

const (
	backupCodeCount = 10                   // Number of backup codes to generate
	backupCodeBytes = cryptox.TokenSize128 // 128-bit entropy for backup codes

	defaultSetupTTL = 10 * time.Minute
)

const setupInstructions = "Scan the QR code with your authenticator app, or enter the secret key manually, then submit the current 6-digit code to finish enabling MFA."

const enableWarning = "Store these backup codes somewhere safe. Each works exactly once and they will not be shown again."

// MFAService drives the MFA lifecycle: provisioning a secret through a
// short-lived setup session, confirming it to enable MFA, verifying codes
// during login, and the dual-factor disable path.
type MFAService struct {
	Store    store.Store
	TOTP     *totp.Engine
	Notifier notify.Notifier
	Audit    *audit.Dispatcher
	Logger   *slog.Logger

	// SetupTTL bounds how long a provisioned secret stays confirmable.
	SetupTTL time.Duration

	// Now is overridable for tests; when nil, time.Now is used.
	Now func() time.Time
}

func (s *MFAService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *MFAService) setupTTL() time.Duration {
	if s.SetupTTL > 0 {
		return s.SetupTTL
	}
	return defaultSetupTTL
}

// Setup provisions a fresh TOTP secret bound to a setup session. MFA is not
// enabled yet; the user must confirm with a current code via Enable. Calling
// Setup again replaces any prior pending session.
func (s *MFAService) Setup(ctx context.Context, userID string) (domain.MFASetupResponse, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.MFASetupResponse{}, domain.E(domain.CodeNotFound, "user not found")
		}
		return domain.MFASetupResponse{}, fmt.Errorf("failed to load user: %w", err)
	}

	profile, err := s.Store.MFAProfiles().GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.MFASetupResponse{}, fmt.Errorf("failed to load MFA profile: %w", err)
	}
	if profile.IsEnabled {
		return domain.MFASetupResponse{}, domain.E(domain.CodeConflict, "MFA is already enabled")
	}

	key, err := s.TOTP.GenerateSecret(user.Email)
	if err != nil {
		return domain.MFASetupResponse{}, err
	}

	now := s.now()
	session := domain.SetupSession{
		ID:              idx.New().String(),
		UserID:          userID,
		Secret:          key.Secret,
		QRCodeURI:       key.URI,
		FormattedSecret: key.FormattedSecret,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.setupTTL()),
	}
	if err := s.Store.SetupSessions().Create(ctx, session); err != nil {
		return domain.MFASetupResponse{}, fmt.Errorf("failed to store setup session: %w", err)
	}

	s.Audit.Emit(ctx, audit.Event{
		Timestamp: now,
		UserID:    userID,
		Action:    audit.ActionMFASetupStarted,
		Outcome:   audit.OutcomeSuccess,
	})

	return setupResponse(session), nil
}

// RegenerateQR reissues the QR payload for a still-pending setup session,
// reusing the same secret. An expired or missing session forces a full
// restart via Setup.
func (s *MFAService) RegenerateQR(ctx context.Context, userID, setupSessionID string) (domain.MFASetupResponse, error) {
	session, err := s.Store.SetupSessions().GetActiveByUserID(ctx, userID, s.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.MFASetupResponse{}, domain.E(domain.CodeNotFound, "setup session expired, restart setup")
		}
		return domain.MFASetupResponse{}, fmt.Errorf("failed to load setup session: %w", err)
	}
	if session.ID != setupSessionID {
		return domain.MFASetupResponse{}, domain.E(domain.CodeNotFound, "setup session expired, restart setup")
	}
	return setupResponse(session), nil
}

func setupResponse(session domain.SetupSession) domain.MFASetupResponse {
	return domain.MFASetupResponse{
		SetupSessionID:     session.ID,
		SecretKey:          session.Secret,
		QRCodeURI:          session.QRCodeURI,
		FormattedSecretKey: session.FormattedSecret,
		Instructions:       setupInstructions,
		ExpiresAt:          session.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// Enable confirms the pending secret with a current TOTP code and turns MFA
// on. On success the secret is persisted, the setup session is destroyed and
// the initial backup code set is returned in plaintext, exactly once.
func (s *MFAService) Enable(ctx context.Context, userID, totpCode string) (domain.MFAEnableResponse, error) {
	now := s.now()

	session, err := s.Store.SetupSessions().GetActiveByUserID(ctx, userID, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.MFAEnableResponse{}, domain.E(domain.CodeNotFound, "setup session expired, restart setup")
		}
		return domain.MFAEnableResponse{}, fmt.Errorf("failed to load setup session: %w", err)
	}

	if !s.TOTP.ValidateCode(totpCode, session.Secret) {
		// Failure leaves the session as-is; the TTL is not extended.
		return domain.MFAEnableResponse{}, domain.ErrInvalidCode
	}

	profile, err := s.Store.MFAProfiles().GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.MFAEnableResponse{}, fmt.Errorf("failed to load MFA profile: %w", err)
	}
	if profile.IsEnabled {
		return domain.MFAEnableResponse{}, domain.E(domain.CodeConflict, "MFA is already enabled")
	}

	plaintext, hashed, err := s.newBackupCodeBatch(userID, now)
	if err != nil {
		return domain.MFAEnableResponse{}, err
	}

	enabledAt := now
	next := domain.MFAProfile{
		UserID:               userID,
		Secret:               session.Secret,
		IsEnabled:            true,
		IsTotpEnabled:        true,
		IsEmailOtpEnabled:    true,
		BackupCodesRemaining: backupCodeCount,
		EnabledAt:            &enabledAt,
		IsEnforced:           profile.IsEnforced,
		GracePeriodEnd:       profile.GracePeriodEnd,
		Version:              profile.Version,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if !profile.CreatedAt.IsZero() {
		next.CreatedAt = profile.CreatedAt
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.MFAProfiles().Upsert(ctx, next); err != nil {
			return fmt.Errorf("failed to enable MFA: %w", err)
		}
		if err := tx.BackupCodes().ReplaceForUser(ctx, userID, hashed); err != nil {
			return fmt.Errorf("failed to store backup codes: %w", err)
		}
		if err := tx.SetupSessions().Delete(ctx, session.ID); err != nil {
			return fmt.Errorf("failed to destroy setup session: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.MFAEnableResponse{}, err
	}

	s.Audit.Emit(ctx, audit.Event{
		Timestamp: now,
		UserID:    userID,
		Action:    audit.ActionMFAEnabled,
		Outcome:   audit.OutcomeSuccess,
	})
	notifyUser(ctx, s.Store, s.Notifier, s.Logger, userID, notify.TemplateMFAEnabled, map[string]string{
		"enabledAt": enabledAt.UTC().Format(time.RFC3339),
	})

	return domain.MFAEnableResponse{
		IsEnabled:        true,
		BackupCodes:      plaintext,
		BackupCodesCount: backupCodeCount,
		EnabledAt:        enabledAt.UTC().Format(time.RFC3339),
		Warning:          enableWarning,
	}, nil
}

// Verify checks a second-factor code during login. All mismatch reasons
// collapse into InvalidCode so a caller cannot probe which factor or why;
// the one exception is the email-OTP attempt lockout, which surfaces as
// TooManyAttempts because the user must request a fresh code.
func (s *MFAService) Verify(ctx context.Context, userID string, method domain.MFAMethod, code string) (bool, error) {
	now := s.now()

	profile, err := s.Store.MFAProfiles().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, domain.ErrInvalidCode
		}
		return false, fmt.Errorf("failed to load MFA profile: %w", err)
	}
	if !profile.IsEnabled {
		return false, domain.ErrInvalidCode
	}

	var verifyErr error
	switch method {
	case domain.MethodTOTP:
		if !profile.IsTotpEnabled || !s.TOTP.ValidateCode(code, profile.Secret) {
			verifyErr = domain.ErrInvalidCode
		}
	case domain.MethodBackupCode:
		verifyErr = s.consumeBackupCode(ctx, profile, code, now)
	case domain.MethodEmailOTP:
		if !profile.IsEmailOtpEnabled {
			verifyErr = domain.ErrInvalidCode
		} else {
			verifyErr = verifyEmailOTP(ctx, s.Store, userID, PurposeLogin, code, now)
		}
	default:
		return false, domain.E(domain.CodeValidation, "unknown mfa type")
	}

	if verifyErr != nil {
		if errors.Is(verifyErr, domain.ErrTooManyAttempts) {
			s.auditVerify(ctx, userID, now, false)
			return false, verifyErr
		}
		if errors.Is(verifyErr, domain.ErrInvalidCode) || errors.Is(verifyErr, store.ErrNotFound) {
			s.auditVerify(ctx, userID, now, false)
			return false, domain.ErrInvalidCode
		}
		return false, verifyErr
	}

	if err := s.Store.MFAProfiles().TouchLastUsed(ctx, userID, now); err != nil {
		s.Logger.WarnContext(ctx, "failed to record mfa use", "error", err)
	}
	s.auditVerify(ctx, userID, now, true)
	return true, nil
}

func (s *MFAService) auditVerify(ctx context.Context, userID string, at time.Time, ok bool) {
	action, outcome := audit.ActionMFAVerified, audit.OutcomeSuccess
	if !ok {
		action, outcome = audit.ActionMFAVerifyFailed, audit.OutcomeFailure
	}
	s.Audit.Emit(ctx, audit.Event{Timestamp: at, UserID: userID, Action: action, Outcome: outcome})
}

// consumeBackupCode burns a backup code. The hash lookup and the used flag
// flip happen in one statement so the same code can never succeed twice.
func (s *MFAService) consumeBackupCode(ctx context.Context, profile domain.MFAProfile, code string, now time.Time) error {
	hash := cryptox.FingerprintToken(code)
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().ConsumeByHash(ctx, profile.UserID, hash, now); err != nil {
			return err
		}
		remaining, err := tx.BackupCodes().CountUnused(ctx, profile.UserID)
		if err != nil {
			return err
		}
		p := profile
		p.BackupCodesRemaining = remaining
		p.UpdatedAt = now
		return tx.MFAProfiles().UpdateChecked(ctx, p)
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrInvalidCode
	}
	if errors.Is(err, store.ErrVersionMismatch) {
		return domain.E(domain.CodeConflict, "concurrent MFA update, retry")
	}
	return err
}

// Disable turns MFA off. It demands two factors: the account password AND a
// currently valid MFA code (TOTP first, backup code as fallback). Enforced
// profiles cannot be disabled at all.
func (s *MFAService) Disable(ctx context.Context, userID, password, code, reason string) error {
	now := s.now()
	if reason == "" {
		reason = "user requested"
	}

	if password == "" || code == "" {
		return domain.E(domain.CodePolicyViolation, "disabling MFA requires both password and a valid MFA code")
	}

	profile, err := s.Store.MFAProfiles().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.E(domain.CodePolicyViolation, "MFA is not enabled")
		}
		return fmt.Errorf("failed to load MFA profile: %w", err)
	}
	if !profile.IsEnabled {
		return domain.E(domain.CodePolicyViolation, "MFA is not enabled")
	}
	if profile.IsEnforced && (profile.GracePeriodEnd == nil || now.After(*profile.GracePeriodEnd)) {
		return domain.E(domain.CodePolicyViolation, "MFA is enforced for this account and cannot be disabled")
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return domain.ErrInvalidCode
	}

	// TOTP first, then fall back to a backup code. The fallback consumes the
	// code, which is fine: a successful disable destroys the whole vault.
	if !s.TOTP.ValidateCode(code, profile.Secret) {
		if err := s.consumeBackupCode(ctx, profile, code, now); err != nil {
			if errors.Is(err, domain.ErrInvalidCode) {
				return domain.ErrInvalidCode
			}
			return err
		}
		// The fallback consumed a code and bumped the version; reload so the
		// final update does not lose to our own write.
		profile, err = s.Store.MFAProfiles().GetByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to reload MFA profile: %w", err)
		}
	}

	disabledAt := now
	profile.IsEnabled = false
	profile.IsTotpEnabled = false
	profile.IsEmailOtpEnabled = false
	profile.Secret = ""
	profile.BackupCodesRemaining = 0
	profile.DisabledAt = &disabledAt
	profile.DisabledReason = reason
	profile.UpdatedAt = now

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.MFAProfiles().UpdateChecked(ctx, profile); err != nil {
			return err
		}
		return tx.BackupCodes().DeleteAllForUser(ctx, userID)
	})
	if errors.Is(err, store.ErrVersionMismatch) {
		return domain.E(domain.CodeConflict, "concurrent MFA update, retry")
	}
	if err != nil {
		return err
	}

	s.Audit.Emit(ctx, audit.Event{
		Timestamp: now,
		UserID:    userID,
		Action:    audit.ActionMFADisabled,
		Outcome:   audit.OutcomeSuccess,
	})
	notifyUser(ctx, s.Store, s.Notifier, s.Logger, userID, notify.TemplateMFADisabled, map[string]string{
		"reason": reason,
	})
	return nil
}

// Status reports the profile state without exposing any secret material.
func (s *MFAService) Status(ctx context.Context, userID string) (domain.MFAStatusResponse, error) {
	profile, err := s.Store.MFAProfiles().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.MFAStatusResponse{}, nil
		}
		return domain.MFAStatusResponse{}, fmt.Errorf("failed to load MFA profile: %w", err)
	}

	resp := domain.MFAStatusResponse{
		IsEnabled:            profile.IsEnabled,
		IsEnforced:           profile.IsEnforced,
		AvailableMethods:     profile.AvailableMethods(),
		BackupCodesRemaining: profile.BackupCodesRemaining,
		EnabledAt:            formatTimePtr(profile.EnabledAt),
		LastUsedAt:           formatTimePtr(profile.LastUsedAt),
		GracePeriodEnd:       formatTimePtr(profile.GracePeriodEnd),
	}
	return resp, nil
}

// RegenerateBackupCodes replaces the entire vault with a fresh batch after
// re-proving a current code. Every previously unused code stops working.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	now := s.now()

	profile, err := s.Store.MFAProfiles().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.E(domain.CodePolicyViolation, "MFA is not enabled")
		}
		return nil, fmt.Errorf("failed to load MFA profile: %w", err)
	}
	if !profile.IsEnabled {
		return nil, domain.E(domain.CodePolicyViolation, "MFA is not enabled")
	}
	if !s.TOTP.ValidateCode(code, profile.Secret) {
		return nil, domain.ErrInvalidCode
	}

	plaintext, hashed, err := s.newBackupCodeBatch(userID, now)
	if err != nil {
		return nil, err
	}

	profile.BackupCodesRemaining = backupCodeCount
	profile.UpdatedAt = now

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().ReplaceForUser(ctx, userID, hashed); err != nil {
			return fmt.Errorf("failed to store backup codes: %w", err)
		}
		return tx.MFAProfiles().UpdateChecked(ctx, profile)
	})
	if errors.Is(err, store.ErrVersionMismatch) {
		return nil, domain.E(domain.CodeConflict, "concurrent MFA update, retry")
	}
	if err != nil {
		return nil, err
	}

	s.Audit.Emit(ctx, audit.Event{
		Timestamp: now,
		UserID:    userID,
		Action:    audit.ActionBackupCodesRegenerated,
		Outcome:   audit.OutcomeSuccess,
	})
	return plaintext, nil
}

// newBackupCodeBatch mints a fresh batch, returning the plaintexts for the
// one-time response and the hashed records for storage.
func (s *MFAService) newBackupCodeBatch(userID string, now time.Time) ([]string, []domain.BackupCode, error) {
	batchID := idx.New().String()
	plaintext := make([]string, backupCodeCount)
	hashed := make([]domain.BackupCode, backupCodeCount)
	for i := range backupCodeCount {
		code, err := cryptox.GenerateToken(backupCodeBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate backup code: %w", err)
		}
		plaintext[i] = code
		hashed[i] = domain.BackupCode{
			ID:        idx.New().String(),
			UserID:    userID,
			CodeHash:  cryptox.FingerprintToken(code),
			BatchID:   batchID,
			CreatedAt: now,
		}
	}
	return plaintext, hashed, nil
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339)
	return &v
}
