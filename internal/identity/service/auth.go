package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/asia-shop/identity/internal/identity/audit"
	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/internal/identity/store"
	"github.com/asia-shop/identity/pkg/cryptox"
	"github.com/asia-shop/identity/pkg/idx"
	"github.com/asia-shop/identity/pkg/jwtx"
)

const (
	loginChallengeTTL         = 5 * time.Minute
	loginChallengeMaxAttempts = 5
)

// LoginResult is the outcome of a password check. Either a session was
// minted directly, or MFA is outstanding and Challenge carries what the
// client needs to complete it.
type LoginResult struct {
	RequiresMFA  bool
	Challenge    *domain.LoginChallenge
	Session      *domain.Session
	AccessToken  string
	RefreshToken string
}

// AuthService handles the login control flow: password verification, the
// MFA challenge hop for enabled profiles, and session minting.
type AuthService struct {
	Store    store.Store
	MFA      *MFAService
	Sessions *SessionService
	Signer   jwtx.Signer
	Issuer   string
	TokenTTL time.Duration
	Audit    *audit.Dispatcher
	Logger   *slog.Logger

	// Now is overridable for tests; when nil, time.Now is used.
	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *AuthService) tokenTTL() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

// Login verifies the primary credential. Users without MFA get a session
// straight away; users with MFA enabled get a short-lived challenge that
// CompleteChallenge must resolve with a valid second factor. Bad email and
// bad password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string, device DeviceContext) (LoginResult, error) {
	now := s.now()

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.auditLogin(ctx, "", device, false)
			return LoginResult{}, domain.E(domain.CodeInvalidCode, "invalid credentials")
		}
		return LoginResult{}, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		s.auditLogin(ctx, user.ID, device, false)
		return LoginResult{}, domain.E(domain.CodeInvalidCode, "invalid credentials")
	}
	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		s.auditLogin(ctx, user.ID, device, false)
		return LoginResult{}, domain.E(domain.CodeInvalidCode, "invalid credentials")
	}

	profile, err := s.Store.MFAProfiles().GetByUserID(ctx, user.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return LoginResult{}, fmt.Errorf("failed to load MFA profile: %w", err)
	}

	if profile.IsEnabled {
		challenge := domain.LoginChallenge{
			ID:          idx.New().String(),
			UserID:      user.ID,
			Methods:     profile.AvailableMethods(),
			MaxAttempts: loginChallengeMaxAttempts,
			CreatedAt:   now,
			ExpiresAt:   now.Add(loginChallengeTTL),
		}
		if err := s.Store.LoginChallenges().Create(ctx, challenge); err != nil {
			return LoginResult{}, fmt.Errorf("failed to store login challenge: %w", err)
		}
		s.Audit.Emit(ctx, audit.Event{
			Timestamp: now,
			UserID:    user.ID,
			Action:    audit.ActionLoginChallenged,
			Outcome:   audit.OutcomeSuccess,
			IP:        device.IPAddress,
		})
		return LoginResult{RequiresMFA: true, Challenge: &challenge}, nil
	}

	return s.mintSession(ctx, user, []string{"pwd"}, device)
}

// CompleteChallenge resolves a pending MFA challenge with a second factor
// and mints the session on success. Wrong codes count against the
// challenge's attempt budget; once it is spent the challenge is dead and
// the user must log in again.
func (s *AuthService) CompleteChallenge(ctx context.Context, challengeID string, method domain.MFAMethod, code string, device DeviceContext) (LoginResult, error) {
	now := s.now()

	challenge, err := s.Store.LoginChallenges().GetActive(ctx, challengeID, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, domain.E(domain.CodeNotFound, "challenge expired, log in again")
		}
		return LoginResult{}, fmt.Errorf("failed to load challenge: %w", err)
	}

	if challenge.Attempts >= challenge.MaxAttempts {
		return LoginResult{}, domain.ErrTooManyAttempts
	}

	ok, err := s.MFA.Verify(ctx, challenge.UserID, method, code)
	if err != nil || !ok {
		if err == nil || errors.Is(err, domain.ErrInvalidCode) {
			updated, incErr := s.Store.LoginChallenges().IncrementAttempts(ctx, challengeID)
			if incErr != nil {
				return LoginResult{}, fmt.Errorf("failed to record failed attempt: %w", incErr)
			}
			if updated.Attempts >= updated.MaxAttempts {
				return LoginResult{}, domain.ErrTooManyAttempts
			}
			return LoginResult{}, domain.ErrInvalidCode
		}
		return LoginResult{}, err
	}

	if err := s.Store.LoginChallenges().Delete(ctx, challengeID); err != nil {
		s.Logger.WarnContext(ctx, "failed to delete login challenge", "error", err)
	}

	user, err := s.Store.Users().GetUserByID(ctx, challenge.UserID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to load user: %w", err)
	}
	return s.mintSession(ctx, user, []string{"pwd", "otp", "mfa"}, device)
}

func (s *AuthService) mintSession(ctx context.Context, user domain.User, amr []string, device DeviceContext) (LoginResult, error) {
	session, refreshToken, err := s.Sessions.CreateSession(ctx, user.ID, device)
	if err != nil {
		return LoginResult{}, err
	}

	claims := jwtx.NewAccessClaims(user.ID, session.ID, amr, s.tokenTTL(), s.Issuer, user.Email, s.now())
	accessToken, err := s.Signer.Sign(claims)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	s.auditLogin(ctx, user.ID, device, true)
	return LoginResult{
		Session:      &session,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func (s *AuthService) auditLogin(ctx context.Context, userID string, device DeviceContext, ok bool) {
	action, outcome := audit.ActionLoginSucceeded, audit.OutcomeSuccess
	if !ok {
		action, outcome = audit.ActionLoginFailed, audit.OutcomeFailure
	}
	s.Audit.Emit(ctx, audit.Event{
		Timestamp: s.now(),
		UserID:    userID,
		Action:    action,
		Outcome:   outcome,
		IP:        device.IPAddress,
		UserAgent: device.UserAgent,
	})
}
