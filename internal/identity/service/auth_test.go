package service

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/internal/identity/store"
	"github.com/asia-shop/identity/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T, st store.Store, clock *fakeClock) (*AuthService, *MFAService) {
	t.Helper()

	keys, err := jwtx.NewEdDSAKeyPairFromSeed(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	mfa := newMFAService(st, clock)
	sessions := newSessionService(st, clock)
	return &AuthService{
		Store:    st,
		MFA:      mfa,
		Sessions: sessions,
		Signer:   keys,
		Issuer:   "https://identity.asia-shop.test",
		Logger:   slog.Default(),
		Now:      clock.Now,
	}, mfa
}

func TestLoginWithoutMFA(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	auth, _ := newAuthService(t, st, clock)
	user := newTestUser(t, st, "amir@example.com")

	result, err := auth.Login(ctx, user.Email, "correct horse battery", DeviceContext{UserAgent: uaChrome})
	require.NoError(t, err)
	require.False(t, result.RequiresMFA)
	require.NotNil(t, result.Session)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)
}

func TestLoginRejectsBadCredentialsUniformly(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	auth, _ := newAuthService(t, st, clock)
	user := newTestUser(t, st, "bela@example.com")

	_, badPass := auth.Login(ctx, user.Email, "wrong", DeviceContext{})
	_, badUser := auth.Login(ctx, "nobody@example.com", "wrong", DeviceContext{})

	// Unknown email and wrong password are indistinguishable.
	require.Error(t, badPass)
	require.Error(t, badUser)
	require.Equal(t, domain.CodeOf(badPass), domain.CodeOf(badUser))
}

func TestLoginChallengesWhenMFAEnabled(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	auth, mfa := newAuthService(t, st, clock)
	user := newTestUser(t, st, "chen@example.com")

	setup, _ := enableMFA(t, mfa, user.ID)

	result, err := auth.Login(ctx, user.Email, "correct horse battery", DeviceContext{UserAgent: uaChrome})
	require.NoError(t, err)
	require.True(t, result.RequiresMFA)
	require.NotNil(t, result.Challenge)
	require.Nil(t, result.Session)
	require.Empty(t, result.AccessToken)
	require.Contains(t, result.Challenge.Methods, "TOTP")

	t.Run("wrong code leaves the challenge open", func(t *testing.T) {
		_, err := auth.CompleteChallenge(ctx, result.Challenge.ID, domain.MethodTOTP, "000000", DeviceContext{})
		require.ErrorIs(t, err, domain.ErrInvalidCode)
	})

	t.Run("correct code mints the session", func(t *testing.T) {
		done, err := auth.CompleteChallenge(ctx, result.Challenge.ID, domain.MethodTOTP,
			currentCode(t, mfa, setup.SecretKey), DeviceContext{UserAgent: uaChrome})
		require.NoError(t, err)
		require.NotNil(t, done.Session)
		require.NotEmpty(t, done.AccessToken)
	})

	t.Run("challenge is single use", func(t *testing.T) {
		_, err := auth.CompleteChallenge(ctx, result.Challenge.ID, domain.MethodTOTP,
			currentCode(t, mfa, setup.SecretKey), DeviceContext{})
		require.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestLoginChallengeExpires(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	auth, mfa := newAuthService(t, st, clock)
	user := newTestUser(t, st, "dara@example.com")

	setup, _ := enableMFA(t, mfa, user.ID)

	result, err := auth.Login(ctx, user.Email, "correct horse battery", DeviceContext{})
	require.NoError(t, err)
	require.True(t, result.RequiresMFA)

	clock.Advance(6 * time.Minute)
	_, err = auth.CompleteChallenge(ctx, result.Challenge.ID, domain.MethodTOTP,
		currentCode(t, mfa, setup.SecretKey), DeviceContext{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAccessTokenCarriesSessionAndAMR(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	auth, mfa := newAuthService(t, st, clock)
	user := newTestUser(t, st, "elif@example.com")

	setup, _ := enableMFA(t, mfa, user.ID)

	result, err := auth.Login(ctx, user.Email, "correct horse battery", DeviceContext{})
	require.NoError(t, err)
	done, err := auth.CompleteChallenge(ctx, result.Challenge.ID, domain.MethodTOTP,
		currentCode(t, mfa, setup.SecretKey), DeviceContext{})
	require.NoError(t, err)

	// Claims are minted at the fake clock's time, so expiry has to be
	// checked against the same clock.
	signer := auth.Signer.(*jwtx.EdDSAKeyPair)
	var claims jwtx.Claims
	_, err = jwt.ParseWithClaims(done.AccessToken, &claims,
		func(*jwt.Token) (any, error) { return signer.Public(), nil },
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithTimeFunc(clock.Now))
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, done.Session.ID, claims.SID)
	require.Contains(t, claims.AMR, "mfa")
}

func TestChallengeAttemptLockout(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	clock := newFakeClock()
	auth, mfa := newAuthService(t, st, clock)
	user := newTestUser(t, st, "festus@example.com")

	setup, _ := enableMFA(t, mfa, user.ID)

	result, err := auth.Login(ctx, user.Email, "correct horse battery", DeviceContext{})
	require.NoError(t, err)
	require.True(t, result.RequiresMFA)

	for i := 0; i < 4; i++ {
		_, err := auth.CompleteChallenge(ctx, result.Challenge.ID, domain.MethodTOTP, "000000", DeviceContext{})
		require.ErrorIs(t, err, domain.ErrInvalidCode)
	}

	// Fifth consecutive failure spends the budget.
	_, err = auth.CompleteChallenge(ctx, result.Challenge.ID, domain.MethodTOTP, "000000", DeviceContext{})
	require.ErrorIs(t, err, domain.ErrTooManyAttempts)

	// Even the correct code is refused on a spent challenge.
	_, err = auth.CompleteChallenge(ctx, result.Challenge.ID, domain.MethodTOTP,
		currentCode(t, mfa, setup.SecretKey), DeviceContext{})
	require.ErrorIs(t, err, domain.ErrTooManyAttempts)

	// A fresh login issues a fresh challenge with a fresh budget.
	again, err := auth.Login(ctx, user.Email, "correct horse battery", DeviceContext{})
	require.NoError(t, err)
	done, err := auth.CompleteChallenge(ctx, again.Challenge.ID, domain.MethodTOTP,
		currentCode(t, mfa, setup.SecretKey), DeviceContext{})
	require.NoError(t, err)
	require.NotNil(t, done.Session)
}
