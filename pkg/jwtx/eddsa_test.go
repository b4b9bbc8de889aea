package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundtrip(t *testing.T) {
	t.Parallel()

	kp, err := NewEdDSAKeyPair()
	require.NoError(t, err)

	claims := NewAccessClaims(
		"user-1", "session-1",
		[]string{"pwd", "mfa"},
		DefaultAccessTokenTTL,
		"identity-test",
		"user@example.com",
		time.Now().UTC(),
	)

	raw, err := kp.Sign(claims)
	require.NoError(t, err)

	got, err := kp.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", got.Subject)
	require.Equal(t, "session-1", got.SID)
	require.Equal(t, []string{"pwd", "mfa"}, got.AMR)
	require.NoError(t, got.ValidateExpiry())
	require.NoError(t, got.ValidateIssuer("identity-test"))
	require.ErrorIs(t, got.ValidateIssuer("other"), ErrIssuer)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	t.Parallel()

	signer, err := NewEdDSAKeyPair()
	require.NoError(t, err)
	verifier, err := NewEdDSAKeyPair()
	require.NoError(t, err)

	claims := NewAccessClaims("user-1", "s", nil, time.Minute, "iss", "", time.Now().UTC())
	raw, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = verifier.Verify(raw)
	require.Error(t, err)
}

func TestExpiredClaims(t *testing.T) {
	t.Parallel()

	claims := NewAccessClaims("u", "s", nil, -time.Minute, "iss", "", time.Now().UTC())
	require.ErrorIs(t, claims.ValidateExpiry(), ErrExpired)
}
