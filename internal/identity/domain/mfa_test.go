package domain_test

import (
	"testing"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/stretchr/testify/require"
)

func TestParseMFAMethod(t *testing.T) {
	for wire, want := range map[string]domain.MFAMethod{
		"TOTP":       domain.MethodTOTP,
		"BackupCode": domain.MethodBackupCode,
		"EmailOTP":   domain.MethodEmailOTP,
	} {
		got, err := domain.ParseMFAMethod(wire)
		require.NoError(t, err)
		require.Equal(t, want, got)
		require.Equal(t, wire, got.String())
	}

	_, err := domain.ParseMFAMethod("totp")
	require.Error(t, err, "matching is case sensitive")
	require.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	_, err = domain.ParseMFAMethod("sms")
	require.Error(t, err)
}

func TestMFAProfileState(t *testing.T) {
	var p domain.MFAProfile
	require.Equal(t, "Unconfigured", p.State())

	p.IsEnabled = true
	require.Equal(t, "Enabled", p.State())

	disabled := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.IsEnabled = false
	p.DisabledAt = &disabled
	require.Equal(t, "Disabled", p.State())
}

func TestMFAProfileAvailableMethods(t *testing.T) {
	p := domain.MFAProfile{
		IsTotpEnabled:        true,
		IsEmailOtpEnabled:    true,
		BackupCodesRemaining: 10,
	}
	require.Nil(t, p.AvailableMethods(), "no methods while disabled")

	p.IsEnabled = true
	require.Equal(t, []string{"TOTP", "BackupCode", "EmailOTP"}, p.AvailableMethods())

	p.BackupCodesRemaining = 0
	require.Equal(t, []string{"TOTP", "EmailOTP"}, p.AvailableMethods(),
		"an exhausted backup code batch drops out of the method list")
}
