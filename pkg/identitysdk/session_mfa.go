package identitysdk

import (
	"context"
	"net/http"
)

// SetupMFA starts TOTP enrollment and returns the provisioned secret and
// otpauth URI. A previous pending setup for the same user is replaced.
func (s *Session) SetupMFA(ctx context.Context) (*MFASetupResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodPost, "/v1/mfa/setup", s.accessToken, nil)
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[MFASetupResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RegenerateQR re-issues the QR payload for a pending setup session without
// rotating the secret.
func (s *Session) RegenerateQR(ctx context.Context, setupSessionID string) (*MFASetupResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodPost, "/v1/mfa/setup/"+setupSessionID+"/qr", s.accessToken, nil)
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[MFASetupResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// EnableMFA confirms the pending setup with a TOTP code. The response
// carries the backup codes in plaintext; this is the only time they are
// visible.
func (s *Session) EnableMFA(ctx context.Context, totpCode string) (*MFAEnableResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodPost, "/v1/mfa/enable", s.accessToken, MFAEnableRequest{
		TOTPCode: totpCode,
	})
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[MFAEnableResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyMFA checks a second-factor code of the given type.
func (s *Session) VerifyMFA(ctx context.Context, mfaType, code string) (*MFAVerifyResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodPost, "/v1/mfa/verify", s.accessToken, MFAVerifyRequest{
		MFAType: mfaType,
		MFACode: code,
	})
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[MFAVerifyResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DisableMFA turns MFA off. Both the account password and a valid MFA code
// are required.
func (s *Session) DisableMFA(ctx context.Context, password, mfaCode string) error {
	resp, err := s.client.doRequest(ctx, http.MethodPost, "/v1/mfa/disable", s.accessToken, MFADisableRequest{
		Password: password,
		MFACode:  mfaCode,
	})
	if err != nil {
		return err
	}

	_, err = decodeEnvelope[struct{}](resp, http.StatusOK)
	return err
}

// MFAStatus reports the current MFA state for the authenticated user.
func (s *Session) MFAStatus(ctx context.Context) (*MFAStatusResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodGet, "/v1/mfa/status", s.accessToken, nil)
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[MFAStatusResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RegenerateBackupCodes replaces all backup codes. Requires a valid TOTP
// code; previously issued codes stop working.
func (s *Session) RegenerateBackupCodes(ctx context.Context, totpCode string) (*BackupCodesResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodPost, "/v1/mfa/backup-codes/generate", s.accessToken, RegenerateBackupCodesRequest{
		TOTPCode: totpCode,
	})
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[BackupCodesResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendEmailOTP requests a one-time email code for the given purpose
// ("login" or "disable").
func (s *Session) SendEmailOTP(ctx context.Context, purpose string) error {
	resp, err := s.client.doRequest(ctx, http.MethodPost, "/v1/mfa/email-otp/send", s.accessToken, SendEmailOTPRequest{
		Purpose: purpose,
	})
	if err != nil {
		return err
	}

	_, err = decodeEnvelope[struct{}](resp, http.StatusOK)
	return err
}
