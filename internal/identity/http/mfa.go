package http

import (
	"encoding/json"
	"net/http"

	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/internal/identity/service"
	"github.com/asia-shop/identity/pkg/httpx"
	"github.com/asia-shop/identity/pkg/identitysdk"
)

// MFAHandler handles all MFA lifecycle endpoints.
type MFAHandler struct {
	MFAService      *service.MFAService
	EmailOTPService *service.EmailOTPService
}

// HandleSetup handles POST /v1/mfa/setup
//
//	@Summary		Start MFA setup
//	@Description	Provisions a fresh TOTP secret bound to a short-lived setup session and returns the QR payload.
//	@Description	Calling setup again replaces any prior pending session.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	identitysdk.Envelope[identitysdk.MFASetupResponse]	"Setup session with secret and QR URI"
//	@Failure		401	{object}	identitysdk.Envelope[any]							"Invalid or missing access token"
//	@Failure		409	{object}	identitysdk.Envelope[any]							"MFA already enabled"
//	@Router			/v1/mfa/setup [post].
func (h *MFAHandler) HandleSetup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	resp, err := h.MFAService.Setup(ctx, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "MFA setup started", identitysdk.MFASetupResponse(resp))
}

// HandleRegenerateQR handles POST /v1/mfa/setup/{id}/qr
//
//	@Summary		Reissue the setup QR code
//	@Description	Returns a fresh QR payload for a still-pending setup session, reusing the same secret.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	identitysdk.Envelope[identitysdk.MFASetupResponse]
//	@Failure		404	{object}	identitysdk.Envelope[any]	"Session expired; restart setup"
//	@Router			/v1/mfa/setup/{id}/qr [post].
func (h *MFAHandler) HandleRegenerateQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	resp, err := h.MFAService.RegenerateQR(ctx, userID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "QR code regenerated", identitysdk.MFASetupResponse(resp))
}

// HandleEnable handles POST /v1/mfa/enable
//
//	@Summary		Confirm the pending secret and enable MFA
//	@Description	Verifies a current TOTP code against the pending setup session. On success MFA is enabled and
//	@Description	the initial backup codes are returned in plaintext, exactly once.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.MFAEnableRequest	true	"Current 6-digit TOTP code"
//	@Success		200		{object}	identitysdk.Envelope[identitysdk.MFAEnableResponse]	"Backup codes (shown once)"
//	@Failure		401		{object}	identitysdk.Envelope[any]	"Invalid TOTP code"
//	@Failure		404		{object}	identitysdk.Envelope[any]	"Setup session expired"
//	@Router			/v1/mfa/enable [post].
func (h *MFAHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	var req identitysdk.MFAEnableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteValidationError(w, "invalid request body", nil)
		return
	}
	if req.TOTPCode == "" {
		httpx.WriteValidationError(w, "invalid request", map[string]string{"totpCode": "required"})
		return
	}

	resp, err := h.MFAService.Enable(ctx, userID, req.TOTPCode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "MFA enabled", identitysdk.MFAEnableResponse(resp))
}

// HandleVerify handles POST /v1/mfa/verify
//
//	@Summary		Verify a second-factor code
//	@Description	Dispatches to the TOTP, backup-code or email-OTP engine by mfaType. All mismatch reasons return
//	@Description	the same invalid_code so callers cannot probe which factor failed.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.MFAVerifyRequest	true	"Code and type"
//	@Success		200		{object}	identitysdk.Envelope[identitysdk.MFAVerifyResponse]
//	@Failure		401		{object}	identitysdk.Envelope[any]	"Invalid code"
//	@Failure		429		{object}	identitysdk.Envelope[any]	"Email OTP attempt lockout"
//	@Router			/v1/mfa/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	var req identitysdk.MFAVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteValidationError(w, "invalid request body", nil)
		return
	}
	method, err := domain.ParseMFAMethod(req.MFAType)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	valid, err := h.MFAService.Verify(ctx, userID, method, req.MFACode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "code verified", identitysdk.MFAVerifyResponse{Valid: valid})
}

// HandleDisable handles POST /v1/mfa/disable
//
//	@Summary		Disable MFA
//	@Description	Requires both the account password and a currently valid MFA code (TOTP or backup code).
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.MFADisableRequest	true	"Password and MFA code"
//	@Success		200		{object}	identitysdk.Envelope[any]
//	@Failure		401		{object}	identitysdk.Envelope[any]	"Wrong password or code"
//	@Failure		403		{object}	identitysdk.Envelope[any]	"Missing factor or enforced MFA"
//	@Router			/v1/mfa/disable [post].
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	var req identitysdk.MFADisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteValidationError(w, "invalid request body", nil)
		return
	}

	if err := h.MFAService.Disable(ctx, userID, req.Password, req.MFACode, req.Reason); err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "MFA disabled", nil)
}

// HandleStatus handles GET /v1/mfa/status
//
//	@Summary		MFA status
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	identitysdk.Envelope[identitysdk.MFAStatusResponse]
//	@Router			/v1/mfa/status [get].
func (h *MFAHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	resp, err := h.MFAService.Status(ctx, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "", identitysdk.MFAStatusResponse(resp))
}

// HandleRegenerateBackupCodes handles POST /v1/mfa/backup-codes/generate
//
//	@Summary		Regenerate backup codes
//	@Description	Replaces the whole vault with a fresh batch after re-proving a current TOTP code.
//	@Description	Every previously unused code stops working.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.RegenerateBackupCodesRequest	true	"Current TOTP code"
//	@Success		200		{object}	identitysdk.Envelope[identitysdk.BackupCodesResponse]	"New codes (shown once)"
//	@Failure		401		{object}	identitysdk.Envelope[any]	"Invalid code"
//	@Router			/v1/mfa/backup-codes/generate [post].
func (h *MFAHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	var req identitysdk.RegenerateBackupCodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteValidationError(w, "invalid request body", nil)
		return
	}

	codes, err := h.MFAService.RegenerateBackupCodes(ctx, userID, req.TOTPCode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "backup codes regenerated", identitysdk.BackupCodesResponse{
		BackupCodes: codes,
		Count:       len(codes),
	})
}

// HandleSendEmailOTP handles POST /v1/mfa/email-otp/send
//
//	@Summary		Send an email one-time code
//	@Description	Issues a 6-digit code with a 5 minute TTL. A new send supersedes any prior code for the purpose.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.SendEmailOTPRequest	true	"Purpose"
//	@Success		200		{object}	identitysdk.Envelope[any]
//	@Failure		502		{object}	identitysdk.Envelope[any]	"Delivery failed; request a new code"
//	@Router			/v1/mfa/email-otp/send [post].
func (h *MFAHandler) HandleSendEmailOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	var req identitysdk.SendEmailOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteValidationError(w, "invalid request body", nil)
		return
	}
	if req.Purpose == "" {
		req.Purpose = service.PurposeLogin
	}

	if err := h.EmailOTPService.Send(ctx, userID, req.Purpose); err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "code sent", nil)
}
