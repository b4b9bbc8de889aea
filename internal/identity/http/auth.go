package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/internal/identity/service"
	"github.com/asia-shop/identity/pkg/httpx"
	"github.com/asia-shop/identity/pkg/identitysdk"
)

// AuthHandler handles login and registration.
type AuthHandler struct {
	AuthService *service.AuthService
	UserService *service.UserService
}

func deviceContext(r *http.Request) service.DeviceContext {
	return service.DeviceContext{
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 {
		host = host[:i]
	}
	return host
}

// HandleRegister handles POST /v1/auth/register
//
//	@Summary		Register a new account
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.RegisterRequest	true	"Account details"
//	@Success		201		{object}	identitysdk.Envelope[identitysdk.RegisterResponse]
//	@Failure		400		{object}	identitysdk.Envelope[any]	"Validation failure"
//	@Failure		409		{object}	identitysdk.Envelope[any]	"Email or username taken"
//	@Router			/v1/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req identitysdk.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteValidationError(w, "invalid request body", nil)
		return
	}

	user, err := h.UserService.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, "account created", identitysdk.RegisterResponse{
		UserID: user.ID,
		Email:  user.Email,
	})
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Log in with email and password
//	@Description	Users with MFA enabled receive a short-lived challenge instead of tokens; complete it via
//	@Description	the challenge endpoint with a valid second factor.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	identitysdk.Envelope[identitysdk.LoginResponse]
//	@Failure		401		{object}	identitysdk.Envelope[any]	"Invalid credentials"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req identitysdk.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteValidationError(w, "invalid request body", nil)
		return
	}

	result, err := h.AuthService.Login(r.Context(), req.Email, req.Password, deviceContext(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "", loginResponse(result))
}

// HandleChallenge handles POST /v1/auth/login/challenge
//
//	@Summary		Complete an MFA login challenge
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.ChallengeRequest	true	"Challenge id, code and type"
//	@Success		200		{object}	identitysdk.Envelope[identitysdk.LoginResponse]
//	@Failure		401		{object}	identitysdk.Envelope[any]	"Invalid code"
//	@Failure		404		{object}	identitysdk.Envelope[any]	"Challenge expired"
//	@Router			/v1/auth/login/challenge [post].
func (h *AuthHandler) HandleChallenge(w http.ResponseWriter, r *http.Request) {
	var req identitysdk.ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteValidationError(w, "invalid request body", nil)
		return
	}
	method, err := domain.ParseMFAMethod(req.MFAType)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	result, err := h.AuthService.CompleteChallenge(r.Context(), req.ChallengeID, method, req.MFACode, deviceContext(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "", loginResponse(result))
}

func loginResponse(result service.LoginResult) identitysdk.LoginResponse {
	resp := identitysdk.LoginResponse{RequiresMFA: result.RequiresMFA}
	if result.Challenge != nil {
		resp.ChallengeID = result.Challenge.ID
		resp.AvailableMethods = result.Challenge.Methods
	}
	if result.Session != nil {
		resp.SessionID = result.Session.ID
		resp.AccessToken = result.AccessToken
		resp.RefreshToken = result.RefreshToken
	}
	return resp
}
