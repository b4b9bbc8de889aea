package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/asia-shop/identity/internal/identity/service"
	"github.com/asia-shop/identity/pkg/httpx"
	"github.com/asia-shop/identity/pkg/identitysdk"
)

// SessionHandler exposes the session registry endpoints.
type SessionHandler struct {
	SessionService *service.SessionService
}

// HandleList handles GET /v1/sessions
//
//	@Summary		List active sessions
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	identitysdk.Envelope[identitysdk.SessionListResponse]
//	@Router			/v1/sessions [get].
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}
	current := httpx.SessionIDFromCtx(ctx)

	sessions, err := h.SessionService.ListActive(ctx, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := identitysdk.SessionListResponse{Sessions: make([]identitysdk.SessionInfo, 0, len(sessions))}
	for _, s := range sessions {
		out.Sessions = append(out.Sessions, identitysdk.SessionInfo{
			SessionID:      s.ID,
			DeviceType:     s.DeviceType,
			OS:             s.OS,
			Browser:        s.Browser,
			IPAddress:      s.IPAddress,
			CreatedAt:      s.CreatedAt.UTC().Format(time.RFC3339),
			LastActivityAt: s.LastActivityAt.UTC().Format(time.RFC3339),
			IsCurrent:      s.ID == current,
		})
	}
	httpx.WriteSuccess(w, http.StatusOK, "", out)
}

// HandleTerminate handles DELETE /v1/sessions/{id}
//
//	@Summary		Terminate one session
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	identitysdk.Envelope[any]
//	@Failure		404	{object}	identitysdk.Envelope[any]	"Unknown session"
//	@Router			/v1/sessions/{id} [delete].
func (h *SessionHandler) HandleTerminate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	if err := h.SessionService.Terminate(ctx, userID, r.PathValue("id"), "user requested"); err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "session terminated", nil)
}

// HandleTerminateOthers handles POST /v1/sessions/terminate-others
//
//	@Summary		Terminate all other sessions
//	@Description	Revokes every active session except the caller's current one.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	identitysdk.Envelope[identitysdk.TerminateOthersResponse]
//	@Router			/v1/sessions/terminate-others [post].
func (h *SessionHandler) HandleTerminateOthers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}
	current := httpx.SessionIDFromCtx(ctx)

	count, err := h.SessionService.TerminateAllOthers(ctx, userID, current, "user requested")
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "sessions terminated", identitysdk.TerminateOthersResponse{
		TerminatedCount: count,
	})
}

// HandleStats handles GET /v1/sessions/stats
//
//	@Summary		Session statistics
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	identitysdk.Envelope[identitysdk.SessionStatsResponse]
//	@Router			/v1/sessions/stats [get].
func (h *SessionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	stats, err := h.SessionService.Statistics(ctx, userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := identitysdk.SessionStatsResponse{
		TotalCount:      stats.TotalCount,
		ActiveCount:     stats.ActiveCount,
		MaxAllowed:      stats.MaxAllowed,
		DeviceTypes:     stats.DeviceTypes,
		DeviceBreakdown: stats.DeviceBreakdown,
	}
	if stats.OldestActivity != nil {
		v := stats.OldestActivity.UTC().Format(time.RFC3339)
		resp.OldestActivity = &v
	}
	if stats.NewestActivity != nil {
		v := stats.NewestActivity.UTC().Format(time.RFC3339)
		resp.NewestActivity = &v
	}
	httpx.WriteSuccess(w, http.StatusOK, "", resp)
}

// HandleGetSettings handles GET /v1/sessions/settings
//
//	@Summary		Get session security settings
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	identitysdk.Envelope[identitysdk.SecuritySettingsResponse]
//	@Router			/v1/sessions/settings [get].
func (h *SessionHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	settings := h.SessionService.Settings(ctx, userID)
	httpx.WriteSuccess(w, http.StatusOK, "", identitysdk.SecuritySettingsResponse{
		MaxConcurrentSessions: settings.MaxConcurrentSessions,
		SessionTimeoutMinutes: settings.SessionTimeoutMinutes,
	})
}

// HandleUpdateSettings handles PUT /v1/sessions/settings
//
//	@Summary		Update session security settings
//	@Description	Timeout must be between 5 and 1440 minutes; the concurrency cap between 1 and 20 sessions.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identitysdk.SecuritySettingsRequest	true	"New limits"
//	@Success		200		{object}	identitysdk.Envelope[identitysdk.SecuritySettingsResponse]
//	@Failure		400		{object}	identitysdk.Envelope[any]	"Concurrency cap out of range"
//	@Failure		403		{object}	identitysdk.Envelope[any]	"Timeout out of range"
//	@Router			/v1/sessions/settings [put].
func (h *SessionHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := httpx.UserIDFromCtx(ctx)
	if userID == "" {
		writeBearerError(w, "missing authenticated user")
		return
	}

	var req identitysdk.SecuritySettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteValidationError(w, "invalid request body", nil)
		return
	}

	settings := domain.SecuritySettings{
		UserID:                userID,
		MaxConcurrentSessions: req.MaxConcurrentSessions,
		SessionTimeoutMinutes: req.SessionTimeoutMinutes,
	}
	if err := h.SessionService.UpdateSettings(ctx, settings); err != nil {
		writeDomainError(w, r, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, "settings updated", identitysdk.SecuritySettingsResponse{
		MaxConcurrentSessions: settings.MaxConcurrentSessions,
		SessionTimeoutMinutes: settings.SessionTimeoutMinutes,
	})
}
