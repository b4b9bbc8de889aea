package identitysdk

import (
	"context"
	"net/http"
)

// ListSessions returns every active session for the authenticated user.
func (s *Session) ListSessions(ctx context.Context) (*SessionListResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodGet, "/v1/sessions", s.accessToken, nil)
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[SessionListResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// TerminateSession revokes one of the user's own sessions by id.
func (s *Session) TerminateSession(ctx context.Context, sessionID string) error {
	resp, err := s.client.doRequest(ctx, http.MethodDelete, "/v1/sessions/"+sessionID, s.accessToken, nil)
	if err != nil {
		return err
	}

	_, err = decodeEnvelope[struct{}](resp, http.StatusOK)
	return err
}

// TerminateOtherSessions revokes every session except the current one and
// reports how many were terminated.
func (s *Session) TerminateOtherSessions(ctx context.Context) (*TerminateOthersResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodPost, "/v1/sessions/terminate-others", s.accessToken, nil)
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[TerminateOthersResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SessionStats returns aggregate statistics over the user's active sessions.
func (s *Session) SessionStats(ctx context.Context) (*SessionStatsResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodGet, "/v1/sessions/stats", s.accessToken, nil)
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[SessionStatsResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SecuritySettings returns the user's session policy.
func (s *Session) SecuritySettings(ctx context.Context) (*SecuritySettingsResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodGet, "/v1/sessions/settings", s.accessToken, nil)
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[SecuritySettingsResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSecuritySettings replaces the user's session policy. The server
// validates the concurrency cap and timeout ranges.
func (s *Session) UpdateSecuritySettings(ctx context.Context, maxSessions, timeoutMinutes int) (*SecuritySettingsResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodPut, "/v1/sessions/settings", s.accessToken, SecuritySettingsRequest{
		MaxConcurrentSessions: maxSessions,
		SessionTimeoutMinutes: timeoutMinutes,
	})
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[SecuritySettingsResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
