package identitysdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the identity service. It provides access to
// unauthenticated operations and can create authenticated Sessions.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// UserAgent is sent on every request. The server parses it into the
	// session's device fingerprint, so tests can set it to simulate
	// different devices.
	UserAgent string
}

// NewClient creates a new identity service client.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, email, username, password string) (*RegisterResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/register", "", RegisterRequest{
		Email:    email,
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[RegisterResponse](resp, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Login performs a password login. When the account has MFA enabled the
// returned error is a *MFAChallengeError carrying the challenge id; complete
// it with CompleteChallenge to obtain the session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/login", "", LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[LoginResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}

	if out.RequiresMFA {
		return nil, &MFAChallengeError{
			ChallengeID: out.ChallengeID,
			Methods:     out.AvailableMethods,
		}
	}

	return newSession(c, out), nil
}

// CompleteChallenge finishes a pending MFA login challenge with a second
// factor code and returns the authenticated session.
func (c *Client) CompleteChallenge(ctx context.Context, challengeID, mfaType, code string) (*Session, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/login/challenge", "", ChallengeRequest{
		ChallengeID: challengeID,
		MFAType:     mfaType,
		MFACode:     code,
	})
	if err != nil {
		return nil, err
	}

	out, err := decodeEnvelope[LoginResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}

	return newSession(c, out), nil
}

// NewSessionFromTokens creates an authenticated session from existing
// tokens, e.g. restored from storage.
func (c *Client) NewSessionFromTokens(accessToken, refreshToken, sessionID string) *Session {
	return &Session{
		client:       c,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		sessionID:    sessionID,
	}
}

// Livez checks service liveness.
func (c *Client) Livez(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/livez", "", nil)
	if err != nil {
		return nil, err
	}

	out, err := decodeJSON[HealthResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Readyz checks service readiness, including its dependencies.
func (c *Client) Readyz(ctx context.Context) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/readyz", "", nil)
	if err != nil {
		return nil, err
	}

	out, err := decodeJSON[HealthResponse](resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
