// Package identitysdk provides the wire types and a thin HTTP client for
// the identity service. It is consumed by the e2e suite and by other
// services that talk to identity.
package identitysdk

// Envelope is the uniform response wrapper every endpoint returns.
type Envelope[T any] struct {
	Success          bool              `json:"success"`
	Message          string            `json:"message,omitempty"`
	Data             T                 `json:"data,omitempty"`
	ErrorCode        string            `json:"errorCode,omitempty"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// LoginRequest is the primary credential check.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse either carries tokens or an MFA challenge to complete.
type LoginResponse struct {
	RequiresMFA      bool     `json:"requiresMfa"`
	ChallengeID      string   `json:"challengeId,omitempty"`
	AvailableMethods []string `json:"availableMethods,omitempty"`
	AccessToken      string   `json:"accessToken,omitempty"`
	RefreshToken     string   `json:"refreshToken,omitempty"`
	SessionID        string   `json:"sessionId,omitempty"`
}

// ChallengeRequest completes a pending MFA login challenge.
type ChallengeRequest struct {
	ChallengeID string `json:"challengeId"`
	MFAType     string `json:"mfaType"`
	MFACode     string `json:"mfaCode"`
}

// MFASetupResponse is returned from POST /v1/mfa/setup.
type MFASetupResponse struct {
	SetupSessionID     string `json:"setupSessionId"`
	SecretKey          string `json:"secretKey"`
	QRCodeURI          string `json:"qrCodeUri"`
	FormattedSecretKey string `json:"formattedSecretKey"`
	Instructions       string `json:"instructions"`
	ExpiresAt          string `json:"expiresAt"`
}

type MFAEnableRequest struct {
	TOTPCode string `json:"totpCode"`
}

type MFAEnableResponse struct {
	IsEnabled        bool     `json:"isEnabled"`
	BackupCodes      []string `json:"backupCodes"`
	BackupCodesCount int      `json:"backupCodesCount"`
	EnabledAt        string   `json:"enabledAt"`
	Warning          string   `json:"warning"`
}

type MFAVerifyRequest struct {
	MFAType string `json:"mfaType"`
	MFACode string `json:"mfaCode"`
}

type MFAVerifyResponse struct {
	Valid bool `json:"valid"`
}

type MFADisableRequest struct {
	Password string `json:"password"`
	MFACode  string `json:"mfaCode"`
	Reason   string `json:"reason,omitempty"`
}

type MFAStatusResponse struct {
	IsEnabled            bool     `json:"isEnabled"`
	IsEnforced           bool     `json:"isEnforced"`
	AvailableMethods     []string `json:"availableMethods"`
	BackupCodesRemaining int      `json:"backupCodesRemaining"`
	EnabledAt            *string  `json:"enabledAt,omitempty"`
	LastUsedAt           *string  `json:"lastUsedAt,omitempty"`
	GracePeriodEnd       *string  `json:"gracePeriodEnd,omitempty"`
}

type RegenerateBackupCodesRequest struct {
	TOTPCode string `json:"totpCode"`
}

type BackupCodesResponse struct {
	BackupCodes []string `json:"backupCodes"`
	Count       int      `json:"count"`
}

type SendEmailOTPRequest struct {
	Purpose string `json:"purpose"`
}

// SessionInfo is one entry in the active session list.
type SessionInfo struct {
	SessionID      string `json:"sessionId"`
	DeviceType     string `json:"deviceType"`
	OS             string `json:"os"`
	Browser        string `json:"browser"`
	IPAddress      string `json:"ipAddress"`
	CreatedAt      string `json:"createdAt"`
	LastActivityAt string `json:"lastActivityAt"`
	IsCurrent      bool   `json:"isCurrent"`
}

type SessionListResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

type TerminateOthersResponse struct {
	TerminatedCount int `json:"terminatedCount"`
}

type SessionStatsResponse struct {
	TotalCount      int            `json:"totalCount"`
	ActiveCount     int            `json:"activeCount"`
	MaxAllowed      int            `json:"maxAllowed"`
	OldestActivity  *string        `json:"oldestActivity,omitempty"`
	NewestActivity  *string        `json:"newestActivity,omitempty"`
	DeviceTypes     []string       `json:"deviceTypes"`
	DeviceBreakdown map[string]int `json:"deviceBreakdown"`
}

type SecuritySettingsRequest struct {
	MaxConcurrentSessions int `json:"maxConcurrentSessions"`
	SessionTimeoutMinutes int `json:"sessionTimeoutMinutes"`
}

type SecuritySettingsResponse struct {
	MaxConcurrentSessions int `json:"maxConcurrentSessions"`
	SessionTimeoutMinutes int `json:"sessionTimeoutMinutes"`
}

// HealthResponse is returned by the livez and readyz probes.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}
