package domain

import (
	"fmt"
	"time"
)

// MFAMethod is the closed set of second-factor types. Dispatch is an
// exhaustive switch; ParseMFAMethod is the only way values enter the system.
type MFAMethod int

const (
	MethodTOTP MFAMethod = iota
	MethodBackupCode
	MethodEmailOTP
)

func (m MFAMethod) String() string {
	switch m {
	case MethodTOTP:
		return "TOTP"
	case MethodBackupCode:
		return "BackupCode"
	case MethodEmailOTP:
		return "EmailOTP"
	}
	return fmt.Sprintf("MFAMethod(%d)", int(m))
}

// ParseMFAMethod maps the wire representation to the enum. Unknown values
// are a validation error before anything reaches the state machine.
func ParseMFAMethod(s string) (MFAMethod, error) {
	switch s {
	case "TOTP":
		return MethodTOTP, nil
	case "BackupCode":
		return MethodBackupCode, nil
	case "EmailOTP":
		return MethodEmailOTP, nil
	}
	return 0, Wrap(CodeValidation, "unknown mfa type", fmt.Errorf("mfa type %q", s))
}

// MFAProfile is the per-user MFA aggregate root. Mutations go through an
// optimistic version check; a losing concurrent writer observes Conflict.
type MFAProfile struct {
	UserID               string
	Secret               string // confirmed TOTP secret (base32), empty until enabled
	IsEnabled            bool
	IsTotpEnabled        bool
	IsEmailOtpEnabled    bool
	BackupCodesRemaining int
	EnabledAt            *time.Time
	LastUsedAt           *time.Time
	IsEnforced           bool
	GracePeriodEnd       *time.Time
	DisabledAt           *time.Time
	DisabledReason       string
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// State reports the lifecycle position of the profile. A disabled profile
// behaves as unconfigured for future setup; SetupPending is tracked by the
// presence of a live setup session, not by the profile itself.
func (p MFAProfile) State() string {
	if p.IsEnabled {
		return "Enabled"
	}
	if p.DisabledAt != nil {
		return "Disabled"
	}
	return "Unconfigured"
}

// AvailableMethods lists the second factors currently usable for this profile.
func (p MFAProfile) AvailableMethods() []string {
	if !p.IsEnabled {
		return nil
	}
	var methods []string
	if p.IsTotpEnabled {
		methods = append(methods, MethodTOTP.String())
	}
	if p.BackupCodesRemaining > 0 {
		methods = append(methods, MethodBackupCode.String())
	}
	if p.IsEmailOtpEnabled {
		methods = append(methods, MethodEmailOTP.String())
	}
	return methods
}

// SetupSession binds a user to a not-yet-confirmed TOTP secret. Transient:
// destroyed on successful enable or expiry; at most one pending per user.
type SetupSession struct {
	ID              string
	UserID          string
	Secret          string
	QRCodeURI       string
	FormattedSecret string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// Expired reports whether the session has passed its TTL at the given time.
func (s SetupSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// BackupCode is a single-use recovery credential. Only the SHA-256
// fingerprint of the code is stored; the plaintext is shown exactly once.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	BatchID   string
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// EmailOTP is a short-lived numeric code delivered out of band. At most one
// active per (user, purpose); bounded verification attempts.
type EmailOTP struct {
	ID          string
	UserID      string
	CodeHash    string
	Purpose     string
	Attempts    int
	MaxAttempts int
	Consumed    bool
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the code has passed its TTL at the given time.
func (o EmailOTP) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// MFASetupResponse is returned from POST /mfa/setup.
type MFASetupResponse struct {
	SetupSessionID     string `json:"setupSessionId"`
	SecretKey          string `json:"secretKey"`
	QRCodeURI          string `json:"qrCodeUri"`
	FormattedSecretKey string `json:"formattedSecretKey"`
	Instructions       string `json:"instructions"`
	ExpiresAt          string `json:"expiresAt"`
}

// MFAEnableResponse is returned from POST /mfa/enable. Backup codes appear
// here once and are never retrievable again.
type MFAEnableResponse struct {
	IsEnabled        bool     `json:"isEnabled"`
	BackupCodes      []string `json:"backupCodes"`
	BackupCodesCount int      `json:"backupCodesCount"`
	EnabledAt        string   `json:"enabledAt"`
	Warning          string   `json:"warning"`
}

// MFAStatusResponse is returned from GET /mfa/status.
type MFAStatusResponse struct {
	IsEnabled            bool     `json:"isEnabled"`
	IsEnforced           bool     `json:"isEnforced"`
	AvailableMethods     []string `json:"availableMethods"`
	BackupCodesRemaining int      `json:"backupCodesRemaining"`
	EnabledAt            *string  `json:"enabledAt,omitempty"`
	LastUsedAt           *string  `json:"lastUsedAt,omitempty"`
	GracePeriodEnd       *string  `json:"gracePeriodEnd,omitempty"`
}
