package domain

import (
	"strings"
	"time"
)

// Session is one authenticated presence for a user. Activity slides the
// expiry window; the registry enforces the per-user concurrency cap.
type Session struct {
	ID             string
	UserID         string
	RefreshHash    string
	DeviceType     string
	OS             string
	Browser        string
	UserAgent      string
	IPAddress      string
	LastActivityAt time.Time
	CreatedAt      time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
	RevokedReason  string
}

// Active reports whether the session is live at the given time.
func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// SessionStats summarises a user's registry state. TotalCount covers every
// retained session, including revoked and timed-out rows not yet swept;
// the device fields cover active sessions only.
type SessionStats struct {
	TotalCount      int            `json:"totalCount"`
	ActiveCount     int            `json:"activeCount"`
	MaxAllowed      int            `json:"maxAllowed"`
	OldestActivity  *time.Time     `json:"oldestActivity,omitempty"`
	NewestActivity  *time.Time     `json:"newestActivity,omitempty"`
	DeviceTypes     []string       `json:"deviceTypes"`
	DeviceBreakdown map[string]int `json:"deviceBreakdown"`
}

const (
	MinConcurrentSessions = 1
	MaxConcurrentSessions = 20

	MinSessionTimeoutMinutes = 5
	MaxSessionTimeoutMinutes = 1440

	DefaultConcurrentSessions    = 5
	DefaultSessionTimeoutMinutes = 60
)

// SecuritySettings carries the per-user session policy knobs.
type SecuritySettings struct {
	UserID                string
	MaxConcurrentSessions int
	SessionTimeoutMinutes int
	UpdatedAt             time.Time
}

// DefaultSecuritySettings returns the policy applied before a user has
// customised anything.
func DefaultSecuritySettings(userID string) SecuritySettings {
	return SecuritySettings{
		UserID:                userID,
		MaxConcurrentSessions: DefaultConcurrentSessions,
		SessionTimeoutMinutes: DefaultSessionTimeoutMinutes,
	}
}

// Validate rejects out-of-range policy values. An out-of-range timeout is a
// policy violation rather than plain bad input; the concurrency cap stays a
// validation error.
func (s SecuritySettings) Validate() error {
	if s.MaxConcurrentSessions < MinConcurrentSessions || s.MaxConcurrentSessions > MaxConcurrentSessions {
		return E(CodeValidation, "maxConcurrentSessions must be between 1 and 20")
	}
	if s.SessionTimeoutMinutes < MinSessionTimeoutMinutes || s.SessionTimeoutMinutes > MaxSessionTimeoutMinutes {
		return E(CodePolicyViolation, "sessionTimeoutMinutes must be between 5 and 1440")
	}
	return nil
}

// LoginChallenge is issued when a password check succeeds but MFA is still
// outstanding. Completing it with a valid second factor mints the session;
// bounded verification attempts, like email OTPs.
type LoginChallenge struct {
	ID          string
	UserID      string
	Methods     []string
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the challenge has passed its TTL at the given time.
func (c LoginChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// DeviceInfo is the coarse classification derived from a User-Agent string.
type DeviceInfo struct {
	DeviceType string
	OS         string
	Browser    string
}

// ParseUserAgent classifies a raw User-Agent into device type, OS and
// browser. Best effort: anything unrecognised maps to "Unknown".
func ParseUserAgent(ua string) DeviceInfo {
	info := DeviceInfo{DeviceType: "Unknown", OS: "Unknown", Browser: "Unknown"}
	if ua == "" {
		return info
	}
	lower := strings.ToLower(ua)

	switch {
	case strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet"):
		info.DeviceType = "Tablet"
	case strings.Contains(lower, "mobile") || strings.Contains(lower, "iphone") || strings.Contains(lower, "android"):
		info.DeviceType = "Mobile"
	default:
		info.DeviceType = "Desktop"
	}

	switch {
	case strings.Contains(lower, "windows"):
		info.OS = "Windows"
	case strings.Contains(lower, "iphone") || strings.Contains(lower, "ipad"):
		info.OS = "iOS"
	case strings.Contains(lower, "mac os") || strings.Contains(lower, "macintosh"):
		info.OS = "macOS"
	case strings.Contains(lower, "android"):
		info.OS = "Android"
	case strings.Contains(lower, "linux"):
		info.OS = "Linux"
	}

	switch {
	case strings.Contains(lower, "edg/"):
		info.Browser = "Edge"
	case strings.Contains(lower, "opr/") || strings.Contains(lower, "opera"):
		info.Browser = "Opera"
	case strings.Contains(lower, "chrome/"):
		info.Browser = "Chrome"
	case strings.Contains(lower, "firefox/"):
		info.Browser = "Firefox"
	case strings.Contains(lower, "safari/"):
		info.Browser = "Safari"
	}

	return info
}
