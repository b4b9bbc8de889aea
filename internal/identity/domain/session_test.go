package domain_test

import (
	"testing"
	"time"

	"github.com/asia-shop/identity/internal/identity/domain"
	"github.com/stretchr/testify/require"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want domain.DeviceInfo
	}{
		{
			name: "chrome on windows desktop",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			want: domain.DeviceInfo{DeviceType: "Desktop", OS: "Windows", Browser: "Chrome"},
		},
		{
			name: "safari on iphone",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			want: domain.DeviceInfo{DeviceType: "Mobile", OS: "iOS", Browser: "Safari"},
		},
		{
			name: "ipad is a tablet",
			ua:   "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
			want: domain.DeviceInfo{DeviceType: "Tablet", OS: "iOS", Browser: "Safari"},
		},
		{
			name: "firefox on android phone",
			ua:   "Mozilla/5.0 (Android 14; Mobile; rv:125.0) Gecko/125.0 Firefox/125.0",
			want: domain.DeviceInfo{DeviceType: "Mobile", OS: "Android", Browser: "Firefox"},
		},
		{
			name: "edge on macos",
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36 Edg/124.0",
			want: domain.DeviceInfo{DeviceType: "Desktop", OS: "macOS", Browser: "Edge"},
		},
		{
			name: "opera on linux",
			ua:   "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0 Safari/537.36 OPR/109.0",
			want: domain.DeviceInfo{DeviceType: "Desktop", OS: "Linux", Browser: "Opera"},
		},
		{
			name: "empty user agent",
			ua:   "",
			want: domain.DeviceInfo{DeviceType: "Unknown", OS: "Unknown", Browser: "Unknown"},
		},
		{
			name: "gibberish falls back to desktop",
			ua:   "curl/8.4.0",
			want: domain.DeviceInfo{DeviceType: "Desktop", OS: "Unknown", Browser: "Unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, domain.ParseUserAgent(tt.ua))
		})
	}
}

func TestSecuritySettingsValidate(t *testing.T) {
	valid := domain.SecuritySettings{
		UserID:                "u1",
		MaxConcurrentSessions: 5,
		SessionTimeoutMinutes: 60,
	}
	require.NoError(t, valid.Validate())

	boundaries := []domain.SecuritySettings{
		{MaxConcurrentSessions: 1, SessionTimeoutMinutes: 5},
		{MaxConcurrentSessions: 20, SessionTimeoutMinutes: 1440},
	}
	for _, s := range boundaries {
		require.NoError(t, s.Validate())
	}

	badSessions := []domain.SecuritySettings{
		{MaxConcurrentSessions: 0, SessionTimeoutMinutes: 60},
		{MaxConcurrentSessions: 21, SessionTimeoutMinutes: 60},
	}
	for _, s := range badSessions {
		err := s.Validate()
		require.Error(t, err)
		require.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	}

	// An out-of-range timeout is classified as a policy violation.
	badTimeouts := []domain.SecuritySettings{
		{MaxConcurrentSessions: 5, SessionTimeoutMinutes: 4},
		{MaxConcurrentSessions: 5, SessionTimeoutMinutes: 1441},
	}
	for _, s := range badTimeouts {
		err := s.Validate()
		require.Error(t, err)
		require.Equal(t, domain.CodePolicyViolation, domain.CodeOf(err))
	}
}

func TestSessionActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s := domain.Session{ExpiresAt: now.Add(time.Hour)}
	require.True(t, s.Active(now))
	require.False(t, s.Active(now.Add(2*time.Hour)))

	revoked := now
	s.RevokedAt = &revoked
	require.False(t, s.Active(now), "revoked sessions are never active")
}
