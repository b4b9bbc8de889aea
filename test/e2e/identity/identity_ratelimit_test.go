package identity_test

import (
	"errors"
	"testing"

	"github.com/asia-shop/identity/pkg/identitysdk"
	"github.com/stretchr/testify/require"
)

// TestLoginRateLimiting verifies the strict limiter kicks in on repeated
// failed logins from the same address.
func TestLoginRateLimiting(t *testing.T) {
	baseURL, cleanup := setupIdentityContainerWithDefaultRateLimits(t)
	defer cleanup()

	client := identitysdk.NewClient(baseURL)
	client.UserAgent = uaDesktop

	_, err := client.Register(t.Context(), "ratelimit@example.com", "ratelimit", testPassword)
	require.NoError(t, err)

	// The strict profile allows a small burst; hammer past it.
	var limited bool
	for i := 0; i < 20; i++ {
		_, err := client.Login(t.Context(), "ratelimit@example.com", "wrong-password")
		require.Error(t, err)

		var apiErr *identitysdk.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "rate_limit_exceeded" {
			limited = true
			break
		}
	}
	require.True(t, limited, "repeated failed logins should eventually be rate limited")
}
