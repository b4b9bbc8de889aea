package identity_test

import (
	"testing"

	"github.com/asia-shop/identity/pkg/identitysdk"
	"github.com/stretchr/testify/require"
)

// TestHealthEndpoints verifies the liveness and readiness probes.
func TestHealthEndpoints(t *testing.T) {
	baseURL, cleanup := setupIdentityContainer(t)
	defer cleanup()

	client := identitysdk.NewClient(baseURL)

	livez, err := client.Livez(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", livez.Status)
	require.NotEmpty(t, livez.Version)

	readyz, err := client.Readyz(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", readyz.Status)
	require.NotNil(t, readyz.Checks)
	require.Equal(t, "ok", readyz.Checks.Database)
	require.Equal(t, "ok", readyz.Checks.Signer)
}
