package identity_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/asia-shop/identity/pkg/identitysdk"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for identity service end-to-end
 * tests: container setup, account creation, and MFA enrollment.
 */

const (
	testImageName = "identity-test:latest"

	testPassword = "Sup3rSecret!pass"

	uaDesktop = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	uaPhone   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

// TestMain builds the Docker image once before all tests and cleans it up
// after all tests complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building Identity Service Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Identity Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/identity/Dockerfile",
		"../../../")
	cmd.Dir = "."
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // Ignore errors - image might not exist
}

// setupIdentityContainer starts the identity service in a container and
// returns the base URL. Rate limits are relaxed so rapid test requests do
// not trip the production limits.
func setupIdentityContainer(t *testing.T) (string, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env: map[string]string{
			"IDENTITY_DATABASE_FILE": "/tmp/identity.db",
			"IDENTITY_PEPPER_FILE":   "/tmp/pepper",
			"IDENTITY_ISSUER":        "identity-e2e",
			"ENV":                    "test",
			"LOG_LEVEL":              "info",
			"LOG_FORMAT":             "json",

			"RATELIMIT_STRICT_REQUESTS":   "1000",
			"RATELIMIT_STRICT_WINDOW_SEC": "60",
			"RATELIMIT_STRICT_BURST":      "1000",
			"RATELIMIT_MODERATE_REQUESTS": "1000",
			"RATELIMIT_MODERATE_BURST":    "1000",
			"RATELIMIT_LENIENT_REQUESTS":  "1000",
			"RATELIMIT_LENIENT_BURST":     "1000",
		},
		WaitingFor: wait.ForHTTP("/livez").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	baseURL := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return baseURL, cleanup
}

// setupIdentityContainerWithDefaultRateLimits starts the service with
// production rate limits, for tests that exercise the limiting itself.
func setupIdentityContainerWithDefaultRateLimits(t *testing.T) (string, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env: map[string]string{
			"IDENTITY_DATABASE_FILE": "/tmp/identity.db",
			"IDENTITY_PEPPER_FILE":   "/tmp/pepper",
			"IDENTITY_ISSUER":        "identity-e2e",
			"ENV":                    "test",
			"LOG_LEVEL":              "info",
			"LOG_FORMAT":             "json",
		},
		WaitingFor: wait.ForHTTP("/livez").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	baseURL := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return baseURL, cleanup
}

// registerAndLogin creates a fresh account and returns an authenticated
// session for it.
func registerAndLogin(t *testing.T, client *identitysdk.Client, email, username string) *identitysdk.Session {
	t.Helper()
	ctx := context.Background()

	_, err := client.Register(ctx, email, username, testPassword)
	require.NoError(t, err, "Register should succeed")

	session, err := client.Login(ctx, email, testPassword)
	require.NoError(t, err, "Login should succeed")
	require.NotNil(t, session)
	require.NotEmpty(t, session.AccessToken())

	return session
}

// enrollTOTP walks a session through the full MFA enrollment flow and
// returns the shared secret plus the plaintext backup codes.
func enrollTOTP(t *testing.T, session *identitysdk.Session) (secret string, backupCodes []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := session.SetupMFA(ctx)
	require.NoError(t, err, "MFA setup should succeed")
	require.NotEmpty(t, setup.SecretKey)
	require.Contains(t, setup.QRCodeURI, "otpauth://")

	code := currentTOTP(t, setup.SecretKey)
	enabled, err := session.EnableMFA(ctx, code)
	require.NoError(t, err, "MFA enable should succeed")
	require.True(t, enabled.IsEnabled)
	require.Len(t, enabled.BackupCodes, 10)

	return setup.SecretKey, enabled.BackupCodes
}

// currentTOTP computes the current TOTP code for the given secret.
func currentTOTP(t *testing.T, secret string) string {
	t.Helper()

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// loginWithTOTP performs the two-step MFA login and returns the session.
func loginWithTOTP(t *testing.T, client *identitysdk.Client, email, secret string) *identitysdk.Session {
	t.Helper()
	ctx := context.Background()

	_, err := client.Login(ctx, email, testPassword)
	require.Error(t, err, "Login should demand a second factor")

	var challenge *identitysdk.MFAChallengeError
	require.ErrorAs(t, err, &challenge)
	require.NotEmpty(t, challenge.ChallengeID)

	session, err := client.CompleteChallenge(ctx, challenge.ChallengeID, "TOTP", currentTOTP(t, secret))
	require.NoError(t, err, "Challenge completion should succeed")
	require.NotNil(t, session)

	return session
}
