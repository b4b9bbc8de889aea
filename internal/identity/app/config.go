package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer string // Required: issuer claim for tokens and the TOTP otpauth URI

	TokenSeedFile        string        // Optional: path to a 32-byte seed file for the signing key (default: ephemeral key)
	DatabaseFile         string        // Optional: path to SQLite database file (default: ./identity.db)
	PepperFile           string        // Optional: path to file containing pepper for password hashing (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 15m)
	SetupSessionTTL      time.Duration // MFA setup session lifetime (default: 10m)
	AccessTokenTTL       time.Duration // Access token lifetime (default: 15m)
	AuditBufferSize      int           // Async audit queue depth (default: 256)
	AuditEnabled         bool          // Toggle for the audit pipeline (default: true)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:               os.Getenv("IDENTITY_ISSUER"),
		TokenSeedFile:        os.Getenv("IDENTITY_TOKEN_SEED_FILE"),
		DatabaseFile:         getEnvOrDefault("IDENTITY_DATABASE_FILE", "identity.db"),
		PepperFile:           getEnvOrDefault("IDENTITY_PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 15*time.Minute),
		SetupSessionTTL:      getEnvDurationOrDefault("MFA_SETUP_SESSION_TTL", 10*time.Minute),
		AccessTokenTTL:       getEnvDurationOrDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		AuditBufferSize:      getEnvIntOrDefault("AUDIT_BUFFER_SIZE", 256),
		AuditEnabled:         getEnvOrDefault("AUDIT_ENABLED", "true") == "true",
	}

	if cfg.Issuer == "" {
		cfg.Issuer = "asia-shop-identity"
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Accept Go duration syntax (e.g. "1h", "30m", "90s").
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Fall back to integer minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
