// Package config contains everything related to configuration
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath   string
	CredentialPath string
	AuthURL        string
	Concurrency    int
	RequestTimeout time.Duration
	MaxRetries     int
	ShutdownGrace  time.Duration
	ExpirySkew     time.Duration
}

// Default values
const (
	defaultAuthURL        = "https://auth.cozyreq.app/v1/token"
	defaultConcurrency    = 4
	defaultRequestTimeout = 30 * time.Second
	defaultMaxRetries     = 3
	defaultShutdownGrace  = 5 * time.Second
	defaultExpirySkew     = 30 * time.Second
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	envPaths := getEnvPaths()
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		DatabasePath:   getEnvString("COZYREQ_DB_PATH", getDefaultDatabasePath()),
		CredentialPath: getEnvString("COZYREQ_CREDENTIAL_PATH", getDefaultCredentialPath()),
		AuthURL:        getEnvString("COZYREQ_AUTH_URL", defaultAuthURL),
		Concurrency:    getEnvInt("COZYREQ_CONCURRENCY", defaultConcurrency),
		RequestTimeout: getEnvDuration("COZYREQ_TIMEOUT", defaultRequestTimeout),
		MaxRetries:     getEnvInt("COZYREQ_MAX_RETRIES", defaultMaxRetries),
		ShutdownGrace:  getEnvDuration("COZYREQ_SHUTDOWN_GRACE", defaultShutdownGrace),
		ExpirySkew:     getEnvDuration("COZYREQ_EXPIRY_SKEW", defaultExpirySkew),
	}

	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("COZYREQ_CONCURRENCY must be at least 1, got %d", cfg.Concurrency)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("COZYREQ_MAX_RETRIES must not be negative, got %d", cfg.MaxRetries)
	}

	// Ensure database directory exists
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}

	// Ensure credential directory exists
	if err := ensureDir(filepath.Dir(cfg.CredentialPath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory location
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".cozyreq", ".env"))
	}

	return paths
}

// getDefaultDatabasePath returns the default path for the SQLite database.
func getDefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "cozyreq.db"
	}
	return filepath.Join(home, ".cozyreq", "cozyreq.db")
}

// getDefaultCredentialPath returns the default path for the credential JSON file.
func getDefaultCredentialPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "credential.json"
	}
	return filepath.Join(home, ".cozyreq", "credential.json")
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
