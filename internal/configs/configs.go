/*
Package configs is responsible for loading and parsing the application's
configuration settings.

All values come from environment variables, with development defaults
where a missing value is safe and hard errors where it is not.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig contains every configuration parameter the server needs.
type AppConfig struct {
	// General Server Settings
	Environment string
	ChatPort    int
	HTTPPort    int

	// TLS Settings (the chat listener only speaks TLS)
	TLSCertFile string
	TLSKeyFile  string

	// Security Settings
	AllowedOrigins []string

	// Credential Store Settings
	UsersFile   string
	DatabaseDSN string

	// Session and Room Lifecycle Settings
	SessionTTL      time.Duration
	RoomGracePeriod time.Duration

	// AI Backend Settings
	OllamaURL   string
	OllamaModel string
}

// LoadConfig reads and validates the application configuration from
// environment variables and returns the populated AppConfig.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	chatPort, err := portFromEnv("CHAT_PORT", 5055)
	if err != nil {
		return nil, err
	}
	cfg.ChatPort = chatPort

	httpPort, err := portFromEnv("HTTP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	cfg.HTTPPort = httpPort

	// --- TLS Settings ---
	cfg.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	if cfg.TLSCertFile == "" {
		cfg.TLSCertFile = "certs/server.crt"
	}

	cfg.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	if cfg.TLSKeyFile == "" {
		cfg.TLSKeyFile = "certs/server.key"
	}

	// --- Security Settings ---
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{}
	}

	// --- Credential Store Settings ---
	cfg.UsersFile = os.Getenv("USERS_FILE")
	if cfg.UsersFile == "" {
		cfg.UsersFile = "users.txt"
	}

	// DATABASE_URL is optional: when set, credentials live in Postgres
	// instead of the flat file.
	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")

	// --- Session and Room Lifecycle Settings ---
	cfg.SessionTTL, err = durationFromEnv("SESSION_TTL", time.Hour)
	if err != nil {
		return nil, err
	}

	cfg.RoomGracePeriod, err = durationFromEnv("ROOM_GRACE_PERIOD", 60*time.Second)
	if err != nil {
		return nil, err
	}

	// --- AI Backend Settings ---
	cfg.OllamaURL = os.Getenv("OLLAMA_URL")
	if cfg.OllamaURL == "" {
		cfg.OllamaURL = "http://localhost:11434/api/generate"
	}

	cfg.OllamaModel = os.Getenv("OLLAMA_MODEL")
	if cfg.OllamaModel == "" {
		cfg.OllamaModel = "llama3"
	}

	return cfg, nil
}

// portFromEnv reads a TCP port from the named environment variable,
// falling back to def and rejecting privileged or out-of-range values.
func portFromEnv(name string, def int) (int, error) {
	portStr := os.Getenv(name)
	if portStr == "" {
		return def, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}

	if port < 1024 || port > 65535 {
		return 0, fmt.Errorf("port number %d for %s is outside the allowed range (1024-65535)", port, name)
	}

	return port, nil
}

// durationFromEnv reads a Go duration string from the named environment
// variable, falling back to def.
func durationFromEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, d)
	}

	return d, nil
}
