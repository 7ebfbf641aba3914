package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	// Server identity: the admin key is required, the port defaults to 8080
	AdminAPIKey string
	Port        string

	// Storage
	DatabasePath string

	// Connection and chat limits
	MaxConnections          int
	UserMessageInterval     time.Duration
	SyncInterval            time.Duration

	// Callback targets. Each URL is independently optional; an empty URL
	// silently disables that event family.
	RoomLifecycleCallbackURL  string
	UserActivityCallbackURL   string
	ChatHistoryCallbackURL    string
	SessionHistoryCallbackURL string
	DataCallbackURL           string

	// Callback delivery policy
	CallbackMaxRetries int
	CallbackRetryDelay time.Duration
	CallbackTimeout    time.Duration
	HistoryBatchSize   int

	// Optional variables with defaults
	GoEnv          string
	LogLevel       string
	AllowedOrigins string

	// Rate Limits (ulule/limiter formatted, M = Minute, H = Hour)
	RateLimitMgmt string
	RateLimitWsIP string

	// Tracing
	OtelEnabled       bool
	OtelCollectorAddr string
}

// ValidateEnv validates all required environment variables and returns a Config object
// Returns an error if any required variable is missing or invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: ADMIN_API_KEY (minimum 16 characters)
	cfg.AdminAPIKey = os.Getenv("ADMIN_API_KEY")
	if cfg.AdminAPIKey == "" {
		errors = append(errors, "ADMIN_API_KEY is required")
	} else if len(cfg.AdminAPIKey) < 16 {
		errors = append(errors, fmt.Sprintf("ADMIN_API_KEY must be at least 16 characters (got %d)", len(cfg.AdminAPIKey)))
	}

	// Optional: PORT (defaults to 8080)
	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Optional: DATABASE_PATH (defaults to data/chat.db)
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", "data/chat.db")

	var err error
	if cfg.MaxConnections, err = getEnvAsInt("MAX_CONNECTIONS", 1000); err != nil {
		errors = append(errors, err.Error())
	} else if cfg.MaxConnections < 1 {
		errors = append(errors, fmt.Sprintf("MAX_CONNECTIONS must be positive (got %d)", cfg.MaxConnections))
	}

	if cfg.UserMessageInterval, err = getEnvAsSeconds("USER_MESSAGE_INTERVAL_SECS", 5); err != nil {
		errors = append(errors, err.Error())
	}
	if cfg.SyncInterval, err = getEnvAsSeconds("SYNC_INTERVAL_SECONDS", 300); err != nil {
		errors = append(errors, err.Error())
	}

	// Callback URLs: all optional
	cfg.RoomLifecycleCallbackURL = os.Getenv("ROOM_LIFECYCLE_CALLBACK_URL")
	cfg.UserActivityCallbackURL = os.Getenv("USER_ACTIVITY_CALLBACK_URL")
	cfg.ChatHistoryCallbackURL = os.Getenv("CHAT_HISTORY_CALLBACK_URL")
	cfg.SessionHistoryCallbackURL = os.Getenv("SESSION_HISTORY_CALLBACK_URL")
	cfg.DataCallbackURL = os.Getenv("DATA_CALLBACK_URL")

	if cfg.CallbackMaxRetries, err = getEnvAsInt("CALLBACK_MAX_RETRIES", 3); err != nil {
		errors = append(errors, err.Error())
	}
	if cfg.CallbackRetryDelay, err = getEnvAsSeconds("CALLBACK_RETRY_DELAY_SECONDS", 5); err != nil {
		errors = append(errors, err.Error())
	}
	if cfg.CallbackTimeout, err = getEnvAsSeconds("CALLBACK_TIMEOUT_SECONDS", 10); err != nil {
		errors = append(errors, err.Error())
	}
	if cfg.HistoryBatchSize, err = getEnvAsInt("HISTORY_BATCH_SIZE", 100); err != nil {
		errors = append(errors, err.Error())
	} else if cfg.HistoryBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("HISTORY_BATCH_SIZE must be positive (got %d)", cfg.HistoryBatchSize))
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitMgmt = getEnvOrDefault("RATE_LIMIT_MGMT", "300-M")
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "60-M")

	cfg.OtelEnabled = os.Getenv("OTEL_ENABLED") == "true"
	if cfg.OtelEnabled {
		cfg.OtelCollectorAddr = getEnvOrDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	}

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// IsDevelopment reports whether the server runs with the development profile.
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"admin_api_key", redactSecret(cfg.AdminAPIKey),
		"port", cfg.Port,
		"database_path", cfg.DatabasePath,
		"max_connections", cfg.MaxConnections,
		"user_message_interval", cfg.UserMessageInterval,
		"sync_interval", cfg.SyncInterval,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"otel_enabled", cfg.OtelEnabled,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default
// value if unset or empty
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt parses an integer environment variable with a default.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got '%s')", key, value)
	}
	return n, nil
}

// getEnvAsSeconds parses a whole-seconds environment variable into a Duration.
func getEnvAsSeconds(key string, defaultSecs int) (time.Duration, error) {
	n, err := getEnvAsInt(key, defaultSecs)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative (got %d)", key, n)
	}
	return time.Duration(n) * time.Second, nil
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
