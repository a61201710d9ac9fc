// Package config provides environment configuration for the chat
// engine and the development backend.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Backend the engine talks to
	BackendURL    string
	APIPrefix     string
	AuthToken     string
	ClientTimeout time.Duration

	// Pagination
	SessionPageSize int
	HistoryPageSize int

	// Local persistence (active conversation id)
	StateFile string

	// chatd server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// chatd auth
	JWTSecret     string
	JWTExpiration time.Duration

	// chatd rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// chatd reply generation
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string

	// chatd NATS event publication (optional)
	NATSURL   string
	NATSToken string

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Backend
		BackendURL:    getEnv("CHAT_BACKEND_URL", "http://localhost:8080"),
		APIPrefix:     getEnv("CHAT_API_PREFIX", "/api/aria"),
		AuthToken:     getEnv("CHAT_AUTH_TOKEN", ""),
		ClientTimeout: getDurationEnv("CHAT_CLIENT_TIMEOUT", 30*time.Second),

		// Pagination
		SessionPageSize: getIntEnv("CHAT_SESSION_PAGE_SIZE", 20),
		HistoryPageSize: getIntEnv("CHAT_HISTORY_PAGE_SIZE", 20),

		// Local persistence
		StateFile: getEnv("CHAT_STATE_FILE", ""),

		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 15*time.Minute),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "scripted"),

		// NATS
		NATSURL:   getEnv("NATS_URL", ""),
		NATSToken: getEnv("NATS_TOKEN", ""),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
