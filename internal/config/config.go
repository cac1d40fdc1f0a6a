// Package config provides configuration for the coordinator and the
// runner gateway.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the coordinator configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Runner authentication. Empty disables key auth (local development).
	RunnerToken string

	// Heartbeat thresholds for derived runner status
	StaleAfter   time.Duration
	OfflineAfter time.Duration

	// Long-poll cap for GET /runner/runs
	PollWait time.Duration

	// Event listing default page size
	EventPageLimit int
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:       getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:    getEnv("DATABASE_URL", "file:coordinator.db?mode=rwc"),
		RunnerToken:    getEnv("RUNNER_TOKEN", ""),
		StaleAfter:     time.Duration(getEnvInt("STALE_AFTER_MS", 30000)) * time.Millisecond,
		OfflineAfter:   time.Duration(getEnvInt("OFFLINE_AFTER_MS", 120000)) * time.Millisecond,
		PollWait:       time.Duration(getEnvInt("POLL_WAIT_MS", 20000)) * time.Millisecond,
		EventPageLimit: getEnvInt("EVENT_PAGE_LIMIT", 200),
	}
	return cfg
}

// GatewayConfig holds the runner gateway configuration.
type GatewayConfig struct {
	// Local listen port, loopback only
	LocalPort int

	// Coordinator base URL and runner credentials
	CoordinatorURL string
	RunnerToken    string

	// Runner identity
	ProjectDir          string
	ExecutorProfile     string
	Tags                string // comma separated
	RequireMatchingTags bool

	// Executor command launched per claimed run
	ExecutorCommand string

	// Poll/heartbeat cadence
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

// LoadGateway loads the gateway configuration from environment variables.
func LoadGateway() *GatewayConfig {
	return &GatewayConfig{
		LocalPort:           getEnvInt("GATEWAY_PORT", 8787),
		CoordinatorURL:      getEnv("COORDINATOR_URL", "http://localhost:8080"),
		RunnerToken:         getEnv("RUNNER_TOKEN", ""),
		ProjectDir:          getEnv("PROJECT_DIR", ""),
		ExecutorProfile:     getEnv("EXECUTOR_PROFILE", "echo"),
		Tags:                getEnv("RUNNER_TAGS", ""),
		RequireMatchingTags: getEnvBool("REQUIRE_MATCHING_TAGS", false),
		ExecutorCommand:     getEnv("EXECUTOR_COMMAND", ""),
		PollInterval:        time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		HeartbeatInterval:   time.Duration(getEnvInt("HEARTBEAT_INTERVAL_MS", 10000)) * time.Millisecond,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
