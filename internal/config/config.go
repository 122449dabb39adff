package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Auth
	APIKeyPepper string
	AdminKey     string

	// CORS
	CORSOrigin string

	// Match actor tuning (spec §6.3)
	MatchTurnTimeout      time.Duration
	MatchDisconnectGrace  time.Duration
	EventWaitTimeoutMax   time.Duration
	PerAgentEventBufferMax int
	SubscriberBacklogMax   int

	// Rating
	EloKFactor     float64
	EloProvisional bool

	// Engine
	EngineGRPCAddr string
}

// Load reads config from the environment, falling back to .env if present
// the way the teacher does. APIKeyPepper and AdminKey are required in
// every environment except local development, where defaults let the
// server boot without a .env for quick iteration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),

		APIKeyPepper: getEnv("API_KEY_PEPPER", ""),
		AdminKey:     getEnv("ADMIN_KEY", ""),

		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		MatchTurnTimeout:       parseDurationMs(getEnv("MATCH_TURN_TIMEOUT_MS", "30000")),
		MatchDisconnectGrace:   parseDurationMs(getEnv("MATCH_DISCONNECT_GRACE_MS", "60000")),
		EventWaitTimeoutMax:    parseDurationSeconds(getEnv("EVENT_WAIT_TIMEOUT_MAX_S", "30")),
		PerAgentEventBufferMax: parseInt(getEnv("PER_AGENT_EVENT_BUFFER_MAX", "25"), 25),
		SubscriberBacklogMax:   parseInt(getEnv("SUBSCRIBER_BACKLOG_MAX", "256"), 256),

		EloKFactor:     parseFloat(getEnv("ELO_K_FACTOR", "32"), 32),
		EloProvisional: parseBool(getEnv("ELO_PROVISIONAL", "false")),

		EngineGRPCAddr: getEnv("ENGINE_GRPC_ADDR", ""),
	}

	if cfg.Env != "development" {
		if cfg.APIKeyPepper == "" {
			return nil, fmt.Errorf("config: API_KEY_PEPPER is required outside development")
		}
		if cfg.AdminKey == "" {
			return nil, fmt.Errorf("config: ADMIN_KEY is required outside development")
		}
	}
	if cfg.APIKeyPepper == "" {
		cfg.APIKeyPepper = "dev-pepper-do-not-use-in-prod"
	}
	if cfg.AdminKey == "" {
		cfg.AdminKey = "dev-admin-key-do-not-use-in-prod"
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationMs(s string) time.Duration {
	ms, err := strconv.Atoi(s)
	if err != nil {
		return 30 * time.Second
	}
	return time.Duration(ms) * time.Millisecond
}

func parseDurationSeconds(s string) time.Duration {
	secs, err := strconv.Atoi(s)
	if err != nil {
		return 30 * time.Second
	}
	return time.Duration(secs) * time.Second
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(s string, fallback float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}
