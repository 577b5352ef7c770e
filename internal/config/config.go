package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Persistence
	DBPath string

	// Settlement
	SettlementTimezone string // IANA zone for eligibility-window math

	// Bank rail
	BankRailURL     string // empty → in-process stub
	BankRailTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	ConfigCacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Auth (actor identity only; authorization lives upstream)
	JWTSecret string
	DevAuth   bool // DEV_AUTH=true accepts the X-Actor header
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBPath: getEnv("DB_PATH", "settlement.db"),

		SettlementTimezone: getEnv("SETTLEMENT_TIMEZONE", "Asia/Kolkata"),

		BankRailURL:     getEnv("BANK_RAIL_URL", ""),
		BankRailTimeout: getEnvDuration("BANK_RAIL_TIMEOUT", 30*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 16),

		ConfigCacheTTL: getEnvDuration("CONFIG_CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		JWTSecret: getEnv("JWT_SECRET", "settlement-default-dev-secret-change-me"),
		DevAuth:   getEnv("DEV_AUTH", "false") == "true",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
