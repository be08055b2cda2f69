package server

import (
	"os"
	"strconv"
)

type Config struct {
	Port            int
	ReadTimeout     int
	WriteTimeout    int
	ShutdownTimeout int

	DBPath      string
	AuditDBPath string
	PolicyDir   string

	DefaultVerdict      string
	ConfirmationTimeout int
	MaxRulesPerPolicy   int

	ToolUpstream    string
	UpstreamTimeout int

	JWTSecret   string
	RequireAuth bool
}

func LoadConfig() Config {
	return Config{
		Port:            getEnvInt("PORT", 8080),
		ReadTimeout:     getEnvInt("READ_TIMEOUT", 30),
		WriteTimeout:    getEnvInt("WRITE_TIMEOUT", 30),
		ShutdownTimeout: getEnvInt("SHUTDOWN_TIMEOUT", 10),

		DBPath:      getEnv("DB_PATH", "./data/rules.db"),
		AuditDBPath: getEnv("AUDIT_DB_PATH", "./data/audit.db"),
		PolicyDir:   getEnv("POLICY_DIR", ""),

		DefaultVerdict:      getEnv("DEFAULT_VERDICT", "allow"),
		ConfirmationTimeout: getEnvInt("CONFIRMATION_TIMEOUT", 300),
		MaxRulesPerPolicy:   getEnvInt("MAX_RULES_PER_POLICY", 200),

		ToolUpstream:    getEnv("TOOL_UPSTREAM", "http://localhost:9000"),
		UpstreamTimeout: getEnvInt("UPSTREAM_TIMEOUT", 30),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		RequireAuth: getEnvBool("REQUIRE_AUTH", false),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}
