package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Backend names accepted in STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Storage
	StoreBackend string
	DatabaseURL  string
	SQLitePath   string
	RedisURL     string

	// Wide-column table (DynamoDB, or the key namespace in Redis)
	AWSRegion         string
	TableName         string
	DynamoEndpoint    string
	DynamoCreateTable bool

	// HistoryLimit is the number of messages returned when a caller does
	// not ask for a specific amount.
	HistoryLimit int
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SQLitePath:        getEnv("SQLITE_PATH", "./data/chatbot.db"),
		RedisURL:          os.Getenv("REDIS_URL"),
		AWSRegion:         os.Getenv("AWS_REGION"),
		TableName:         getEnv("DYNAMODB_TABLE", "chatbot-conversations"),
		DynamoEndpoint:    os.Getenv("DYNAMODB_ENDPOINT"),
		DynamoCreateTable: getEnv("DYNAMODB_CREATE_TABLE", "false") == "true",
		HistoryLimit:      getEnvInt("HISTORY_LIMIT", 20),
	}

	// Legacy switch from earlier deployments.
	if getEnv("USE_MEMORY_ADAPTER", "false") == "true" {
		cfg.StoreBackend = BackendMemory
	}

	if cfg.Env == "production" {
		if missing := cfg.Validate(); len(missing) > 0 {
			panic(strings.Join(missing, ", ") + " required in production")
		}
	}

	return cfg
}

// Validate returns the environment variables the selected backend needs
// but that are not set.
func (c *Config) Validate() []string {
	var missing []string
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendRedis:
		if c.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	case BackendDynamoDB:
		if c.AWSRegion == "" {
			missing = append(missing, "AWS_REGION")
		}
		if c.TableName == "" {
			missing = append(missing, "DYNAMODB_TABLE")
		}
	}
	return missing
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}
