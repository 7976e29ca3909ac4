// Package config provides configuration management for the gem ledger service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// DefaultSuperAdminID is always treated as an administrator
const DefaultSuperAdminID int64 = 929198867

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Logging   LoggingConfig
	Telegram  TelegramConfig
	Admin     AdminConfig
	Rewards   RewardsConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection string used by pgx and golang-migrate
func (p PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User, p.Password, p.Host, p.Port, p.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// StorageConfig selects the repository implementation
type StorageConfig struct {
	Driver         string
	MigrationsPath string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// TelegramConfig holds Bot API settings for the membership gate
type TelegramConfig struct {
	BotToken string
	APIURL   string
	Timeout  time.Duration
	// RPS caps outbound getChatMember calls
	RPS float64
}

// AdminConfig lists telegram ids that receive the ADMIN role
type AdminConfig struct {
	TelegramIDs []int64
}

// IsAdmin reports whether the telegram id is configured as an administrator
func (a AdminConfig) IsAdmin(telegramID int64) bool {
	for _, id := range a.TelegramIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// RewardsConfig holds reward issuance settings
type RewardsConfig struct {
	XPDivisor int64
	// StartTTL bounds how long a dwell start record is kept
	StartTTL time.Duration
}

// RateLimitConfig holds per-account request limits
type RateLimitConfig struct {
	UserRPS   float64
	UserBurst int
	AdminRPS  float64
}

// AuditConfig controls the ledger event sinks
type AuditConfig struct {
	ClickHouseEnabled bool
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "gem_ledger"),
				User:           getEnv("POSTGRES_USER", "ledger"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "gem_ledger"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Storage: StorageConfig{
			Driver:         strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres)),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations/postgres"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Telegram: TelegramConfig{
			BotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
			APIURL:   getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
			Timeout:  getEnvAsDuration("TELEGRAM_TIMEOUT", 5*time.Second),
			RPS:      getEnvAsFloat("TELEGRAM_RPS", 25),
		},
		Admin: AdminConfig{
			TelegramIDs: getEnvAsInt64List("ADMIN_TELEGRAM_IDS", []int64{DefaultSuperAdminID}),
		},
		Rewards: RewardsConfig{
			XPDivisor: int64(getEnvAsInt("REWARD_XP_DIVISOR", 2)),
			StartTTL:  getEnvAsDuration("REWARD_START_TTL", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			UserRPS:   getEnvAsFloat("RATE_LIMIT_USER_RPS", 5),
			UserBurst: getEnvAsInt("RATE_LIMIT_USER_BURST", 10),
			AdminRPS:  getEnvAsFloat("RATE_LIMIT_ADMIN_RPS", 50),
		},
		Audit: AuditConfig{
			ClickHouseEnabled: getEnvAsBool("AUDIT_CLICKHOUSE_ENABLED", false),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Rewards.XPDivisor <= 0 {
		return fmt.Errorf("REWARD_XP_DIVISOR must be positive, got %d", c.Rewards.XPDivisor)
	}
	if c.Rewards.StartTTL <= 0 {
		return fmt.Errorf("REWARD_START_TTL must be positive")
	}
	if c.Telegram.Timeout <= 0 {
		return fmt.Errorf("TELEGRAM_TIMEOUT must be positive")
	}
	if c.RateLimit.UserRPS <= 0 || c.RateLimit.AdminRPS <= 0 || c.RateLimit.UserBurst <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64List parses a comma separated list, skipping malformed entries
func getEnvAsInt64List(key string, defaultValue []int64) []int64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []int64
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
