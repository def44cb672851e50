package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration shared by the api and worker binaries
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Relay    RelayConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP and auth configuration for the api
type ServerConfig struct {
	Addr             string
	JWTPublicKeyPath string
	JWTIssuer        string
	NotifyTimeout    time.Duration
}

// DatabaseConfig holds Postgres configuration
type DatabaseConfig struct {
	URL            string
	LockTimeout    time.Duration
	MigrateOnStart bool
}

// RabbitMQConfig names the broker and its topology
type RabbitMQConfig struct {
	URL                   string
	EventsExchange        string
	NotificationsExchange string
	NotificationsQueue    string
}

// RedisConfig configures the notification inbox. An empty URL disables it.
type RedisConfig struct {
	URL         string
	InboxMaxLen int64
	DedupeTTL   time.Duration
}

// RelayConfig tunes the outbox relay
type RelayConfig struct {
	BatchSize int
	Interval  time.Duration
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level string // debug, info, warn, error
}

// Load reads .env.local and .env (when present) and then the environment
func Load() (*Config, error) {
	// local overrides .env; real environment variables win over both
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:             getEnv("HTTP_ADDR", ":8080"),
			JWTPublicKeyPath: getEnv("JWT_PUBLIC_KEY_PATH", ""),
			JWTIssuer:        getEnv("JWT_ISSUER", "bazaar-auth"),
			NotifyTimeout:    getEnvAsDuration("NOTIFY_TIMEOUT", "2s"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("MARKET_DB_URL", ""),
			LockTimeout:    getEnvAsDuration("DB_LOCK_TIMEOUT", "3s"),
			MigrateOnStart: getEnvAsBool("MIGRATE_ON_START", false),
		},
		RabbitMQ: RabbitMQConfig{
			URL:                   getEnv("RABBITMQ_URL", ""),
			EventsExchange:        getEnv("EVENTS_EXCHANGE", "market.events"),
			NotificationsExchange: getEnv("NOTIFICATIONS_EXCHANGE", "market.notifications"),
			NotificationsQueue:    getEnv("NOTIFICATIONS_QUEUE", "notification_inbox"),
		},
		Redis: RedisConfig{
			URL:         getEnv("REDIS_URL", ""),
			InboxMaxLen: int64(getEnvAsInt("INBOX_MAX_LEN", 500)),
			DedupeTTL:   getEnvAsDuration("INBOX_DEDUPE_TTL", "24h"),
		},
		Relay: RelayConfig{
			BatchSize: getEnvAsInt("RELAY_BATCH_SIZE", 10),
			Interval:  getEnvAsDuration("RELAY_INTERVAL", "1s"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings both binaries need
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("MARKET_DB_URL is not set")
	}
	if c.RabbitMQ.URL == "" {
		return errors.New("RABBITMQ_URL is not set")
	}
	if c.Database.LockTimeout <= 0 {
		return errors.New("lock timeout must be positive")
	}
	if c.Relay.BatchSize <= 0 {
		return fmt.Errorf("relay batch size must be positive, got %d", c.Relay.BatchSize)
	}
	if c.Redis.InboxMaxLen <= 0 {
		return fmt.Errorf("inbox max length must be positive, got %d", c.Redis.InboxMaxLen)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	return nil
}

// ValidateAPI checks the settings only the api needs
func (c *Config) ValidateAPI() error {
	if c.Server.JWTPublicKeyPath == "" {
		return errors.New("JWT_PUBLIC_KEY_PATH is not set")
	}
	return nil
}

// ValidateWorker checks the settings only the worker needs
func (c *Config) ValidateWorker() error {
	if c.Redis.URL == "" {
		return errors.New("REDIS_URL is not set")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, err = time.ParseDuration(defaultValue)
		if err != nil {
			return 0
		}
	}
	return duration
}
