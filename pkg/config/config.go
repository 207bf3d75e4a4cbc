package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL      string
	RedisPassword string

	// JWT configuration
	JWTSecret string

	// Wallet locking configuration
	LockLeaseTTL      time.Duration // shared-store lease TTL
	LockRetryAttempts int           // lease acquisition attempts
	LockRetryDelay    time.Duration // delay between lease attempts
	AppLockTimeout    time.Duration // in-process pair mutex timeout

	// Transfer engine configuration
	CASRetryAttempts int // optimistic commit retries
	TransferWorkers  int // bounded worker pool size
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),

		LockLeaseTTL:      getEnvAsDuration("LOCK_LEASE_TTL", 60*time.Second),
		LockRetryAttempts: getEnvAsInt("LOCK_RETRY_ATTEMPTS", 20),
		LockRetryDelay:    getEnvAsDuration("LOCK_RETRY_DELAY", 200*time.Millisecond),
		AppLockTimeout:    getEnvAsDuration("APP_LOCK_TIMEOUT", 5*time.Second),

		CASRetryAttempts: getEnvAsInt("CAS_RETRY_ATTEMPTS", 3),
		TransferWorkers:  getEnvAsInt("TRANSFER_WORKERS", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if c.LockRetryAttempts < 1 {
		return fmt.Errorf("LOCK_RETRY_ATTEMPTS must be at least 1")
	}

	if c.CASRetryAttempts < 1 {
		return fmt.Errorf("CAS_RETRY_ATTEMPTS must be at least 1")
	}

	if c.TransferWorkers < 1 {
		return fmt.Errorf("TRANSFER_WORKERS must be at least 1")
	}

	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
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
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
