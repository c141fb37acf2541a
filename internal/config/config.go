package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DatabaseConfig holds the relational-store connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
	// MonitorInterval is the period between pool-stats health checks.
	MonitorInterval time.Duration
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// SpoolConfig holds the options spec.md §6 names.
type SpoolConfig struct {
	// HouseKeeperInterval is the period of the maintenance tick.
	HouseKeeperInterval time.Duration
	// PurgeAge is the horizon, in seconds, for deleting terminal-state rows.
	PurgeAge int64
	// Capacity is the soft row cap enforced for priorities >= 2.
	Capacity int
	// BackendLogDataEnabled disables the housekeeper's extra checkpoint
	// when true (the backend is assumed to auto-flush write-ahead data).
	BackendLogDataEnabled bool
}

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig
	Log      LogConfig
	Spool    SpoolConfig
}

// Load reads configuration from environment variables, optionally
// seeded from a ".env" file in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getEnv("SPOOL_DB_HOST", "localhost"),
			Port:            getEnv("SPOOL_DB_PORT", "5432"),
			User:            getEnv("SPOOL_DB_USER", "spool"),
			Password:        getEnv("SPOOL_DB_PASSWORD", "spool"),
			DBName:          getEnv("SPOOL_DB_NAME", "spool"),
			SSLMode:         getEnv("SPOOL_DB_SSL_MODE", "disable"),
			MaxConns:        getEnvAsInt("SPOOL_DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("SPOOL_DB_MIN_CONNS", 1),
			MonitorInterval: getEnvAsDuration("SPOOL_DB_MONITOR_INTERVAL", time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("SPOOL_LOG_LEVEL", "info"),
			Format: getEnv("SPOOL_LOG_FORMAT", "json"),
		},
		Spool: SpoolConfig{
			HouseKeeperInterval:   getEnvAsDuration("SPOOL_HOUSEKEEPER_INTERVAL", 5*time.Minute),
			PurgeAge:              int64(getEnvAsInt("SPOOL_PURGE_AGE_SECONDS", 24*60*60)),
			Capacity:              getEnvAsInt("SPOOL_CAPACITY", 10000),
			BackendLogDataEnabled: getEnvAsBool("SPOOL_BACKEND_LOG_DATA_ENABLED", true),
		},
	}

	if cfg.Database.User == "" {
		return nil, fmt.Errorf("SPOOL_DB_USER is required")
	}
	if cfg.Database.DBName == "" {
		return nil, fmt.Errorf("SPOOL_DB_NAME is required")
	}
	if cfg.Spool.Capacity <= 0 {
		return nil, fmt.Errorf("SPOOL_CAPACITY must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
