// Package config loads and validates runtime configuration for the backtest
// engine, with sane built-in defaults and environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the backtest engine.
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Worker      WorkerConfig  `toml:"worker"`
	Retry       RetryConfig   `toml:"retry"`
	Gateway     GatewayConfig `toml:"gateway"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the SurrealDB connection parameters backing the Job
// Store and Dispatch Queue.
type StorageConfig struct {
	Address   string `toml:"address"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// WorkerConfig controls the Worker Pool's degree of parallelism and polling
// behavior.
type WorkerConfig struct {
	Enabled            bool   `toml:"enabled"`
	Count              int    `toml:"count"`
	PollTimeout        string `toml:"poll_timeout"`
	RecoveryDelay      string `toml:"recovery_delay"`
	ShutdownGrace      string `toml:"shutdown_grace"`
	StuckJobThreshold  string `toml:"stuck_job_threshold"`
}

func (c *WorkerConfig) GetPollTimeout() time.Duration {
	return parseDurationOr(c.PollTimeout, time.Second)
}

func (c *WorkerConfig) GetRecoveryDelay() time.Duration {
	return parseDurationOr(c.RecoveryDelay, time.Second)
}

func (c *WorkerConfig) GetShutdownGrace() time.Duration {
	return parseDurationOr(c.ShutdownGrace, 60*time.Second)
}

func (c *WorkerConfig) GetStuckJobThreshold() time.Duration {
	return parseDurationOr(c.StuckJobThreshold, 5*time.Minute)
}

// RetryConfig encodes the retry policy as pure data: max attempts and the
// ordered backoff table.
type RetryConfig struct {
	MaxAttempts  int   `toml:"max_attempts"`
	BackoffTable []int `toml:"backoff_table_seconds"`
}

// BackoffSeconds returns the backoff delay for the given 1-based attempt
// index, clamping any index beyond the table to its last entry.
func (c *RetryConfig) BackoffSeconds(attempt int) int {
	if len(c.BackoffTable) == 0 {
		return 0
	}
	if attempt < 1 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(c.BackoffTable) {
		idx = len(c.BackoffTable) - 1
	}
	return c.BackoffTable[idx]
}

// GatewayConfig controls the Market-Data Gateway's cache and missing-data
// deployment policy.
type GatewayConfig struct {
	CacheTTL          string `toml:"cache_ttl"`
	RateLimitPerSec   int    `toml:"rate_limit_per_sec"`
	MissingDataPolicy string `toml:"missing_data_policy"` // "empty" or "synthetic"
}

func (c *GatewayConfig) GetCacheTTL() time.Duration {
	return parseDurationOr(c.CacheTTL, 10*time.Minute)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Default returns a Config with sensible defaults so the binary runs with
// zero configuration.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://127.0.0.1:8000",
			Username:  "root",
			Password:  "root",
			Namespace: "backtest",
			Database:  "backtest",
		},
		Worker: WorkerConfig{
			Enabled:           true,
			Count:             3,
			PollTimeout:       "1s",
			RecoveryDelay:     "1s",
			ShutdownGrace:     "60s",
			StuckJobThreshold: "5m",
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BackoffTable: []int{1, 3, 5},
		},
		Gateway: GatewayConfig{
			CacheTTL:          "10m",
			RateLimitPerSec:   10,
			MissingDataPolicy: "empty",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from TOML files, merging them in order (later
// files override earlier ones), then applies environment-variable overrides.
// Missing files are skipped rather than treated as an error.
func Load(paths ...string) (*Config, error) {
	cfg := Default()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BACKTEST_ENV"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("BACKTEST_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("BACKTEST_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("BACKTEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BACKTEST_STORAGE_ADDRESS"); v != "" {
		cfg.Storage.Address = v
	}
	if v := os.Getenv("BACKTEST_STORAGE_USERNAME"); v != "" {
		cfg.Storage.Username = v
	}
	if v := os.Getenv("BACKTEST_STORAGE_PASSWORD"); v != "" {
		cfg.Storage.Password = v
	}
	if v := os.Getenv("BACKTEST_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Count = n
		}
	}
	if v := os.Getenv("BACKTEST_WORKER_ENABLED"); v != "" {
		cfg.Worker.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("BACKTEST_GATEWAY_MISSING_DATA_POLICY"); v != "" {
		cfg.Gateway.MissingDataPolicy = v
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
