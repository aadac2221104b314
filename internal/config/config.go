package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/example/gl-core/internal/ledger"
	"github.com/example/gl-core/internal/store"
)

// Config holds the application configuration.
type Config struct {
	Environment     string
	DBDriver        string
	DatabaseURL     string
	GRPCAddr        string
	LogLevel        string
	FiscalYearStart string
	CashPrefixes    []string
	DefaultCurrency string
	AuditSink       string

	// TLS for the gRPC listener. A client CA turns on mutual TLS.
	TLSCertFile     string
	TLSKeyFile      string
	TLSClientCAFile string

	// Per-tenant rate limiting is enabled by REDIS_URL.
	RedisURL           string
	RateLimitCapacity  string
	RateLimitPerSecond string

	// OpsAddr serves health probes and audit verification. Empty disables it.
	OpsAddr string
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; variables already set in the
// environment win.
func Load() (*Config, error) {
	if err := LoadDotEnv(""); err != nil {
		return nil, err
	}
	return LoadFromEnv()
}

// LoadDotEnv reads path into the environment without overriding variables
// that are already set. An empty path reads an optional .env file.
func LoadDotEnv(path string) error {
	if path == "" {
		_ = godotenv.Load()
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv loads and validates configuration from the process environment.
func LoadFromEnv() (*Config, error) {
	cfg := FromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv reads the environment and applies defaults without validating.
func FromEnv() *Config {
	return &Config{
		Environment:     os.Getenv("APP_ENV"),
		DBDriver:        getEnvOrDefault("DB_DRIVER", string(store.Postgres)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		GRPCAddr:        getEnvOrDefault("GRPC_ADDR", ":50051"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		FiscalYearStart: getEnvOrDefault("FISCAL_YEAR_START", "01-01"),
		CashPrefixes:    splitList(os.Getenv("CASH_ACCOUNT_PREFIXES")),
		DefaultCurrency: getEnvOrDefault("DEFAULT_CURRENCY", ledger.DefaultCurrency),
		AuditSink:       os.Getenv("AUDIT_SINK"),

		TLSCertFile:     os.Getenv("GRPC_TLS_CERT"),
		TLSKeyFile:      os.Getenv("GRPC_TLS_KEY"),
		TLSClientCAFile: os.Getenv("GRPC_TLS_CLIENT_CA"),

		RedisURL:           os.Getenv("REDIS_URL"),
		RateLimitCapacity:  getEnvOrDefault("RATE_LIMIT_CAPACITY", "100"),
		RateLimitPerSecond: getEnvOrDefault("RATE_LIMIT_PER_SECOND", "50"),

		OpsAddr: os.Getenv("OPS_ADDR"),
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	// SQLite falls back to an in-memory database without a path.
	if c.DatabaseURL == "" && c.DBDriver != string(store.SQLite) {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.Environment == "production" || c.Environment == "staging" {
		if c.AuditSink == "" {
			return errors.New("missing required environment variables for " + c.Environment + ": AUDIT_SINK")
		}
	}

	if _, err := store.ParseDialect(c.DBDriver); err != nil {
		return fmt.Errorf("DB_DRIVER: %w", err)
	}
	if _, err := ledger.ParseMonthDay(c.FiscalYearStart); err != nil {
		return fmt.Errorf("FISCAL_YEAR_START: %w", err)
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3 letter code, got %q", c.DefaultCurrency)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("GRPC_TLS_CERT and GRPC_TLS_KEY must be set together")
	}
	if c.TLSClientCAFile != "" && c.TLSCertFile == "" {
		return errors.New("GRPC_TLS_CLIENT_CA requires GRPC_TLS_CERT and GRPC_TLS_KEY")
	}

	if c.RedisURL != "" {
		if _, _, err := c.parseRateLimit(); err != nil {
			return err
		}
	}

	return nil
}

// RateLimit returns the token bucket capacity and refill rate.
func (c *Config) RateLimit() (capacity int, perSecond float64) {
	capacity, perSecond, _ = c.parseRateLimit()
	return capacity, perSecond
}

func (c *Config) parseRateLimit() (int, float64, error) {
	capacity, err := strconv.Atoi(c.RateLimitCapacity)
	if err != nil || capacity <= 0 {
		return 0, 0, fmt.Errorf("RATE_LIMIT_CAPACITY must be a positive integer, got %q", c.RateLimitCapacity)
	}
	rate, err := strconv.ParseFloat(c.RateLimitPerSecond, 64)
	if err != nil || rate <= 0 {
		return 0, 0, fmt.Errorf("RATE_LIMIT_PER_SECOND must be a positive number, got %q", c.RateLimitPerSecond)
	}
	return capacity, rate, nil
}

// Dialect returns the configured storage engine.
func (c *Config) Dialect() store.Dialect {
	d, _ := store.ParseDialect(c.DBDriver)
	return d
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LedgerOptions converts the ledger related settings. Logger and Auditor are
// left for the caller.
func (c *Config) LedgerOptions() ledger.Options {
	fy, _ := ledger.ParseMonthDay(c.FiscalYearStart)
	return ledger.Options{
		FiscalYearStart: fy,
		CashPrefixes:    c.CashPrefixes,
		DefaultCurrency: strings.ToUpper(c.DefaultCurrency),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
