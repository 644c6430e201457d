package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Strategy names accepted by CAPTURE_STRATEGY.
const (
	StrategyRewrite = "rewrite"
	StrategyReload  = "reload"
)

// Sink names accepted by AUDIT_SINK.
const (
	SinkPostgres = "postgres"
	SinkFile     = "file"
	SinkNone     = "none"
)

type Config struct {
	// Database connection.
	DatabaseURL string

	// Capture behaviour.
	CaptureStrategy string        // "rewrite" (default, falls back to reload) or "reload"
	MetadataTTL     time.Duration // 0 = cached column lists never expire

	// Audit output.
	Sink       string // "postgres" (default), "file", or "none"
	AuditFile  string // path for the file sink
	PolicyFile string // optional path to audit policy YAML

	// Logging.
	LogLevel slog.Level

	// Observability.
	OTelEnabled bool // enable OpenTelemetry tracing and metrics

	// Connection pool.
	PoolMaxConns        int32         // default: 5
	PoolMinConns        int32         // default: 1
	PoolMaxConnLifetime time.Duration // default: 30m
}

// Overrides holds CLI flag values that override environment variables.
// Pointer fields distinguish "not set" from zero values.
type Overrides struct {
	DatabaseURL     *string
	LogLevel        *string
	CaptureStrategy *string
	MetadataTTL     *time.Duration
	Sink            *string
	AuditFile       *string
	PolicyFile      *string
	OTelEnabled     bool

	// Connection pool overrides.
	PoolMaxConns        *int32
	PoolMinConns        *int32
	PoolMaxConnLifetime *time.Duration
}

// Load builds a Config from environment variables, then applies CLI
// overrides, then validates the result.
func Load(overrides Overrides) (*Config, error) {
	cfg := defaults()

	if err := loadEnvVars(cfg); err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaults returns a Config populated with default values.
func defaults() *Config {
	return &Config{
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		CaptureStrategy:     StrategyRewrite,
		Sink:                SinkPostgres,
		PoolMaxConns:        5,
		PoolMinConns:        1,
		PoolMaxConnLifetime: 30 * time.Minute,
	}
}

// loadEnvVars reads all supported environment variables into cfg.
func loadEnvVars(cfg *Config) error {
	if v := os.Getenv("CAPTURE_STRATEGY"); v != "" {
		cfg.CaptureStrategy = v
	}

	if v := os.Getenv("METADATA_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid METADATA_TTL value %q: %w", v, err)
		}
		cfg.MetadataTTL = d
	}

	if v := os.Getenv("AUDIT_SINK"); v != "" {
		cfg.Sink = v
	}
	cfg.AuditFile = os.Getenv("AUDIT_FILE")
	cfg.PolicyFile = os.Getenv("POLICY_FILE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}

	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OTEL_ENABLED value %q: %w", v, err)
		}
		cfg.OTelEnabled = b
	}

	return loadPoolEnvVars(cfg)
}

// loadPoolEnvVars reads connection pool environment variables.
func loadPoolEnvVars(cfg *Config) error {
	if v := os.Getenv("POOL_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid POOL_MAX_CONNS value %q: must be a positive integer", v)
		}
		cfg.PoolMaxConns = int32(n)
	}
	if v := os.Getenv("POOL_MIN_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid POOL_MIN_CONNS value %q: must be a non-negative integer", v)
		}
		cfg.PoolMinConns = int32(n)
	}
	if v := os.Getenv("POOL_MAX_CONN_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_CONN_LIFETIME value %q: %w", v, err)
		}
		cfg.PoolMaxConnLifetime = d
	}
	return nil
}

// applyOverrides applies CLI flag values on top of the env-loaded config.
func applyOverrides(cfg *Config, o Overrides) error {
	if o.DatabaseURL != nil {
		cfg.DatabaseURL = *o.DatabaseURL
	}
	if o.LogLevel != nil {
		level, err := parseLogLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	if o.CaptureStrategy != nil {
		cfg.CaptureStrategy = *o.CaptureStrategy
	}
	if o.MetadataTTL != nil {
		cfg.MetadataTTL = *o.MetadataTTL
	}
	if o.Sink != nil {
		cfg.Sink = *o.Sink
	}
	if o.AuditFile != nil {
		cfg.AuditFile = *o.AuditFile
	}
	if o.PolicyFile != nil {
		cfg.PolicyFile = *o.PolicyFile
	}

	if err := applyPoolOverrides(cfg, o); err != nil {
		return err
	}

	cfg.OTelEnabled = cfg.OTelEnabled || o.OTelEnabled

	return nil
}

// applyPoolOverrides applies connection pool CLI flag overrides.
func applyPoolOverrides(cfg *Config, o Overrides) error {
	if o.PoolMaxConns != nil {
		if *o.PoolMaxConns <= 0 {
			return fmt.Errorf("invalid --pool-max-conns value: must be a positive integer")
		}
		cfg.PoolMaxConns = *o.PoolMaxConns
	}
	if o.PoolMinConns != nil {
		if *o.PoolMinConns < 0 {
			return fmt.Errorf("invalid --pool-min-conns value: must be a non-negative integer")
		}
		cfg.PoolMinConns = *o.PoolMinConns
	}
	if o.PoolMaxConnLifetime != nil {
		cfg.PoolMaxConnLifetime = *o.PoolMaxConnLifetime
	}
	return nil
}

// validate checks cross-field constraints on the final config.
func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required (set via env var or --database-url flag)")
	}

	switch cfg.CaptureStrategy {
	case StrategyRewrite, StrategyReload:
	default:
		return fmt.Errorf("invalid CAPTURE_STRATEGY value %q: must be %q or %q", cfg.CaptureStrategy, StrategyRewrite, StrategyReload)
	}

	switch cfg.Sink {
	case SinkPostgres, SinkFile, SinkNone:
	default:
		return fmt.Errorf("invalid AUDIT_SINK value %q: must be %q, %q, or %q", cfg.Sink, SinkPostgres, SinkFile, SinkNone)
	}

	if cfg.Sink == SinkFile && cfg.AuditFile == "" {
		return fmt.Errorf("AUDIT_FILE is required when AUDIT_SINK is %q", SinkFile)
	}

	if cfg.MetadataTTL < 0 {
		return fmt.Errorf("METADATA_TTL must not be negative")
	}

	if cfg.PoolMinConns > cfg.PoolMaxConns {
		return fmt.Errorf("POOL_MIN_CONNS (%d) must not exceed POOL_MAX_CONNS (%d)", cfg.PoolMinConns, cfg.PoolMaxConns)
	}

	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL value %q: must be debug, info, warn, or error", s)
	}
}
