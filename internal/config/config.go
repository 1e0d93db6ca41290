// Package config handles loading and validation of ledgerlens.yaml project configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/ledgerlens/pkg/types"
)

// FileName is the project configuration file looked up in the working directory.
const FileName = "ledgerlens.yaml"

// Defaults applied to unset engine and log fields.
const (
	DefaultChurnThresholdDays = 90
	DefaultMinAffinitySupport = 1
	DefaultLockTTL            = 15 * time.Minute
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads ledgerlens.yaml from dir. A .env file next to it is loaded
// first; variables already set in the environment win.
func Load(dir string) (*types.ProjectConfig, error) {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads and validates the configuration at path, then applies
// LEDGERLENS_* environment overrides and defaults.
func LoadFile(path string) (*types.ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("environment override: %w", err)
	}
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset engine and log fields.
func ApplyDefaults(cfg *types.ProjectConfig) {
	if cfg.Engine.ChurnThresholdDays == 0 {
		cfg.Engine.ChurnThresholdDays = DefaultChurnThresholdDays
	}
	if cfg.Engine.MinAffinitySupport == 0 {
		cfg.Engine.MinAffinitySupport = DefaultMinAffinitySupport
	}
	if cfg.Engine.LockTTL == "" {
		cfg.Engine.LockTTL = DefaultLockTTL.String()
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = runtime.NumCPU()
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// Validate checks struct tags plus the fields that need parsing.
func Validate(cfg *types.ProjectConfig) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q check", fe.Namespace(), fe.Tag())
		}
		return err
	}
	if _, err := EvaluatedAt(cfg); err != nil {
		return err
	}
	if _, err := LockTTL(cfg); err != nil {
		return err
	}
	return nil
}

// EvaluatedAt returns the configured evaluation instant, or the zero time
// when none is set.
func EvaluatedAt(cfg *types.ProjectConfig) (time.Time, error) {
	if cfg.Engine.EvaluatedAt == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, cfg.Engine.EvaluatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("engine.evaluatedAt must be RFC 3339: %w", err)
	}
	return ts.UTC(), nil
}

// LockTTL returns the run lock TTL.
func LockTTL(cfg *types.ProjectConfig) (time.Duration, error) {
	if cfg.Engine.LockTTL == "" {
		return DefaultLockTTL, nil
	}
	d, err := time.ParseDuration(cfg.Engine.LockTTL)
	if err != nil {
		return 0, fmt.Errorf("engine.lockTtl: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("engine.lockTtl must be positive, got %s", d)
	}
	return d, nil
}

// applyEnv overrides config fields from LEDGERLENS_* variables.
func applyEnv(cfg *types.ProjectConfig) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("LEDGERLENS_PROVIDER", &cfg.Provider)
	if v, ok := os.LookupEnv("LEDGERLENS_POSTGRES_DSN"); ok {
		if cfg.Postgres == nil {
			cfg.Postgres = &types.PostgresConfig{}
		}
		cfg.Postgres.DSN = v
	}
	if v, ok := os.LookupEnv("LEDGERLENS_REDIS_ADDR"); ok {
		if cfg.Redis == nil {
			cfg.Redis = &types.RedisConfig{}
		}
		cfg.Redis.Addr = v
	}
	if cfg.Redis != nil {
		str("LEDGERLENS_REDIS_PASSWORD", &cfg.Redis.Password)
	}
	str("LEDGERLENS_EVALUATED_AT", &cfg.Engine.EvaluatedAt)
	str("LEDGERLENS_LOCK_TTL", &cfg.Engine.LockTTL)
	str("LEDGERLENS_LOG_LEVEL", &cfg.Log.Level)
	str("LEDGERLENS_LOG_FORMAT", &cfg.Log.Format)
	str("LEDGERLENS_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	str("LEDGERLENS_EXPORT_DIR", &cfg.Export.Dir)
	str("LEDGERLENS_EXPORT_S3_BUCKET", &cfg.Export.S3Bucket)

	if err := num("LEDGERLENS_CHURN_THRESHOLD_DAYS", &cfg.Engine.ChurnThresholdDays); err != nil {
		return err
	}
	if err := num("LEDGERLENS_WORKERS", &cfg.Engine.Workers); err != nil {
		return err
	}
	return num("LEDGERLENS_MIN_AFFINITY_SUPPORT", &cfg.Engine.MinAffinitySupport)
}
