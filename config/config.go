// Package config loads engine budgets, input limits and logging settings
// from defaults, an optional YAML file, an optional .env file and the
// environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/wudi/pdfengine/governor"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/validation"
)

// EnvPrefix starts every environment variable the loader reads.
const EnvPrefix = "PDFENGINE_"

type Config struct {
	Limits        LimitsConfig             `yaml:"limits"`
	Timeouts      map[string]time.Duration `yaml:"timeouts"`
	Thresholds    ThresholdsConfig         `yaml:"thresholds"`
	Observability ObservabilityConfig      `yaml:"observability"`
}

type LimitsConfig struct {
	// MaxMemory is the byte ceiling memory checks compare against. Zero
	// uses the Go runtime memory limit.
	MaxMemory  int64                        `yaml:"max_memory"`
	Operations map[string]validation.Limits `yaml:"operations"`
}

// ThresholdsConfig holds the memory usage fractions checked before an
// operation starts and between its expensive steps.
type ThresholdsConfig struct {
	Start    float64 `yaml:"start"`
	Midpoint float64 `yaml:"midpoint"`
}

type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Operations lists the operation names that have their own budget.
var Operations = []string{"merge", "split", "rotate", "watermark", "compress", "convert"}

// Default returns the stock configuration.
func Default() *Config {
	cfg := &Config{
		Limits:     LimitsConfig{Operations: make(map[string]validation.Limits)},
		Timeouts:   make(map[string]time.Duration),
		Thresholds: ThresholdsConfig{Start: governor.DefaultStartThreshold, Midpoint: governor.DefaultMidpointThreshold},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			ServiceName: "pdfengine",
		},
	}
	for _, op := range validation.Operations() {
		cfg.Limits.Operations[op] = validation.DefaultLimits(op)
	}
	for _, op := range Operations {
		cfg.Timeouts[op] = governor.DefaultBudget(op).Timeout
	}
	return cfg
}

// Load reads path when it is non-empty, then the given .env files (a
// missing file is skipped), then PDFENGINE_* variables, and validates the
// result. Variables already set in the environment win over .env entries.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(EnvPrefix + "MAX_MEMORY"); v != "" {
		n, err := ParseSize(v)
		if err != nil {
			return fmt.Errorf("%sMAX_MEMORY: %w", EnvPrefix, err)
		}
		cfg.Limits.MaxMemory = n
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
	for _, op := range Operations {
		key := EnvPrefix + "TIMEOUT_" + strings.ToUpper(op)
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		cfg.Timeouts[op] = d
	}
	return nil
}

// ParseSize reads a byte count such as "1048576", "512MB", "1.5 kb" or
// "2GiB". Units are binary.
func ParseSize(s string) (int64, error) {
	n, err := units.RAMInBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Limits.MaxMemory < 0 {
		return fmt.Errorf("max_memory must not be negative")
	}
	for op, l := range c.Limits.Operations {
		if l.MaxFiles < 1 || l.MaxSize < 1 {
			return fmt.Errorf("limits for %s must allow at least one file of one byte", op)
		}
	}
	for op, d := range c.Timeouts {
		if d <= 0 {
			return fmt.Errorf("timeout for %s must be positive", op)
		}
	}
	t := c.Thresholds
	if t.Start <= 0 || t.Start > 1 || t.Midpoint <= 0 || t.Midpoint > 1 {
		return fmt.Errorf("thresholds must be in (0, 1]")
	}
	if t.Start > t.Midpoint {
		return fmt.Errorf("start threshold %.2f is above midpoint threshold %.2f", t.Start, t.Midpoint)
	}
	switch strings.ToLower(c.Observability.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Observability.LogFormat)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Observability.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
	}
	return nil
}

// Budget returns the governor budget of op.
func (c *Config) Budget(op string) governor.Budget {
	b := governor.DefaultBudget(op)
	if d, ok := c.Timeouts[op]; ok {
		b.Timeout = d
	}
	b.Start, b.Midpoint = c.Thresholds.Start, c.Thresholds.Midpoint
	return b
}

// LimitsFor returns the input limits of op.
func (c *Config) LimitsFor(op string) validation.Limits {
	if l, ok := c.Limits.Operations[op]; ok {
		return l
	}
	return validation.DefaultLimits(op)
}

// Governor builds a governor carrying every configured budget.
func (c *Config) Governor(logger observability.Logger) *governor.Governor {
	opts := []governor.Option{governor.WithLogger(logger)}
	if c.Limits.MaxMemory > 0 {
		opts = append(opts, governor.WithSampler(governor.RuntimeSampler{Limit: uint64(c.Limits.MaxMemory)}))
	}
	for _, op := range Operations {
		opts = append(opts, governor.WithBudget(op, c.Budget(op)))
	}
	return governor.New(opts...)
}

// Logger builds the zerolog-backed logger described by the observability
// section.
func (c *Config) Logger() observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:       c.Observability.LogLevel,
		Format:      c.Observability.LogFormat,
		ServiceName: c.Observability.ServiceName,
	})
}
