// Package config loads phaseflow settings from .phaseflow/config.yaml
// with PHASEFLOW_* environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/engine"
	"github.com/felixgeelhaar/phaseflow/internal/gate"
	"github.com/felixgeelhaar/phaseflow/internal/log"
	"github.com/felixgeelhaar/phaseflow/internal/telemetry"
)

// State backends
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// DefaultWorkerTimeout bounds one invocation of a command worker
const DefaultWorkerTimeout = 10 * time.Minute

// Config is the complete phaseflow configuration
type Config struct {
	State     StateConfig             `koanf:"state" yaml:"state"`
	Engine    EngineConfig            `koanf:"engine" yaml:"engine"`
	Workers   map[string]WorkerConfig `koanf:"workers" yaml:"workers"`
	UXPlan    UXPlanConfig            `koanf:"uxplan" yaml:"uxplan"`
	Log       LogConfig               `koanf:"log" yaml:"log"`
	Telemetry TelemetryConfig         `koanf:"telemetry" yaml:"telemetry"`
	Metrics   MetricsConfig           `koanf:"metrics" yaml:"metrics"`
}

// StateConfig selects where workflow states are persisted
type StateConfig struct {
	Backend string   `koanf:"backend" yaml:"backend"`
	Dir     string   `koanf:"dir" yaml:"dir"`
	S3      S3Config `koanf:"s3" yaml:"s3"`
}

// S3Config locates the bucket used by the s3 backend
type S3Config struct {
	Bucket string `koanf:"bucket" yaml:"bucket"`
	Prefix string `koanf:"prefix" yaml:"prefix"`
	Region string `koanf:"region" yaml:"region"`
}

// EngineConfig tunes retries, freshness and leases
type EngineConfig struct {
	MaxRetries      int           `koanf:"max_retries" yaml:"max_retries"`
	FreshnessWindow time.Duration `koanf:"freshness_window" yaml:"freshness_window"`
	LeaseTTL        time.Duration `koanf:"lease_ttl" yaml:"lease_ttl"`
}

// WorkerConfig describes the external command serving one role
type WorkerConfig struct {
	Command   []string      `koanf:"command" yaml:"command"`
	Timeout   time.Duration `koanf:"timeout" yaml:"timeout"`
	FileGlobs []string      `koanf:"file_globs" yaml:"file_globs"`
}

// UXPlanConfig lists where page and UX plans are looked up. Empty
// means uxplan.DefaultPatterns.
type UXPlanConfig struct {
	Patterns []string `koanf:"patterns" yaml:"patterns"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	Enabled    bool    `koanf:"enabled" yaml:"enabled"`
	Endpoint   string  `koanf:"endpoint" yaml:"endpoint"`
	SampleRate float64 `koanf:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Textfile string `koanf:"textfile" yaml:"textfile"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		State: StateConfig{
			Backend: BackendLocal,
			Dir:     ".phaseflow",
		},
		Engine: EngineConfig{
			MaxRetries:      2,
			FreshnessWindow: gate.DefaultFreshnessWindow,
			LeaseTTL:        checkpoint.DefaultLeaseTTL,
		},
		Workers: map[string]WorkerConfig{},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{SampleRate: 1.0},
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	switch c.State.Backend {
	case BackendLocal:
		if c.State.Dir == "" {
			return fmt.Errorf("state.dir is required for the local backend")
		}
	case BackendS3:
		if c.State.S3.Bucket == "" {
			return fmt.Errorf("state.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown state.backend %q (expected local or s3)", c.State.Backend)
	}

	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}
	if c.Engine.FreshnessWindow <= 0 {
		return fmt.Errorf("engine.freshness_window must be positive")
	}
	if c.Engine.LeaseTTL <= 0 {
		return fmt.Errorf("engine.lease_ttl must be positive")
	}

	for name, w := range c.Workers {
		if err := domain.WorkerRole(name).Validate(); err != nil {
			return fmt.Errorf("workers.%s: %w", name, err)
		}
		if len(w.Command) == 0 {
			return fmt.Errorf("workers.%s.command is required", name)
		}
		if w.Timeout < 0 {
			return fmt.Errorf("workers.%s.timeout must not be negative", name)
		}
	}

	if r := c.Telemetry.SampleRate; r < 0 || r > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %v", r)
	}
	return nil
}

// EngineSettings converts the engine and worker sections into the
// engine's Config
func (c *Config) EngineSettings() engine.Config {
	cfg := engine.Config{
		MaxRetries:      c.Engine.MaxRetries,
		FreshnessWindow: c.Engine.FreshnessWindow,
		LeaseTTL:        c.Engine.LeaseTTL,
	}
	for name, w := range c.Workers {
		if len(w.FileGlobs) == 0 {
			continue
		}
		if cfg.FileGlobs == nil {
			cfg.FileGlobs = make(map[domain.WorkerRole][]string)
		}
		cfg.FileGlobs[domain.WorkerRole(name)] = append([]string(nil), w.FileGlobs...)
	}
	return cfg
}

// LogSettings converts the log section into a logger Config
func (c *Config) LogSettings() log.Config {
	return log.FromStrings(c.Log.Level, c.Log.Format)
}

// TelemetrySettings converts the telemetry section for a service version
func (c *Config) TelemetrySettings(version string) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Enabled = c.Telemetry.Enabled
	cfg.Endpoint = c.Telemetry.Endpoint
	cfg.SampleRate = c.Telemetry.SampleRate
	return cfg
}

// WorkerTimeout returns the configured timeout for a role or the default
func (w WorkerConfig) WorkerTimeout() time.Duration {
	if w.Timeout > 0 {
		return w.Timeout
	}
	return DefaultWorkerTimeout
}
