package engine

import (
	"time"

	"github.com/felixgeelhaar/phaseflow/internal/checkpoint"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/gate"
)

// Config defines how phases are driven
type Config struct {
	// Retry settings
	MaxRetries int `yaml:"max_retries" koanf:"max_retries"`

	// FreshnessWindow bounds the age of a persisted phase before its
	// outcome may be reported
	FreshnessWindow time.Duration `yaml:"freshness_window" koanf:"freshness_window"`

	// LeaseTTL bounds how long a crashed driver blocks other drivers
	LeaseTTL time.Duration `yaml:"lease_ttl" koanf:"lease_ttl"`

	// FileGlobs restricts, per role, which reported files count as output
	FileGlobs map[domain.WorkerRole][]string `yaml:"file_globs" koanf:"file_globs"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries:      2,
		FreshnessWindow: gate.DefaultFreshnessWindow,
		LeaseTTL:        checkpoint.DefaultLeaseTTL,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = d.FreshnessWindow
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = d.LeaseTTL
	}
	return c
}
