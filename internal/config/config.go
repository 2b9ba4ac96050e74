// Package config provides configuration loading for insightd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the inference engine.
type Config struct {
	Logging Logging `koanf:"logging"`
	Storage Storage `koanf:"storage"`
	Engine  Engine  `koanf:"engine"`
	Events  Events  `koanf:"events"`
	Intake  Intake  `koanf:"intake"`
	Metrics Metrics `koanf:"metrics"`
}

// Logging holds structured-logging configuration.
type Logging struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// Storage selects and configures the persistence backend.
type Storage struct {
	// Driver is "memory" or "sqlite".
	Driver string `koanf:"driver"`

	// Path is the SQLite database file. Ignored for the memory driver.
	Path string `koanf:"path"`
}

// Engine holds inference tuning knobs.
type Engine struct {
	// SchemaVersion selects the population-norm schema used for scoring.
	SchemaVersion string `koanf:"schema_version"`

	// StalenessWindow is how long a pattern can go without a new
	// observation before it is marked dormant.
	StalenessWindow Duration `koanf:"staleness_window"`

	// MaxOffset bounds how far apart a trigger event and a response
	// activity may be and still form a pattern candidate.
	MaxOffset Duration `koanf:"max_offset"`

	// ConflictRetries bounds optimistic-concurrency retries on a
	// conflicting pattern or score upsert.
	ConflictRetries int `koanf:"conflict_retries"`

	// RecomputeConcurrency caps parallel per-user recomputes.
	RecomputeConcurrency int `koanf:"recompute_concurrency"`
}

// Events configures the optional NATS event publisher.
type Events struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// Intake configures the batch-file drop directory watcher.
type Intake struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
}

// Metrics configures the Prometheus scrape endpoint exposed by watch mode.
type Metrics struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// NewDefaultConfig returns config with production-ready defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Storage: Storage{
			Driver: "memory",
		},
		Engine: Engine{
			SchemaVersion:        "v1",
			StalenessWindow:      Duration(30 * 24 * time.Hour),
			MaxOffset:            Duration(3 * time.Hour),
			ConflictRetries:      5,
			RecomputeConcurrency: 4,
		},
		Events: Events{
			Enabled: false,
			URL:     "nats://localhost:4222",
		},
		Intake: Intake{
			Enabled: false,
		},
		Metrics: Metrics{
			Enabled: true,
			Addr:    "localhost:9464",
		},
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q (want memory or sqlite)", c.Storage.Driver)
	}

	if c.Engine.SchemaVersion == "" {
		return fmt.Errorf("engine.schema_version cannot be empty")
	}
	if c.Engine.StalenessWindow.Duration() <= 0 {
		return fmt.Errorf("engine.staleness_window must be positive")
	}
	if c.Engine.MaxOffset.Duration() <= 0 {
		return fmt.Errorf("engine.max_offset must be positive")
	}
	if c.Engine.ConflictRetries < 1 {
		return fmt.Errorf("engine.conflict_retries must be at least 1")
	}
	if c.Engine.RecomputeConcurrency < 1 {
		return fmt.Errorf("engine.recompute_concurrency must be at least 1")
	}

	if c.Events.Enabled && c.Events.URL == "" {
		return fmt.Errorf("events.url is required when events are enabled")
	}
	if c.Intake.Enabled && c.Intake.Dir == "" {
		return fmt.Errorf("intake.dir is required when intake is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}
