// Package loader handles configuration file loading, validation, and
// application.
//
// This package is responsible for:
//   - Loading YAML configuration files
//   - Expanding environment variables
//   - Validating every section
//   - Converting sections into component options
//   - Applying declared monitors to the provisioning database
package loader

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/constants"
	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/logging"
	"github.com/xtxerr/nodepulse/internal/netdata"
	"github.com/xtxerr/nodepulse/internal/storage/ring"
	"github.com/xtxerr/nodepulse/internal/validation"
)

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file. ${VAR} references are expanded
// from the environment before parsing; unset keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration against registry.
func Validate(cfg *Config, registry *charts.Registry) error {
	errs := errors.NewValidationErrors()

	// Server
	if cfg.Server.Listen == "" {
		errs.AddField("server.listen", "cannot be empty")
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		errs.AddField("server.max_body_bytes", "must be positive")
	}
	if cfg.Server.RequestTimeout <= 0 {
		errs.AddField("server.request_timeout", "must be positive")
	}
	if cfg.Server.RejectLimit < 0 {
		errs.AddField("server.reject_limit", "cannot be negative")
	}
	if cfg.Server.RejectLimit > 0 && cfg.Server.RejectWindow <= 0 {
		errs.AddField("server.reject_window", "must be positive when reject_limit is set")
	}

	// Log
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs.AddField("log.level", err.Error())
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs.AddField("log.format", `must be "text" or "json"`)
	}

	// Stores
	if cfg.Cache.Addr == "" {
		errs.AddField("cache.addr", "cannot be empty")
	}
	if cfg.Cache.PoolSize < 0 {
		errs.AddField("cache.pool_size", "cannot be negative")
	}
	if cfg.Metastore.DSN == "" {
		errs.AddField("metastore.dsn", "cannot be empty")
	}

	// Ingestion
	if cfg.Ingestion.SampleInterval <= 0 {
		errs.AddField("ingestion.sample_interval", "must be positive")
	}
	if cfg.Ingestion.WriteConcurrency < 1 {
		errs.AddField("ingestion.write_concurrency", "must be at least 1")
	}
	if !slices.Contains(constants.ValidCompressions, string(cfg.Snapshot.Compression)) {
		errs.AddField("snapshot.compression", fmt.Sprintf("unknown codec %q", cfg.Snapshot.Compression))
	}

	// Netdata
	if len(cfg.Netdata.Contexts) > 0 {
		if _, err := netdata.NewRules(cfg.Netdata.Contexts); err != nil {
			errs.AddField("netdata.contexts", err.Error())
		}
	}

	// Monitors
	seen := make(map[[2]string]bool)
	for i, m := range cfg.Monitors {
		field := fmt.Sprintf("monitors[%d]", i)
		if err := validation.ValidateKeyPart("hostname", m.Hostname); err != nil {
			errs.AddField(field+".hostname", err.Error())
		}
		if err := validation.ValidateKeyPart("identity", m.Identity); err != nil {
			errs.AddField(field+".identity", err.Error())
		}
		if err := validation.ValidateRetention(m.RetentionHours); err != nil {
			errs.AddField(field+".retention_hours", err.Error())
		} else if ring.Capacity(m.RetentionHours, cfg.Ingestion.SampleInterval.Duration()) < 1 {
			errs.AddField(field+".retention_hours", "is shorter than one sample interval")
		}
		if _, err := registry.Encode(m.Charts...); err != nil {
			errs.AddField(field+".charts", err.Error())
		}
		key := [2]string{m.Hostname, m.Identity}
		if seen[key] {
			errs.AddField(field, fmt.Sprintf("duplicate monitor %s@%s", m.Hostname, m.Identity))
		}
		seen[key] = true
	}

	return errs.Err()
}

// =============================================================================
// Conversion
// =============================================================================

// Rules returns the context rules: the configured table, or the built-in
// one when none is configured.
func (c *Config) Rules() (*netdata.Rules, error) {
	if len(c.Netdata.Contexts) == 0 {
		return netdata.DefaultRules(), nil
	}
	return netdata.NewRules(c.Netdata.Contexts)
}

// RingOptions returns the ring store options.
func (c *Config) RingOptions() ring.Options {
	return ring.Options{
		SampleInterval:   c.Ingestion.SampleInterval.Duration(),
		WriteConcurrency: c.Ingestion.WriteConcurrency,
	}
}

// LogLevel returns the parsed log level, info when unparseable.
func (c *Config) LogLevel() slog.Level {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// JSONLogs reports whether logs are JSON formatted.
func (c *Config) JSONLogs() bool {
	return c.Log.Format == "json"
}
