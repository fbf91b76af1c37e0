package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xtxerr/nodepulse/config"
	"github.com/xtxerr/nodepulse/internal/cachestore"
	"github.com/xtxerr/nodepulse/internal/storage/compress"
	"github.com/xtxerr/nodepulse/internal/storage/export"
	"github.com/xtxerr/nodepulse/internal/store"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for nodepulsed.
//
//	server:     HTTP listener and request limits
//	log:        level and format
//	metastore:  provisioning database (DuckDB)
//	cache:      cache and series store (Redis)
//	ingestion:  ring sizing and write fan-out
//	snapshot:   overview codec
//	export:     Parquet export defaults
//	netdata:    context allow-list and aggregation policies
//	monitors:   declarative provisioning, applied at startup
type Config struct {
	Server    ServerConfig        `yaml:"server"`
	Log       LogConfig           `yaml:"log"`
	Metastore store.Config        `yaml:"metastore"`
	Cache     cachestore.Config   `yaml:"cache"`
	Ingestion IngestionConfig     `yaml:"ingestion"`
	Snapshot  compress.Options    `yaml:"snapshot"`
	Export    export.Options      `yaml:"export"`
	Netdata   NetdataConfig       `yaml:"netdata"`
	Monitors  []MonitorDefinition `yaml:"monitors"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Listen is the HTTP listen address, "host:port" or ":port".
	Listen string `yaml:"listen"`

	// TrustForwardedFor takes the source identity from the first
	// X-Forwarded-For entry instead of the peer address. Enable only behind
	// a proxy that sets the header.
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`

	MaxBodyBytes    ByteSize `yaml:"max_body_bytes"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`

	// RejectLimit blocks an identity after this many unprovisioned pushes
	// within RejectWindow. Zero disables blocking.
	RejectLimit  int      `yaml:"reject_limit"`
	RejectWindow Duration `yaml:"reject_window"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// IngestionConfig configures ring sizing and fan-out.
type IngestionConfig struct {
	SampleInterval   Duration `yaml:"sample_interval"`
	WriteConcurrency int      `yaml:"write_concurrency"`
}

// NetdataConfig overrides the built-in context policy table. An empty map
// keeps the built-in table.
type NetdataConfig struct {
	Contexts map[string]string `yaml:"contexts"`
}

// MonitorDefinition provisions one host.
type MonitorDefinition struct {
	Hostname       string   `yaml:"hostname"`
	Identity       string   `yaml:"identity"`
	OwnerID        int64    `yaml:"owner_id"`
	RetentionHours float64  `yaml:"retention_hours"`
	Charts         []string `yaml:"charts"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          config.DefaultListenAddress,
			MaxBodyBytes:    ByteSize(config.DefaultMaxBodyBytes),
			RequestTimeout:  Duration(config.DefaultRequestTimeout),
			ShutdownTimeout: Duration(config.DefaultShutdownTimeout),
			RejectLimit:     config.DefaultRejectLimit,
			RejectWindow:    Duration(config.DefaultRejectWindow),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metastore: store.DefaultConfig(),
		Cache:     cachestore.DefaultConfig(),
		Ingestion: IngestionConfig{
			SampleInterval:   Duration(config.DefaultSampleInterval),
			WriteConcurrency: config.DefaultWriteConcurrency,
		},
		Snapshot: compress.Options{Compression: compress.CompressionType(config.DefaultSnapshotCompression)},
		Export:   export.DefaultOptions(),
	}
}

// =============================================================================
// Duration and ByteSize
// =============================================================================

// Duration is a time.Duration that unmarshals from "30s" or plain seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// ByteSize is a size in bytes. Supports "4MB", "512KB" or plain bytes.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		var i int64
		if err := unmarshal(&i); err != nil {
			return err
		}
		*b = ByteSize(i)
		return nil
	}
	size, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(size)
	return nil
}

// Longest suffix first so "MB" is not read as "B".
var byteUnits = []struct {
	suffix     string
	multiplier int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

func parseByteSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}

	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			n, err := strconv.ParseInt(strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("parse byte size %q: %w", s, err)
			}
			return n * u.multiplier, nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse byte size %q: %w", s, err)
	}
	return n, nil
}

// Bytes returns the size in bytes.
func (b ByteSize) Bytes() int64 {
	return int64(b)
}
