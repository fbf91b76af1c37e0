// Package monitor resolves per-host monitor configs through the Cache Store,
// falling back to the Config Store on a miss.
package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/constants"
)

// Config is the provisioning record of one (hostname, identity) pair.
type Config struct {
	OwnerID        int64       `json:"user_id"`
	RetentionHours float64     `json:"chart_hours"`
	ChartMask      charts.Mask `json:"charts"`
}

// RetentionSeconds returns the retention window in whole seconds.
func (c *Config) RetentionSeconds() int64 {
	return int64(c.RetentionHours * 3600)
}

// RetentionTTL returns a retention window in hours as an expiry truncated
// to whole seconds.
func RetentionTTL(retentionHours float64) time.Duration {
	return time.Duration(int64(retentionHours*3600)) * time.Second
}

// Provisioned reports whether the config allows ingestion.
func (c *Config) Provisioned() bool {
	return c != nil && c.RetentionHours > 0
}

// Finder looks up authoritative monitor configs. A missing record is
// returned as nil, nil.
type Finder interface {
	FindMonitor(ctx context.Context, hostname, identity string) (*Config, error)
}

// Key returns the Cache Store key for a config.
func Key(hostname, identity string) string {
	return strings.Join([]string{constants.KeyPrefixConfig, identity, hostname}, constants.KeySeparator)
}

func encode(c *Config) ([]byte, error) {
	return json.Marshal(c)
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
