package loader

import (
	"context"
	"fmt"

	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/logging"
	"github.com/xtxerr/nodepulse/internal/monitor"
)

// MonitorWriter persists monitor configs. *store.Store implements it.
type MonitorWriter interface {
	UpsertMonitor(ctx context.Context, hostname, identity string, cfg monitor.Config) error
}

// Invalidator drops cached configs. *monitor.Cache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context, hostname, identity string) error
}

// ApplyMonitors upserts every declared monitor and drops its cached config
// so the next ingestion event sees the change. It keeps going past a failed
// definition and returns the number applied with the joined errors.
func ApplyMonitors(ctx context.Context, defs []MonitorDefinition, registry *charts.Registry, w MonitorWriter, inv Invalidator) (int, error) {
	logger := logging.Component("loader")

	var errs []error
	applied := 0
	for _, d := range defs {
		cfg, err := d.Config(registry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := w.UpsertMonitor(ctx, d.Hostname, d.Identity, cfg); err != nil {
			errs = append(errs, fmt.Errorf("monitor %s@%s: %w", d.Hostname, d.Identity, err))
			continue
		}
		if inv != nil {
			if err := inv.Invalidate(ctx, d.Hostname, d.Identity); err != nil {
				errs = append(errs, fmt.Errorf("invalidate %s@%s: %w", d.Hostname, d.Identity, err))
				continue
			}
		}
		applied++
		logger.Debug("monitor applied",
			"hostname", d.Hostname,
			"identity", d.Identity,
			"charts", registry.String(cfg.ChartMask))
	}

	if applied > 0 {
		logger.Info("declared monitors applied", "count", applied)
	}
	return applied, errors.Join(errs...)
}

// Config converts the definition into a monitor config.
func (d MonitorDefinition) Config(registry *charts.Registry) (monitor.Config, error) {
	mask, err := registry.Encode(d.Charts...)
	if err != nil {
		return monitor.Config{}, fmt.Errorf("monitor %s@%s: %w", d.Hostname, d.Identity, err)
	}
	return monitor.Config{
		OwnerID:        d.OwnerID,
		RetentionHours: d.RetentionHours,
		ChartMask:      mask,
	}, nil
}
