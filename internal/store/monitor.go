package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/monitor"
)

const storeName = "config store"

// Monitor is a provisioning row.
type Monitor struct {
	Hostname string
	Identity string
	monitor.Config
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FindMonitor returns the config for (hostname, identity), or nil, nil when
// the host is not provisioned. Database failures are StoreUnavailable.
func (s *Store) FindMonitor(ctx context.Context, hostname, identity string) (*monitor.Config, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var cfg monitor.Config
	var mask int64
	err := s.db.QueryRowContext(ctx, `
		SELECT owner_id, retention_hours, chart_mask
		FROM monitors WHERE hostname = ? AND identity = ?
	`, hostname, identity).Scan(&cfg.OwnerID, &cfg.RetentionHours, &mask)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StoreUnavailable(storeName, err)
	}

	cfg.ChartMask = charts.Mask(uint64(mask))
	return &cfg, nil
}

// UpsertMonitor creates or replaces the config for (hostname, identity).
func (s *Store) UpsertMonitor(ctx context.Context, hostname, identity string, cfg monitor.Config) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monitors (hostname, identity, owner_id, retention_hours, chart_mask, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (hostname, identity) DO UPDATE SET
			owner_id = excluded.owner_id,
			retention_hours = excluded.retention_hours,
			chart_mask = excluded.chart_mask,
			updated_at = excluded.updated_at
	`, hostname, identity, cfg.OwnerID, cfg.RetentionHours, int64(cfg.ChartMask), now, now)

	if err != nil {
		return errors.StoreUnavailable(storeName, errors.Wrap(err, "upsert monitor"))
	}
	return nil
}

// DeleteMonitor removes the config for (hostname, identity).
func (s *Store) DeleteMonitor(ctx context.Context, hostname, identity string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM monitors WHERE hostname = ? AND identity = ?
	`, hostname, identity)
	if err != nil {
		return errors.StoreUnavailable(storeName, errors.Wrap(err, "delete monitor"))
	}

	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.NotFound("monitor", identity+"/"+hostname)
	}
	return nil
}

// ListMonitors returns every provisioning row ordered by identity and
// hostname.
func (s *Store) ListMonitors(ctx context.Context) ([]*Monitor, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT hostname, identity, owner_id, retention_hours, chart_mask, created_at, updated_at
		FROM monitors ORDER BY identity, hostname
	`)
	if err != nil {
		return nil, errors.StoreUnavailable(storeName, errors.Wrap(err, "list monitors"))
	}
	defer rows.Close()

	var out []*Monitor
	for rows.Next() {
		m := &Monitor{}
		var mask int64
		if err := rows.Scan(&m.Hostname, &m.Identity, &m.OwnerID, &m.RetentionHours, &mask, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, errors.StoreUnavailable(storeName, errors.Wrap(err, "scan monitor"))
		}
		m.ChartMask = charts.Mask(uint64(mask))
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreUnavailable(storeName, err)
	}
	return out, nil
}
