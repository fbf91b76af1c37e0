package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/xtxerr/nodepulse/internal/cachestore"
	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/loader"
	"github.com/xtxerr/nodepulse/internal/logging"
	"github.com/xtxerr/nodepulse/internal/store"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	listen     string
	dsn        string
	redisAddr  string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "nodepulsed",
		Short: "Netdata telemetry ingestion server",
		Long: `nodepulsed receives Netdata sample batches, keeps per-chart ring series
and compressed overview snapshots in Redis, and resolves host provisioning
from a DuckDB database.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.yaml", "config file path")
	root.PersistentFlags().StringVar(&flags.listen, "listen", "", "listen address (overrides config)")
	root.PersistentFlags().StringVar(&flags.dsn, "db", "", "metastore database path (overrides config)")
	root.PersistentFlags().StringVar(&flags.redisAddr, "redis", "", "Redis address (overrides config)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides config)")

	root.AddCommand(
		newServeCmd(flags),
		newMaskCmd(),
		newMonitorCmd(flags),
		newExportCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file, falls back to defaults when it does not
// exist, applies flag overrides and validates the result.
func loadConfig(flags *globalFlags, registry *charts.Registry) (*loader.Config, error) {
	cfg, err := loader.Load(flags.configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		logging.Info("no config file found, using defaults", "path", flags.configPath)
		cfg = loader.DefaultConfig()
	}

	if flags.listen != "" {
		cfg.Server.Listen = flags.listen
	}
	if flags.dsn != "" {
		cfg.Metastore.DSN = flags.dsn
	}
	if flags.redisAddr != "" {
		cfg.Cache.Addr = flags.redisAddr
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	if err := loader.Validate(cfg, registry); err != nil {
		return nil, err
	}
	logging.Init(cfg.LogLevel(), cfg.JSONLogs())
	return cfg, nil
}

// stores holds the two backing stores opened by a command.
type stores struct {
	meta  *store.Store
	cache *cachestore.Redis
}

func openStores(ctx context.Context, cfg *loader.Config, needMeta bool) (*stores, error) {
	s := &stores{cache: cachestore.NewRedis(cfg.Cache)}
	if err := s.cache.Ping(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("cache store %s: %w", cfg.Cache.Addr, err)
	}

	if needMeta {
		meta, err := store.New(cfg.Metastore)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("open metastore: %w", err)
		}
		s.meta = meta
	}
	return s, nil
}

func (s *stores) close() {
	if s.meta != nil {
		if err := s.meta.Close(); err != nil {
			logging.Warn("close metastore", "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			logging.Warn("close cache store", "error", err)
		}
	}
}
