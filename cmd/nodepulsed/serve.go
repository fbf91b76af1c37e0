package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/loader"
	"github.com/xtxerr/nodepulse/internal/logging"
	"github.com/xtxerr/nodepulse/internal/monitor"
	"github.com/xtxerr/nodepulse/internal/observability"
	"github.com/xtxerr/nodepulse/internal/server"
	"github.com/xtxerr/nodepulse/internal/storage/compress"
	"github.com/xtxerr/nodepulse/internal/storage/ingestion"
	"github.com/xtxerr/nodepulse/internal/storage/ring"
	"github.com/xtxerr/nodepulse/internal/storage/snapshot"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, flags)
		},
	}
}

func serve(ctx context.Context, flags *globalFlags) error {
	registry := charts.NewDefault()

	cfg, err := loadConfig(flags, registry)
	if err != nil {
		return err
	}
	logging.Info("nodepulsed starting", "version", Version)

	rules, err := cfg.Rules()
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer st.close()

	codec, err := compress.New(cfg.Snapshot)
	if err != nil {
		return fmt.Errorf("snapshot codec: %w", err)
	}
	defer codec.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.New(reg)

	monitors := monitor.NewCache(st.cache, st.meta, metrics)
	series := ring.New(st.cache, registry, cfg.RingOptions())
	snapshots := snapshot.New(st.cache, codec)

	if len(cfg.Monitors) > 0 {
		n, err := loader.ApplyMonitors(ctx, cfg.Monitors, registry, st.meta, monitors)
		if err != nil {
			return fmt.Errorf("apply monitors: %w", err)
		}
		logging.Info("declared monitors applied", "count", n)
	}

	svc, err := ingestion.New(ingestion.Deps{
		Rules:     rules,
		Registry:  registry,
		Monitors:  monitors,
		Ring:      series,
		Snapshots: snapshots,
		Metrics:   metrics,
	})
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Listen:            cfg.Server.Listen,
		TrustForwardedFor: cfg.Server.TrustForwardedFor,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes.Bytes(),
		RequestTimeout:    cfg.Server.RequestTimeout.Duration(),
		ShutdownTimeout:   cfg.Server.ShutdownTimeout.Duration(),
		RejectLimit:       cfg.Server.RejectLimit,
		RejectWindow:      cfg.Server.RejectWindow.Duration(),
	}, server.Deps{
		Ingest:    svc,
		Snapshots: snapshots,
		Series:    series,
		Registry:  registry,
		Gatherer:  reg,
		Checks: map[string]server.HealthCheck{
			"cache":     st.cache.Ping,
			"metastore": st.meta.Health,
		},
	})

	if err := srv.Run(ctx); err != nil {
		return err
	}
	logging.Info("nodepulsed stopped", "stats", svc.Stats())
	return nil
}
