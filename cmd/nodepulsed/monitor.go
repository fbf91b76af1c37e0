package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/errors"
	"github.com/xtxerr/nodepulse/internal/loader"
	"github.com/xtxerr/nodepulse/internal/monitor"
)

func newMonitorCmd(flags *globalFlags) *cobra.Command {
	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Manage host provisioning",
		Long:  "Add, remove and inspect monitor configs in the provisioning database.",
	}
	monitorCmd.AddCommand(
		newMonitorAddCmd(flags),
		newMonitorRemoveCmd(flags),
		newMonitorShowCmd(flags),
		newMonitorListCmd(flags),
	)
	return monitorCmd
}

// withMonitors loads config, opens both stores and runs fn with a cache bound
// to the metastore so writes can invalidate cached configs.
func withMonitors(ctx context.Context, flags *globalFlags, fn func(*stores, *monitor.Cache, *charts.Registry) error) error {
	registry := charts.NewDefault()
	cfg, err := loadConfig(flags, registry)
	if err != nil {
		return err
	}
	st, err := openStores(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer st.close()

	return fn(st, monitor.NewCache(st.cache, st.meta, nil), registry)
}

func newMonitorAddCmd(flags *globalFlags) *cobra.Command {
	var def loader.MonitorDefinition

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create or replace a monitor config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMonitors(cmd.Context(), flags, func(st *stores, cache *monitor.Cache, registry *charts.Registry) error {
				n, err := loader.ApplyMonitors(cmd.Context(), []loader.MonitorDefinition{def}, registry, st.meta, cache)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d monitor(s)\n", n)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&def.Hostname, "hostname", "", "agent hostname (required)")
	cmd.Flags().StringVar(&def.Identity, "identity", "", "source identity (required)")
	cmd.Flags().Int64Var(&def.OwnerID, "owner", 0, "owning user id")
	cmd.Flags().Float64Var(&def.RetentionHours, "retention-hours", 1, "retention window in hours")
	cmd.Flags().StringSliceVar(&def.Charts, "charts", nil, "chart names to subscribe (required)")
	cmd.MarkFlagRequired("hostname")
	cmd.MarkFlagRequired("identity")
	cmd.MarkFlagRequired("charts")
	return cmd
}

func newMonitorRemoveCmd(flags *globalFlags) *cobra.Command {
	var hostname, identity string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete a monitor config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMonitors(cmd.Context(), flags, func(st *stores, cache *monitor.Cache, _ *charts.Registry) error {
				if err := st.meta.DeleteMonitor(cmd.Context(), hostname, identity); err != nil {
					return err
				}
				if err := cache.Invalidate(cmd.Context(), hostname, identity); err != nil {
					return fmt.Errorf("invalidate cached config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s@%s\n", hostname, identity)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&hostname, "hostname", "", "agent hostname (required)")
	cmd.Flags().StringVar(&identity, "identity", "", "source identity (required)")
	cmd.MarkFlagRequired("hostname")
	cmd.MarkFlagRequired("identity")
	return cmd
}

type monitorView struct {
	Hostname       string   `json:"hostname"`
	Identity       string   `json:"identity"`
	OwnerID        int64    `json:"owner_id"`
	RetentionHours float64  `json:"retention_hours"`
	ChartMask      uint64   `json:"chart_mask"`
	Charts         []string `json:"charts"`
}

func newMonitorShowCmd(flags *globalFlags) *cobra.Command {
	var hostname, identity string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print one monitor config as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMonitors(cmd.Context(), flags, func(st *stores, _ *monitor.Cache, registry *charts.Registry) error {
				cfg, err := st.meta.FindMonitor(cmd.Context(), hostname, identity)
				if err != nil {
					return err
				}
				if cfg == nil {
					return errors.NotFound("monitor", hostname+"@"+identity)
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(monitorView{
					Hostname:       hostname,
					Identity:       identity,
					OwnerID:        cfg.OwnerID,
					RetentionHours: cfg.RetentionHours,
					ChartMask:      uint64(cfg.ChartMask),
					Charts:         registry.Decode(cfg.ChartMask),
				})
			})
		},
	}

	cmd.Flags().StringVar(&hostname, "hostname", "", "agent hostname (required)")
	cmd.Flags().StringVar(&identity, "identity", "", "source identity (required)")
	cmd.MarkFlagRequired("hostname")
	cmd.MarkFlagRequired("identity")
	return cmd
}

func newMonitorListCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List monitor configs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMonitors(cmd.Context(), flags, func(st *stores, _ *monitor.Cache, registry *charts.Registry) error {
				monitors, err := st.meta.ListMonitors(cmd.Context())
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "IDENTITY\tHOSTNAME\tOWNER\tRETENTION\tCHARTS\tUPDATED")
				for _, m := range monitors {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%gh\t%s\t%s\n",
						m.Identity, m.Hostname, m.OwnerID, m.RetentionHours,
						registry.String(m.ChartMask), m.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			})
		},
	}
}
