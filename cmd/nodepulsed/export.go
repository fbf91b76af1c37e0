package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xtxerr/nodepulse/internal/charts"
	"github.com/xtxerr/nodepulse/internal/storage/export"
	"github.com/xtxerr/nodepulse/internal/storage/ring"
)

func newExportCmd(flags *globalFlags) *cobra.Command {
	var (
		hostname    string
		identity    string
		out         string
		compression string
		chartNames  []string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a host's ring series to a Parquet file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := charts.NewDefault()
			cfg, err := loadConfig(flags, registry)
			if err != nil {
				return err
			}

			if len(chartNames) == 0 {
				chartNames = registry.Names()
			}
			for _, name := range chartNames {
				if _, ok := registry.Lookup(name); !ok {
					return fmt.Errorf("unknown chart %q", name)
				}
			}

			opts := cfg.Export
			if compression != "" {
				opts.Compression = compression
			}

			st, err := openStores(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer st.close()

			series := ring.New(st.cache, registry, cfg.RingOptions())
			n, err := export.WriteHost(cmd.Context(), out, opts, series, identity, hostname, chartNames)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVar(&hostname, "hostname", "", "agent hostname (required)")
	cmd.Flags().StringVar(&identity, "identity", "", "source identity (required)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (required)")
	cmd.Flags().StringVar(&compression, "compression", "", "parquet codec (overrides config)")
	cmd.Flags().StringSliceVar(&chartNames, "charts", nil, "charts to export (default: all)")
	cmd.MarkFlagRequired("hostname")
	cmd.MarkFlagRequired("identity")
	cmd.MarkFlagRequired("out")
	return cmd
}
