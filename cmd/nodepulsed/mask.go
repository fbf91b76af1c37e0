package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xtxerr/nodepulse/internal/charts"
)

func newMaskCmd() *cobra.Command {
	maskCmd := &cobra.Command{
		Use:   "mask",
		Short: "Encode and decode chart subscription masks",
	}

	maskCmd.AddCommand(
		&cobra.Command{
			Use:   "encode CHART...",
			Short: "Print the mask of the named charts",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mask, err := charts.NewDefault().Encode(args...)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), uint64(mask))
				return nil
			},
		},
		&cobra.Command{
			Use:   "decode MASK",
			Short: "Print the chart names set in a mask",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.ParseUint(args[0], 0, 64)
				if err != nil {
					return fmt.Errorf("invalid mask %q: %w", args[0], err)
				}
				registry := charts.NewDefault()
				mask := charts.Mask(v)

				out := cmd.OutOrStdout()
				for _, name := range registry.Decode(mask) {
					fmt.Fprintln(out, name)
				}
				if unknown := registry.Unknown(mask); unknown != 0 {
					fmt.Fprintf(out, "unknown bits: %#x\n", uint64(unknown))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List the chart catalog",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tFLAG\tTRANSLATION KEY\tFIELDS")
				for _, c := range charts.NewDefault().Charts() {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", c.Name, uint64(c.Flag), c.TranslationKey, strings.Join(c.Fields, ","))
				}
				tw.Flush()
			},
		},
	)
	return maskCmd
}
