package main

import (
	"encoding/json"
	"fmt"

	"txstatus-backend/internal/services"

	"github.com/spf13/cobra"
)

type sweepOptions struct {
	DryRun     bool
	MaxRecords int
}

func newSweepCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &sweepOptions{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one stuck-transaction sweep and print its report as JSON",
		Long: `Re-examines pending and placeholder-bearing records against the ledger.

With --dry-run no ledger calls and no writes are made; the report lists what
would be examined.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.MaxRecords < 0 {
				return fmt.Errorf("--max-records must not be negative")
			}

			c, err := rootOpts.container(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			report, err := c.StatusService.SweepStuckTransactions(cmd.Context(), services.SweepOptions{
				DryRun:     opts.DryRun,
				MaxRecords: opts.MaxRecords,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report only, no ledger calls and no writes")
	cmd.Flags().IntVar(&opts.MaxRecords, "max-records", 0, "records to examine (default sweep.maxRecords)")

	return cmd
}
