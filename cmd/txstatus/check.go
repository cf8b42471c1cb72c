package main

import (
	"fmt"

	"txstatus-backend/internal/models"
	"txstatus-backend/internal/utils"

	"github.com/spf13/cobra"
)

type checkOptions struct {
	TxHash    string
	NetworkID int64
}

func newCheckCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Query the ledger once for a transaction hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rootOpts.container(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.StatusService.CheckStatus(cmd.Context(), opts.TxHash, opts.NetworkID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🔍 %s on %s (%d)\n", result.TxHash, result.NetworkName, result.NetworkID)
			fmt.Fprintf(out, "   status:        %s\n", result.Status)
			fmt.Fprintf(out, "   confirmed:     %t\n", result.IsConfirmed)
			fmt.Fprintf(out, "   confirmations: %d\n", result.Confirmations)
			if result.BlockNumber != nil {
				fmt.Fprintf(out, "   block:         %d\n", *result.BlockNumber)
			}
			if result.RecordStatus != nil {
				fmt.Fprintf(out, "   record:        %s\n", *result.RecordStatus)
			}
			if result.Error != "" {
				fmt.Fprintf(out, "   error:         %s\n", result.Error)
			}

			if record, err := c.StatusService.GetRecord(cmd.Context(), result.TxHash); err == nil {
				symbol := "tokens"
				if info, ok := c.Registry.Get(result.NetworkID); ok && record.TokenAddress == models.NativeTokenAddress {
					symbol = info.Symbol
				}
				if amount, err := utils.FormatUnits(record.Amount, 18); err == nil {
					fmt.Fprintf(out, "   amount:        %s %s (assuming 18 decimals)\n", amount, symbol)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.TxHash, "tx-hash", "", "transaction hash (0x + 64 hex)")
	cmd.Flags().Int64Var(&opts.NetworkID, "network-id", 0, "network id, e.g. 1 or 11155111")
	_ = cmd.MarkFlagRequired("tx-hash")
	_ = cmd.MarkFlagRequired("network-id")

	return cmd
}
