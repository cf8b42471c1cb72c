package main

import (
	"context"
	"fmt"

	"txstatus-backend/internal/app"
	"txstatus-backend/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootOptions global flags shared by every subcommand
type rootOptions struct {
	ConfigPath string
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "txstatus",
		Short:         "Transaction status reconciliation engine",
		Long:          "Tracks client-reported transaction hashes until the ledger confirms them or they are given up as failed.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default config.local.yaml or config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))

	return cmd
}

// loadConfig reads the config file and applies command-line overrides
func (o *rootOptions) loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	return cfg, app.NewLogger(cfg.Log), nil
}

// container loads config and builds the full service container
func (o *rootOptions) container(ctx context.Context) (*app.ServiceContainer, error) {
	cfg, logger, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.InitializeContainer(ctx, cfg, logger)
}
