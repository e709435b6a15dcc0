package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strawgate/homeassistant-elasticsearch"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hassflow",
		Short: "Publish Home Assistant state changes to Elasticsearch",
		Long: `hassflow subscribes to a Home Assistant instance over its WebSocket API,
optionally polls every entity on a fixed interval, and publishes one document
per captured state to Elasticsearch time series datastreams.

Configuration is read from a YAML file and HASSFLOW_* environment variables
(for example HASSFLOW_ES_PASSWORD). A .env file in the working directory is
loaded first when present.`,
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newValidateCmd(), newStatsCmd(), newTemplateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the pipeline using the provided config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flow, err := hassflow.Conf(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return flow.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "Path to the YAML configuration file (environment only when empty)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a config file without starting the pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := hassflow.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.HomeAssistant.Validate(); err != nil {
				return err
			}
			if _, err := cfg.Settings(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config %s looks good\n", displayPath(cfgPath))
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "Path to the YAML configuration file to validate")
	return cmd
}

func displayPath(p string) string {
	if p == "" {
		return "(environment)"
	}
	return p
}
