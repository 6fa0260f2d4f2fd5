// Package main provides the streamdemo server entrypoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KamdynS/streamdemo/config"
)

var (
	configPath string
	portFlag   int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "streamdemo",
		Short: "Streaming, users and queue demo API",
		Long: `streamdemo serves simulated chat completions as raw chunked text,
NDJSON and Server-Sent Events, a paginated mock user directory and a
single-worker job queue whose results are pushed over WebSocket.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().IntVarP(&portFlag, "port", "p", 0, "listen port (overrides config)")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if portFlag != 0 {
		cfg.Server.Port = portFlag
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
