package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/weft/internal/cli"
	"github.com/aretw0/weft/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Weft is a collaborative flow-based-programming runtime",
	Long: `Weft hosts shared workspaces holding graphs of components. Clients edit
the graphs live through the FBP network protocol and run them with
dependency-ordered, concurrent execution.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: ./weft.yaml when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().String("components", "", "Process components file (overrides config)")
}

// loadConfig reads the config file and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.LogFormat = format
	}
	if components, _ := cmd.Flags().GetString("components"); components != "" {
		cfg.Components = components
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads the config and the matching logger. quiet discards logs.
func setup(cmd *cobra.Command, quiet bool) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return cfg, cli.NewLogger(cfg, quiet), nil
}
