// Package cli implements the fetchctl command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/devops-sunny/turbofetch/internal/config"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

var (
	// Persistent flags available to all subcommands
	configPath   string
	outputFormat string
	logLevel     string
	noCallLog    bool
)

var rootCmd = &cobra.Command{
	Use:   "fetchctl",
	Short: "fetchctl sends HTTP calls through turbofetch and inspects the call log",
	Long: `fetchctl drives a turbofetch client from the command line.

Every call goes through the interceptor chain and, unless disabled, is
recorded in the configured call log (memory, MongoDB or PostgreSQL). One
entry is kept per url and method; repeated calls update it.

Configuration is read from turbofetch.yaml (or --config), a .env file and
TURBOFETCH_* environment variables, with the environment taking priority.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file (default: ./"+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", outputText, "Output format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level from the configuration")
	rootCmd.PersistentFlags().BoolVar(&noCallLog, "no-log", false, "Do not record calls in the call log")
}

// loadConfig applies command line overrides on top of config.Load.
func loadConfig() (*config.Config, error) {
	switch outputFormat {
	case outputText, outputJSON, outputYAML:
	default:
		return nil, fmt.Errorf("unknown output format %q (want text, json or yaml)", outputFormat)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if noCallLog {
		cfg.Client.Logging = false
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
