// Package cli wires the ekaya-drafts commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-drafts/pkg/config"
	"github.com/ekaya-inc/ekaya-drafts/pkg/logging"
)

var configPath string

// NewRootCommand builds the command tree. version is reported by --version
// and /ping.
func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ekaya-drafts",
		Short: "Streaming AI writing assistant service",
		Long: `ekaya-drafts streams assistant responses for content drafts, caches
repeated answers, scores response quality and meters per-user usage.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath, "Path to config.yaml (environment variables override it)")

	rootCmd.AddCommand(
		NewServeCommand(version),
		NewMigrateCommand(version),
		NewUsageCommand(version),
	)

	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the process logger.
func setup(version string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFrom(configPath, version)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}
