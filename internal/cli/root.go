// Package cli provides the command-line interface for compcluster.
package cli

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/compcluster/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configFile string
	verbose    bool

	// Resolved configuration, available to subcommands after PersistentPreRunE.
	cfg config.Pipeline

	cleanupLogger func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "compcluster",
	Short: "Competitor clustering over company descriptions",
	Long: `Compcluster groups companies into competitor clusters from short
descriptions of their customers and products plus category tags.

The pipeline embeds both description fields, fuses them into one vector
per company, builds a k-NN similarity graph blended with category
overlap, and partitions it with seeded modularity optimization. Output
is deterministic for a fixed configuration and seed.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		// Optional .env for provider credentials.
		_ = godotenv.Load()

		var err error
		if configFile != "" {
			cfg, err = config.LoadFile(configFile)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, cleanup := config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)
		cleanupLogger = cleanup
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if cleanupLogger != nil {
			return cleanupLogger()
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
