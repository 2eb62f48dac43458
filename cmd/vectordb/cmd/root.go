// Package cmd provides the vectordb CLI commands.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"hnswdb/internal/config"
	"hnswdb/internal/obslog"
)

// Shared persistent flags.
var (
	configDir   string
	debugMode   bool
	loggingDone func()
)

// Version is the CLI's reported build version.
const Version = "0.1.0"

// NewRootCmd creates the root command for the vectordb CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "vectordb",
		Short:   "Serverless HNSW vector database",
		Version: Version,
		Long: `vectordb serves and administers one shard of the HNSW vector
database: an in-memory, incrementally persisted approximate nearest
neighbor index backed by a durable SQLite record store.

Run 'vectordb serve' to expose the JSON API, or use the insert/search/
get/delete/stats/compact subcommands to operate on a shard directly.`,
	}
	root.SetVersionTemplate("vectordb version {{.Version}}\n")

	root.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory to search for .hnswdb.yaml")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to ~/.hnswdb/logs/")

	root.PersistentPreRunE = setupLogging
	root.PersistentPostRunE = teardownLogging

	root.AddCommand(newServeCmd())
	root.AddCommand(newShardCmd())
	root.AddCommand(newInsertCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newDeleteCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newCompactCmd())
	root.AddCommand(newTopCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := obslog.DefaultConfig()
	if debugMode {
		cfg = obslog.DebugConfig()
	}
	logger, cleanup, err := obslog.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingDone = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if loggingDone != nil {
		loggingDone()
		loggingDone = nil
	}
	return nil
}

// loadConfig loads the layered configuration from configDir, falling
// back to defaults when no file is present.
func loadConfig() (*config.Config, error) {
	return config.Load(configDir)
}
