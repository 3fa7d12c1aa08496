// Package cmd provides the CLI commands for the retrieval service.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/complyra/retrieval/internal/config"
	"github.com/complyra/retrieval/internal/logging"
	"github.com/complyra/retrieval/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func() error
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieval",
		Short: "Hybrid retrieval pipeline for compliance document context",
		Long: `retrieval indexes workspace document chunks and serves the relevance
pipeline behind compliance assessments: BM25 lexical search fused with
dense vector search, quality filtering, and sibling context expansion.

Run 'retrieval index' to load a corpus, 'retrieval search' to query it,
or 'retrieval serve' to expose the pipeline to MCP clients.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("retrieval version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (YAML)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.Setup(logging.Options{
		Level: level,
		Dir:   cfg.Logging.Dir,
		Quiet: cfg.Logging.Quiet,
	})
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

func teardownLogging(cmd *cobra.Command, args []string) error {
	if loggingCleanup != nil {
		return loggingCleanup()
	}
	return nil
}
