// Package cmd provides ctxforge's CLI commands.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ctxforge/ctxforge/internal/logging"
	"github.com/ctxforge/ctxforge/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd builds the root ctxforge command and wires every subcommand.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ctxforge",
		Short:   "Indexes a codebase and optimizes LLM prompt context under a token budget",
		Version: version.Version,
		Long: `ctxforge indexes a codebase into semantic fragments and, given a
query and a token budget, retrieves, scores, compresses, and assembles the
most relevant fragments into a ready-to-send prompt.`,
	}
	cmd.SetVersionTemplate("ctxforge version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.ctxforge/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newOptimizeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func startLogging(*cobra.Command, []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(*cobra.Command, []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
