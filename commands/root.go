// Package commands implements the docengine CLI.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/config"
)

// NewRootCmd builds the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "docengine",
		Short: "Enhance guideline documents with citations from a reference corpus",
		Long: `docengine augments long-form technical guideline documents with citations
and explanatory annotations drawn from companion sources, using a two-phase
LLM protocol with per-unit caching for resumable, cost-bounded runs.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newRelatedCmd())
	root.AddCommand(newCacheCmd())
	return root
}

// loadConfig loads the layered configuration for a command.
func loadConfig() (*config.Config, error) {
	return config.NewLoader(slog.Default()).Load()
}

// Execute runs the CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
