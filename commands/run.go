package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		targetPath     string
		companionPaths []string
		selection      string
		outPath        string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Enhance a document's units against the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			targets, all, err := loadCorpus(targetPath, companionPaths)
			if err != nil {
				return err
			}
			targets, err = filterSelection(targets, selection)
			if err != nil {
				return err
			}

			// SIGINT stops scheduling new units; in-flight work drains.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := NewApp(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer app.Close()

			idx, err := app.Engine.Build(ctx, all)
			if err != nil {
				return fmt.Errorf("build similarity index: %w", err)
			}

			summary, runErr := app.Orchestrator.Run(ctx, targets, idx)
			if summary != nil {
				if err := writeSummary(summary, outPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d done, %d failed of %d units\n",
					summary.RunID, summary.Done, summary.Failed, len(targets))
				for kind, n := range summary.FailureKinds {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d\n", kind, n)
				}
			}
			if runErr != nil {
				return fmt.Errorf("run interrupted: %w", runErr)
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d units failed; rerun to retry them (done units hit the cache)", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&targetPath, "units", "", "target document units JSON file (required)")
	cmd.Flags().StringSliceVar(&companionPaths, "companion", nil, "companion corpus units JSON file (repeatable)")
	cmd.Flags().StringVar(&selection, "select", "", "1-based unit selection, e.g. 1-3,7")
	cmd.Flags().StringVar(&outPath, "out", "enhanced.json", "output file for the run summary and enhanced units")
	_ = cmd.MarkFlagRequired("units")
	return cmd
}

func writeSummary(summary any, path string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
