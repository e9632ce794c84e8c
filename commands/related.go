package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kevin-toles/ai-llm-technical-documentation-engine-sub007/similarity"
)

func newRelatedCmd() *cobra.Command {
	var (
		targetPath     string
		companionPaths []string
	)

	cmd := &cobra.Command{
		Use:   "related <unit-id>",
		Short: "Show similarity links for a unit without calling the LLM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			_, all, err := loadCorpus(targetPath, companionPaths)
			if err != nil {
				return err
			}

			engine := newSimilarityEngine(cfg, slog.Default())
			idx, err := engine.Build(context.Background(), all)
			if err != nil {
				return fmt.Errorf("build similarity index: %w", err)
			}

			links := engine.RelatedTo(args[0], idx, similarity.QueryOptions{
				Threshold: cfg.Similarity.Threshold,
				TopN:      cfg.Similarity.TopN,
			})
			if len(links) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no related units for %s (threshold %.2f)\n", args[0], cfg.Similarity.Threshold)
				return nil
			}
			for _, link := range links {
				unit, err := idx.Unit(link.TargetUnitID)
				title := ""
				if err == nil {
					title = unit.Title
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%.3f  %s  %s  (%s)\n", link.Score, link.TargetUnitID, title, link.Method)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&targetPath, "units", "", "target document units JSON file (required)")
	cmd.Flags().StringSliceVar(&companionPaths, "companion", nil, "companion corpus units JSON file (repeatable)")
	_ = cmd.MarkFlagRequired("units")
	return cmd
}
