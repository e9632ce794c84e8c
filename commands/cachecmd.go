package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the enhancement cache",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show cache entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openCacheApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			s, err := app.Store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d cached phase results (%s backend)\n", s.Entries, app.Config.Cache.Backend)
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached phase results",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openCacheApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}

	cmd.AddCommand(stats, clear)
	return cmd
}

// openCacheApp builds just enough of the stack to reach the cache backend.
func openCacheApp(ctx context.Context) (*App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return NewApp(ctx, cfg, slog.Default())
}
