package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxlabeler/internal/display"
	"github.com/teemow/inboxlabeler/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		stats bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent label applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.History.Path == "" {
				return fmt.Errorf("history is disabled: set history.path")
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if stats {
				counts, err := store.CountByOutcome(ctx)
				if err != nil {
					return err
				}
				outcomes := make([]string, 0, len(counts))
				for o := range counts {
					outcomes = append(outcomes, o)
				}
				sort.Strings(outcomes)

				display.Header(out, "Outcomes")
				for _, o := range outcomes {
					fmt.Fprintf(out, "  %-10s %d\n", o, counts[o])
				}
				return nil
			}

			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			display.History(out, entries, time.Now())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&stats, "stats", false, "Show counts per outcome instead of entries")
	return cmd
}
