package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxlabeler/internal/display"
)

func newWatchCmd() *cobra.Command {
	var classify bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the inbox for newly visible emails",
		Long: `Poll the Gmail tab and report each email the first time it becomes visible.

With --classify (or observer.auto_classify) new emails are classified and
labeled as they appear. Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !hasPageSource(cfg) {
				return errNoPageSource
			}
			if cmd.Flags().Changed("classify") {
				cfg.Observer.AutoClassify = classify
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			obs, err := newObserver(cfg, a, nil)
			if err != nil {
				return fmt.Errorf("failed to create observer: %w", err)
			}

			display.Header(cmd.OutOrStdout(), fmt.Sprintf("Watching for new emails every %s", cfg.Observer.Interval))
			if err := obs.Run(ctx); err != nil {
				return err
			}
			display.SuccessMsg(cmd.OutOrStdout(), "Stopped after %d emails", obs.Seen())
			return nil
		},
	}

	cmd.Flags().BoolVar(&classify, "classify", false, "Classify and label new emails as they appear")
	return cmd
}
