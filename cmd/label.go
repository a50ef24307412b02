package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxlabeler/internal/display"
	"github.com/teemow/inboxlabeler/internal/labeler"
)

func newLabelCmd() *cobra.Command {
	var (
		threadID  string
		messageID string
		token     string
	)

	cmd := &cobra.Command{
		Use:   "label <name>",
		Short: "Apply a label to the open email or to a given thread",
		Long: `Apply a Gmail label, creating it first if it does not exist.

Without --thread the label goes to the email open in the Gmail tab.
With --message only that message is labeled instead of the whole thread.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := withCLIToken(cmd.Context(), token)

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var res *labeler.ApplyResult
			if threadID == "" && messageID == "" {
				res, err = a.labeler.ApplyLabel(ctx, args[0])
			} else {
				res, err = a.labeler.ApplyLabelToEmail(ctx, labeler.Target{ThreadID: threadID, MessageID: messageID}, args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to apply label: %w", err)
			}
			display.Applied(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&threadID, "thread", "", "Thread ID to label (default: the open email)")
	cmd.Flags().StringVar(&messageID, "message", "", "Label only this message")
	addTokenFlag(cmd, &token)
	return cmd
}

func newClassifyCmd() *cobra.Command {
	var (
		open  bool
		token string
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Predict and apply labels for the visible emails",
		Long: `Ask the classification service for a label for every visible email and apply
the labels predicted with at least the batch threshold (thresholds.batch).

With --open only the open email is classified, using thresholds.single.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := withCLIToken(cmd.Context(), token)

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if open {
				outcome, err := a.labeler.PredictAndApply(ctx)
				if err != nil {
					return fmt.Errorf("failed to classify email: %w", err)
				}
				display.PredictionOutcome(out, outcome, cfg.Thresholds.Single)
				return nil
			}

			report, err := a.labeler.ClassifyVisible(ctx, nil)
			if err != nil {
				return fmt.Errorf("failed to classify emails: %w", err)
			}
			display.Report(out, "Classified visible emails", report, cfg.Thresholds.Batch)
			return nil
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "Classify only the open email")
	addTokenFlag(cmd, &token)
	return cmd
}

func newTrainCmd() *cobra.Command {
	var (
		open      bool
		batchSize int
		token     string
	)

	cmd := &cobra.Command{
		Use:   "train <label>",
		Short: "Train the classifier on the selected emails and apply the label",
		Long: `Train the classification service with the selected emails as examples of
<label>, then apply <label> to each email whose training succeeded.

With --open the open email is used instead of the selection.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := withCLIToken(cmd.Context(), token)

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if open {
				res, err := a.labeler.TrainAndApply(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to train: %w", err)
				}
				display.Applied(out, res)
				return nil
			}

			emails, err := a.labeler.SelectedEmails(ctx)
			if err != nil {
				return err
			}
			report, err := a.labeler.BatchTrain(ctx, emails, args[0], batchSize, nil)
			if err != nil {
				return fmt.Errorf("batch training failed: %w", err)
			}
			display.TrainReport(out, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "Train on the open email instead of the selection")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Emails per chunk (default: batch.size)")
	addTokenFlag(cmd, &token)
	return cmd
}
