package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxlabeler/internal/display"
)

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <text>...",
		Short: "Classify text without labeling anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			pred, err := a.labeler.TestPrediction(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("prediction failed: %w", err)
			}
			display.Prediction(cmd.OutOrStdout(), pred, cfg.Thresholds.Single)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the classification service is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cls := newClassifierClient(cfg, nil, nil)
			if err := cls.Status(cmd.Context()); err != nil {
				display.ErrorMsg(cmd.ErrOrStderr(), "Classifier at %s is not available: %v", cls.BaseURL(), err)
				return err
			}
			display.SuccessMsg(cmd.OutOrStdout(), "Classifier at %s is running", cls.BaseURL())
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the classification model",
		Long:  `Discard everything the classification service has learned. Requires --yes.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset the model without --yes")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cls := newClassifierClient(cfg, nil, nil)
			msg, err := cls.Reset(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to reset model: %w", err)
			}
			display.SuccessMsg(cmd.OutOrStdout(), "%s", msg)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the reset")
	return cmd
}
