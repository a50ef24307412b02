package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxlabeler/internal/display"
	"github.com/teemow/inboxlabeler/internal/google"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access",
		Long: `Authorize access to Gmail with the OAuth client in gmail.credentials_file.

  inboxlabeler auth url          print the consent URL
  inboxlabeler auth save <code>  exchange the code and store the token`,
	}
	cmd.AddCommand(newAuthURLCmd(), newAuthSaveCmd())
	return cmd
}

func newAuthURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url",
		Short: "Print the OAuth consent URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conf, err := google.LoadOAuthConfig(cfg.Gmail.CredentialsFile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Open this URL in a browser and authorize access:")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), google.AuthURL(conf, "inboxlabeler"))
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Then run: inboxlabeler auth save <code>")
			return nil
		},
	}
}

func newAuthSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <code>",
		Short: "Exchange an authorization code and store the token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conf, err := google.LoadOAuthConfig(cfg.Gmail.CredentialsFile)
			if err != nil {
				return err
			}
			if err := google.SaveToken(cmd.Context(), conf, args[0], cfg.Gmail.TokenFile); err != nil {
				return err
			}
			display.SuccessMsg(cmd.OutOrStdout(), "Token saved to %s", cfg.Gmail.TokenFile)
			return nil
		},
	}
}
