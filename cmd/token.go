package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxlabeler/internal/google"
)

func addTokenFlag(cmd *cobra.Command, token *string) {
	cmd.Flags().StringVar(token, "token", "", "Gmail OAuth access token (default: stored token). Can also use INBOXLABELER_TOKEN env var.")
}

// withCLIToken attaches an explicit access token, from the flag or the
// environment, to ctx.
func withCLIToken(ctx context.Context, token string) context.Context {
	if token == "" {
		token = os.Getenv("INBOXLABELER_TOKEN")
	}
	return google.WithRequestToken(ctx, token)
}
