package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxlabeler/internal/config"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// Global flags
var (
	configPath string
	debugMode  bool
	logFormat  string
)

// rootCmd represents the base command for the inboxlabeler application
var rootCmd = &cobra.Command{
	Use:   "inboxlabeler",
	Short: "Labels Gmail threads using a local classification service",
	Long: `inboxlabeler reads the Gmail page open in Chrome (or a saved snapshot of it),
asks a local classification service which label fits each email and applies
the label through the Gmail API.

It can run as:
  - A standalone CLI tool
  - An MCP (Model Context Protocol) relay for AI assistants and other UIs`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inboxlabeler version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLabelCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newTrainCmd())
	rootCmd.AddCommand(newTestCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newResetCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// setupLogging installs the default slog logger. Logs go to stderr so they
// never mix with stdio MCP traffic or command output.
func setupLogging() error {
	handler, err := logging.NewHandler(os.Stderr, logFormat, debugMode)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "inboxlabeler version %s\n", version)
		},
	}
}
