// Command importer validates CSV documents locally and submits them to the
// records API in paced chunks, prompting on conflicts.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/bulkimport/internal/config"
	_ "github.com/JonMunkholm/bulkimport/internal/core/doctypes" // Register all document types
	"github.com/JonMunkholm/bulkimport/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app is shared by every subcommand once the root PersistentPreRunE has run.
type app struct {
	cfg    *config.CLIConfig
	logger *slog.Logger

	serverURL string
	logLevel  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "importer",
		Short:        "Validate and import CSV documents into the records API",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.serverURL, "server", "", "Records API base URL (default: $IMPORT_SERVER_URL)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $LOG_LEVEL)")

	root.AddCommand(
		newValidateCmd(a),
		newRunCmd(a),
		newFetchCmd(a),
		newTypesCmd(a),
	)
	return root
}

// load reads the environment, then .env on top of it, then applies flag overrides.
func (a *app) load() error {
	// Overload lets .env win over stale exported variables, like the server
	_ = godotenv.Overload()

	cfg, err := config.LoadCLI()
	if err != nil {
		return err
	}
	if a.serverURL != "" {
		cfg.Client.ServerURL = a.serverURL
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	// stdout carries reports; logs go to stderr.
	a.logger = logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(a.logger)
	return nil
}
