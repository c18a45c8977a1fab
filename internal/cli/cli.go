// Package cli implements the mailtriage command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mail-triage/internal/app"
	"github.com/nhle/mail-triage/internal/logging"
	"github.com/nhle/mail-triage/internal/model"
)

var (
	configPath string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mailtriage",
	Short: "Mirror a Gmail mailbox into SQLite and triage it",
	Long: `mailtriage keeps a local SQLite mirror of a Gmail mailbox, classifies
incoming mail and pushes local triage actions back to Gmail.

Examples:
  mailtriage auth                  # authorize Gmail access
  mailtriage sync                  # run one reconciliation pass
  mailtriage serve                 # sync in the background and serve /metrics
  mailtriage tui                   # browse and triage interactively
  mailtriage list --type response-needed
  mailtriage reply 42 --body "Thanks, will do."
  mailtriage compose --to bob@example.com --subject Lunch --body "Thursday?"
  mailtriage list --archived`,
	SilenceUsage: true,
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(unreadCmd)
	rootCmd.AddCommand(spamCmd)
	rootCmd.AddCommand(inboxCmd)
	rootCmd.AddCommand(typeCmd)
	rootCmd.AddCommand(replyCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(trashCmd)
	rootCmd.AddCommand(deleteDraftCmd)
	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(tuiCmd)
}

// loadConfig reads the config file and builds the logger.
func loadConfig() (*model.AppConfig, *zap.Logger, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}
	return cfg, logger, nil
}

// withApp opens the application, runs fn and closes it again.
func withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}
