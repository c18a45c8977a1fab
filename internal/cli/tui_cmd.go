package cli

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nhle/mail-triage/internal/app"
	"github.com/nhle/mail-triage/internal/logging"
	"github.com/nhle/mail-triage/internal/model"
)

// tuiCmd opens the interactive inbox. Logs go to a file next to the
// database because the terminal belongs to the UI.
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse and triage the mailbox interactively",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		dataDir := filepath.Dir(cfg.Database.Path)
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, err := logging.NewFile(level, filepath.Join(dataDir, "mailtriage.log"))
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		a, err := app.Open(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		p := tea.NewProgram(app.NewModel(a, configPath), tea.WithAltScreen())
		_, err = p.Run()

		// Let an in-flight pass finish before the store closes.
		a.Scheduler.Wait()
		if err != nil {
			return fmt.Errorf("running tui: %w", err)
		}
		return nil
	},
}
