package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nhle/mail-triage/internal/app"
)

// authCmd runs the OAuth consent flow and stores the token in the keyring.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize Gmail access",
	Long: `Prints the Google consent URL, reads the authorization code from
stdin and stores the resulting token in the system keyring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		tp, err := app.TokenProvider(cfg)
		if err != nil {
			return err
		}

		fmt.Println("Open this URL in a browser and approve access:")
		fmt.Println()
		fmt.Println("  " + tp.AuthCodeURL(uuid.NewString()))
		fmt.Println()
		fmt.Print("Authorization code: ")

		code, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading authorization code: %w", err)
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return fmt.Errorf("authorization code must not be empty")
		}

		if _, err := tp.Exchange(cmd.Context(), code); err != nil {
			return err
		}
		fmt.Println("Token stored.")
		return nil
	},
}
