package cmd

import (
	"fmt"
	"strings"
	"time"

	"agentauth/internal/app"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	statusSession string
	statusAgent   string
	statusAccount string
)

// statusCmd shows what is linked for a session.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authorization status for a session",
	Long: `Shows whether an account is linked for a session, which services were
granted and when the access token expires.

Exit codes:
  0  an account is linked
  2  nothing is linked for this session`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.NewConfig(flagDebug, !flagDebug, flagConfigPath))
	if err != nil {
		return err
	}

	status, err := application.Service.Status(cmd.Context(), statusSession, statusAgent, statusAccount)
	if err != nil {
		return err
	}

	fmt.Printf("Session:   %s\n", statusSession)
	fmt.Printf("Agent:     %s\n", statusAgent)

	if status.Authenticated {
		fmt.Printf("Status:    %s\n", text.FgGreen.Sprint("Linked"))
		fmt.Printf("Account:   %s\n", status.Account)
		fmt.Printf("Services:  %s\n", strings.Join(status.Services, ", "))
		fmt.Printf("Expires:   %s\n", formatExpiry(status.ExpiresAt))
		return nil
	}

	if status.Pending != nil {
		fmt.Printf("Status:    %s\n", text.FgYellow.Sprint("Authorization pending"))
		fmt.Printf("Account:   %s\n", status.Pending.Account)
		fmt.Printf("Expires:   %s\n", formatExpiry(status.Pending.ExpiresAt))
		return nil
	}

	fmt.Printf("Status:    %s\n", text.FgYellow.Sprint("Not linked"))
	return &AuthRequiredError{Account: statusAccount}
}

// formatExpiry renders an expiry both absolutely and relatively, matching
// how humans check whether a token is still good.
func formatExpiry(expiry time.Time) string {
	if expiry.IsZero() {
		return "unknown"
	}
	remaining := time.Until(expiry).Round(time.Second)
	if remaining <= 0 {
		return fmt.Sprintf("%s (expired, will refresh on next use)", expiry.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s (in %s)", expiry.Format(time.RFC3339), remaining)
}

func init() {
	statusCmd.Flags().StringVar(&statusSession, "session", "", "Session key to inspect (required)")
	statusCmd.Flags().StringVar(&statusAgent, "agent", "", "Agent ID (required)")
	statusCmd.Flags().StringVar(&statusAccount, "account", "", "Limit to one account (default: first linked)")
	_ = statusCmd.MarkFlagRequired("session")
	_ = statusCmd.MarkFlagRequired("agent")

	rootCmd.AddCommand(statusCmd)
}
