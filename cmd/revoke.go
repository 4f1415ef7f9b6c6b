package cmd

import (
	"fmt"

	"agentauth/internal/app"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	revokeSession string
	revokeAgent   string
	revokeAccount string
)

// revokeCmd disconnects an account from a session.
var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Disconnect an account from a session",
	Long: `Revokes the stored credential for a session and account.

The token is revoked at the provider on a best-effort basis and the local
credential file is always removed. Revoking an account that was never
linked succeeds without doing anything.`,
	Args: cobra.NoArgs,
	RunE: runRevoke,
}

func runRevoke(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.NewConfig(flagDebug, !flagDebug, flagConfigPath))
	if err != nil {
		return err
	}

	if err := application.Service.Revoke(cmd.Context(), revokeSession, revokeAgent, revokeAccount); err != nil {
		return err
	}

	fmt.Println(text.FgGreen.Sprintf("Disconnected %s from session %s", revokeAccount, revokeSession))
	return nil
}

func init() {
	revokeCmd.Flags().StringVar(&revokeSession, "session", "", "Session key (required)")
	revokeCmd.Flags().StringVar(&revokeAgent, "agent", "", "Agent ID (required)")
	revokeCmd.Flags().StringVar(&revokeAccount, "account", "", "Account to disconnect (default: all for the session)")
	_ = revokeCmd.MarkFlagRequired("session")
	_ = revokeCmd.MarkFlagRequired("agent")

	rootCmd.AddCommand(revokeCmd)
}
