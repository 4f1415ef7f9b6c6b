package cmd

import (
	"fmt"
	"time"

	"agentauth/internal/app"
	"agentauth/internal/authservice"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	loginSession  string
	loginAgent    string
	loginAccount  string
	loginServices []string
)

// loginCmd runs a complete flow interactively: it starts an in-process
// callback listener, prints the authorization link and waits for the
// redirect. Useful for linking an account manually and for verifying a
// provider configuration end to end.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Link an account interactively",
	Long: `Runs one authorization flow in the foreground.

Prints the authorization link, then waits until the provider redirects back
or the link expires. The resulting credential is stored exactly as it would
be by the daemon.

Examples:
  agentauth login --session cli --agent assistant --account user@example.com
  agentauth login --session cli --agent assistant --account user@example.com --service mail --service calendar`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.NewConfig(flagDebug, !flagDebug, flagConfigPath))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := application.Callback.Start(ctx); err != nil {
		return err
	}
	defer application.Callback.Stop()
	application.Service.SetRedirectURI(application.Callback.RedirectURI())

	result, err := application.Service.StartFlow(ctx, authservice.StartFlowRequest{
		SessionKey: loginSession,
		AgentID:    loginAgent,
		Account:    loginAccount,
		Services:   loginServices,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Open this link in your browser to authorize %s:\n\n  %s\n\n",
		loginAccount, text.FgCyan.Sprint(result.AuthorizationURL))

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Waiting for authorization (link expires in %s)...", result.ExpiresIn)
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(result.ExpiresIn)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			s.FinalMSG = text.FgYellow.Sprint("The authorization link expired before it was used.") + "\n"
			return &AuthFailedError{Reason: "link expired"}
		}

		if _, pending := application.Registry.Lookup(result.State); pending {
			continue
		}

		// The flow was consumed: either committed or failed.
		cred, err := application.Creds.Load(loginAgent, loginSession, loginAccount)
		if err != nil {
			return err
		}
		if cred == nil {
			s.FinalMSG = text.FgRed.Sprint("Authorization did not complete.") + "\n"
			return &AuthFailedError{Reason: "flow ended without a credential"}
		}

		s.FinalMSG = text.FgGreen.Sprintf("Linked %s (services: %v)", cred.Account, cred.Services) + "\n"
		return nil
	}
}

func init() {
	loginCmd.Flags().StringVar(&loginSession, "session", "", "Session key to link the account to (required)")
	loginCmd.Flags().StringVar(&loginAgent, "agent", "", "Agent ID the credential belongs to (required)")
	loginCmd.Flags().StringVar(&loginAccount, "account", "", "Account identifier, e.g. an email address (required)")
	loginCmd.Flags().StringArrayVar(&loginServices, "service", nil, "Service to request access for (repeatable, default: all configured)")
	_ = loginCmd.MarkFlagRequired("session")
	_ = loginCmd.MarkFlagRequired("agent")
	_ = loginCmd.MarkFlagRequired("account")

	rootCmd.AddCommand(loginCmd)
}
