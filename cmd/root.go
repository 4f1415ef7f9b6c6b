package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands. These are stable for scripting.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates the account is not linked.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates an authorization flow did not complete.
	ExitCodeAuthFailed = 3
)

// AuthRequiredError indicates no credential is on file for the requested
// session and account.
type AuthRequiredError struct {
	Account string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("no credential on file for %s, run 'agentauth login'", e.Account)
}

// AuthFailedError indicates an authorization flow ended without a credential.
type AuthFailedError struct {
	Reason string
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("authorization failed: %s", e.Reason)
}

// Flags shared by every command.
var (
	flagDebug      bool
	flagConfigPath string
)

// rootCmd is the entry point when the application is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "agentauth",
	Short: "Third-party account authorization for conversational agents",
	Long: `agentauth lets a conversational agent link a user's third-party accounts
without blocking the conversation. It issues authorization links, receives
the provider's redirect on a loopback listener, stores the resulting
credentials per agent and session, and reports the outcome back into the
conversation.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and exits with a semantic exit code.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "agentauth version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to exit codes for scripting and automation.
func getExitCode(err error) int {
	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config-path", "", "Custom configuration directory (default: ~/.config/agentauth)")

	rootCmd.AddCommand(newVersionCmd())
}
