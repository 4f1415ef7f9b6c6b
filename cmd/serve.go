package cmd

import (
	"context"

	"agentauth/internal/app"

	"github.com/spf13/cobra"
)

// serveCmd starts the long-running authorization daemon: the loopback
// callback listener, the expiry sweeper and the config watcher.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authorization daemon",
	Long: `Starts the authorization daemon.

The daemon binds the first free port from the configured candidate list on
the loopback interface and receives provider redirects for every in-flight
authorization flow. It keeps running until interrupted.

Configuration is read from config.yaml in the configuration directory
(default: ~/.config/agentauth). Changes to the file are picked up while the
daemon runs; provider changes still require a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.NewConfig(flagDebug, false, flagConfigPath))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
