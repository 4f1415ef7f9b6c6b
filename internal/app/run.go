package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"agentauth/internal/config"
	"agentauth/pkg/logging"
)

// Run starts the daemon: the callback listener, the expiry sweeper and the
// configuration watcher. It blocks until the context is cancelled or a
// termination signal arrives, then shuts everything down in reverse order.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Callback.Start(ctx); err != nil {
		return err
	}
	a.Service.SetRedirectURI(a.Callback.RedirectURI())
	a.Service.Start(ctx)

	watcher := config.NewWatcher(config.WatcherConfig{
		ConfigDir: a.configDir,
		OnChange:  a.handleConfigChange,
	})
	if err := watcher.Start(); err != nil {
		logging.Warn("App", "Config watcher unavailable, changes require a restart: %v", err)
		watcher = nil
	}

	credWatcher, err := a.Creds.NewRootWatcher(func() {
		logging.Info("App", "SECURITY_AUDIT: credential files changed on disk")
	})
	if err != nil {
		logging.Warn("App", "Credential watcher unavailable: %v", err)
	} else if err := credWatcher.Start(); err != nil {
		logging.Warn("App", "Credential watcher failed to start: %v", err)
		credWatcher = nil
	}

	logging.Info("App", "Authorization daemon ready (redirect URI: %s)", a.Callback.RedirectURI())

	<-ctx.Done()
	logging.Info("App", "Shutting down")

	if credWatcher != nil {
		_ = credWatcher.Stop()
	}
	if watcher != nil {
		_ = watcher.Stop()
	}
	a.Service.Stop()
	a.Callback.Stop()
	return nil
}

// handleConfigChange reloads the config file after an on-disk change. Only
// the log level is applied live; everything else is wired at bootstrap, so a
// change there is logged as requiring a restart.
func (a *Application) handleConfigChange() {
	reloaded, err := config.LoadConfig(a.configDir)
	if err != nil {
		logging.Warn("App", "Ignoring config change, reload failed: %v", err)
		return
	}
	if err := reloaded.Validate(); err != nil {
		logging.Warn("App", "Ignoring config change, validation failed: %v", err)
		return
	}

	if reloaded.LogLevel != a.cfg.LogLevel {
		logging.Init(logging.ParseLevel(reloaded.LogLevel), os.Stdout)
		a.cfg.LogLevel = reloaded.LogLevel
		logging.Info("App", "Log level changed to %s", reloaded.LogLevel)
	}

	if reloaded.Provider != a.cfg.Provider {
		logging.Warn("App", "Provider configuration changed on disk, restart to apply")
	}
	logging.Info("App", "Configuration reloaded")
}
