package app

import (
	"fmt"
	"io"
	"os"

	"agentauth/internal/authservice"
	"agentauth/internal/callback"
	"agentauth/internal/config"
	"agentauth/internal/credstore"
	"agentauth/internal/flow"
	"agentauth/internal/notify"
	"agentauth/internal/session"
	"agentauth/pkg/logging"
	"agentauth/pkg/oauth"
)

// Config holds the bootstrap options taken from CLI flags.
type Config struct {
	// Debug forces debug-level logging regardless of the config file.
	Debug bool

	// Silent suppresses all log output. Used by CLI commands that produce
	// their own formatted output.
	Silent bool

	// ConfigPath overrides the default configuration directory.
	ConfigPath string
}

// NewConfig creates a bootstrap configuration from CLI flags.
func NewConfig(debug, silent bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		Silent:     silent,
		ConfigPath: configPath,
	}
}

// Application wires the authorization subsystem together: provider client,
// flow registry, credential store, session store, notification dispatcher,
// orchestration service and loopback callback listener.
type Application struct {
	cfg       *config.Config
	configDir string

	Registry *flow.Registry
	Creds    *credstore.Store
	Sessions session.Store
	Service  *authservice.Service
	Callback *callback.Server
}

// NewApplication performs the bootstrap sequence: initialize logging, load
// and validate configuration, then construct every component. Nothing
// listens or runs until Run (or the individual Start methods) is called.
func NewApplication(appCfg *Config) (*Application, error) {
	var logOutput io.Writer = os.Stdout
	if appCfg.Silent {
		logOutput = io.Discard
	}

	configDir := appCfg.ConfigPath
	if configDir == "" {
		configDir = config.GetDefaultConfigPathOrPanic()
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", configDir, err)
	}

	logLevel := logging.ParseLevel(cfg.LogLevel)
	if appCfg.Debug {
		logLevel = logging.LevelDebug
	}
	logging.Init(logLevel, logOutput)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := oauth.NewClient(cfg.Provider.ClientID, cfg.Provider.ClientSecret, oauth.Endpoints{
		Issuer:                cfg.Provider.Issuer,
		AuthorizationEndpoint: cfg.Provider.AuthorizationEndpoint,
		TokenEndpoint:         cfg.Provider.TokenEndpoint,
		RevocationEndpoint:    cfg.Provider.RevocationEndpoint,
	})

	creds, err := credstore.NewStore(cfg.Storage.CredentialsDir, client)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	sessions, err := session.NewFileStore(cfg.Storage.SessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	var enqueuer notify.Enqueuer
	if cfg.Notify.Endpoint != "" {
		enqueuer = notify.NewHTTPEnqueuer(cfg.Notify.Endpoint)
	} else {
		enqueuer = notify.NewWriterEnqueuer(os.Stdout)
	}

	registry := flow.NewRegistry()
	service := authservice.NewService(&cfg, registry, creds, client, notify.NewDispatcher(sessions, enqueuer), sessions)
	server := callback.NewServer(cfg.Callback.Ports, cfg.Callback.Path, registry, service)

	return &Application{
		cfg:       &cfg,
		configDir: configDir,
		Registry:  registry,
		Creds:     creds,
		Sessions:  sessions,
		Service:   service,
		Callback:  server,
	}, nil
}

// Configuration returns the loaded configuration.
func (a *Application) Configuration() *config.Config {
	return a.cfg
}
