package config

import (
	"sort"
	"time"
)

// Config is the top-level configuration structure for agentauth.
type Config struct {
	Provider ProviderConfig      `yaml:"provider"`
	Services map[string][]string `yaml:"services,omitempty"`
	Callback CallbackConfig      `yaml:"callback,omitempty"`
	Flow     FlowConfig          `yaml:"flow,omitempty"`
	Notify   NotifyConfig        `yaml:"notify,omitempty"`
	Storage  StorageConfig       `yaml:"storage,omitempty"`
	LogLevel string              `yaml:"logLevel,omitempty"`
}

// ProviderConfig identifies the OAuth provider this subsystem is a client of.
// Either the three endpoint URLs or the issuer must be set; when only the
// issuer is present the endpoints are discovered from well-known metadata.
type ProviderConfig struct {
	ClientID              string `yaml:"clientId"`
	ClientSecret          string `yaml:"clientSecret"`
	Issuer                string `yaml:"issuer,omitempty"`
	AuthorizationEndpoint string `yaml:"authorizationEndpoint,omitempty"`
	TokenEndpoint         string `yaml:"tokenEndpoint,omitempty"`
	RevocationEndpoint    string `yaml:"revocationEndpoint,omitempty"`
}

// CallbackConfig configures the loopback callback listener.
type CallbackConfig struct {
	// Ports is the ordered list of candidate ports. The listener binds the
	// first one that is free.
	Ports []int `yaml:"ports,omitempty"`

	// Path is the HTTP path the provider redirects to (default: /oauth/callback).
	Path string `yaml:"path,omitempty"`
}

// FlowConfig configures pending-flow lifetimes.
type FlowConfig struct {
	// TTLSeconds is how long an authorization link stays valid (default: 300).
	TTLSeconds int `yaml:"ttlSeconds,omitempty"`

	// SweepSeconds is the expiry sweep interval (default: 60).
	SweepSeconds int `yaml:"sweepSeconds,omitempty"`
}

// TTL returns the pending-flow lifetime as a duration.
func (f FlowConfig) TTL() time.Duration {
	return time.Duration(f.TTLSeconds) * time.Second
}

// SweepInterval returns the expiry sweep interval as a duration.
func (f FlowConfig) SweepInterval() time.Duration {
	return time.Duration(f.SweepSeconds) * time.Second
}

// NotifyConfig configures outcome-notification delivery.
type NotifyConfig struct {
	// Endpoint is the message-pipeline URL that receives outcome
	// notifications as JSON POSTs. When empty, notifications are written to
	// the daemon's stdout instead.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// StorageConfig configures on-disk state locations.
type StorageConfig struct {
	// CredentialsDir holds one credential file per (agent, session, account),
	// partitioned by agent ID. Defaults to ~/.config/agentauth/credentials.
	CredentialsDir string `yaml:"credentialsDir,omitempty"`

	// SessionsDir holds the session records the daemon maintains.
	// Defaults to ~/.config/agentauth/sessions.
	SessionsDir string `yaml:"sessionsDir,omitempty"`
}

// ScopesFor maps a set of logical service names (e.g. "mail", "calendar") to
// the union of their provider scopes, preserving first-seen order and
// deduplicating. Unknown services are reported as a validation error.
func (c *Config) ScopesFor(services []string) ([]string, error) {
	var errs ValidationErrors
	seen := make(map[string]bool)
	var scopes []string

	for _, service := range services {
		mapped, ok := c.Services[service]
		if !ok {
			errs.Add("services", "unknown service '"+service+"'", service)
			continue
		}
		for _, scope := range mapped {
			if !seen[scope] {
				seen[scope] = true
				scopes = append(scopes, scope)
			}
		}
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return scopes, nil
}

// ServicesForScopes performs the reverse mapping: given the scopes a provider
// actually granted, it returns the logical services that are fully covered,
// in sorted order.
func (c *Config) ServicesForScopes(scopes []string) []string {
	granted := make(map[string]bool, len(scopes))
	for _, scope := range scopes {
		granted[scope] = true
	}

	var services []string
	for service, mapped := range c.Services {
		if len(mapped) == 0 {
			continue
		}
		covered := true
		for _, scope := range mapped {
			if !granted[scope] {
				covered = false
				break
			}
		}
		if covered {
			services = append(services, service)
		}
	}
	sort.Strings(services)
	return services
}

// Validate checks the configuration for structural problems. It returns a
// ValidationErrors value listing every problem found, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Provider.ClientID == "" {
		errs.Add("provider.clientId", "is required")
	}
	if c.Provider.ClientSecret == "" {
		errs.Add("provider.clientSecret", "is required")
	}
	if c.Provider.Issuer == "" && (c.Provider.AuthorizationEndpoint == "" || c.Provider.TokenEndpoint == "") {
		errs.Add("provider", "either issuer or both authorizationEndpoint and tokenEndpoint must be set")
	}
	if len(c.Callback.Ports) == 0 {
		errs.Add("callback.ports", "must list at least one candidate port")
	}
	for _, port := range c.Callback.Ports {
		if port < 1 || port > 65535 {
			errs.Add("callback.ports", "port out of range", port)
		}
	}
	if c.Flow.TTLSeconds < 0 {
		errs.Add("flow.ttlSeconds", "must not be negative", c.Flow.TTLSeconds)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
