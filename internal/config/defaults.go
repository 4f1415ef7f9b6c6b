package config

// Default service-to-scope mapping. The logical service names are what agents
// request; the scope URIs are what the provider understands. A deployment
// overrides this map in config.yaml for its actual provider.
var defaultServices = map[string][]string{
	"mail":     {"https://api.provider.example/auth/mail.read", "https://api.provider.example/auth/mail.send"},
	"calendar": {"https://api.provider.example/auth/calendar.events"},
	"files":    {"https://api.provider.example/auth/files.read"},
}

// defaultCallbackPorts is the ordered candidate list for the loopback
// listener. High, uncommon ports reduce collisions with dev servers.
var defaultCallbackPorts = []int{8700, 8701, 8702, 8710, 8720}

const (
	// DefaultCallbackPath is where the provider redirects after consent.
	DefaultCallbackPath = "/oauth/callback"

	// DefaultFlowTTLSeconds is how long an issued authorization link stays
	// valid. Five minutes covers a user switching to a browser and logging in.
	DefaultFlowTTLSeconds = 300

	// DefaultSweepSeconds is the pending-flow expiry sweep interval.
	DefaultSweepSeconds = 60
)

// GetDefaultConfig returns the built-in configuration. Callers overlay the
// user's config.yaml on top of this.
func GetDefaultConfig() Config {
	services := make(map[string][]string, len(defaultServices))
	for name, scopes := range defaultServices {
		services[name] = append([]string(nil), scopes...)
	}

	return Config{
		Services: services,
		Callback: CallbackConfig{
			Ports: append([]int(nil), defaultCallbackPorts...),
			Path:  DefaultCallbackPath,
		},
		Flow: FlowConfig{
			TTLSeconds:   DefaultFlowTTLSeconds,
			SweepSeconds: DefaultSweepSeconds,
		},
		LogLevel: "info",
	}
}
