package extension

import "time"

// Config holds the Tally extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tally" or "tally" keys).
type Config struct {
	// DisableRoutes prevents the HTTP API from being built and provided.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for tally routes (default: "/tally").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// SimplifierGuardFactor bounds the simplifier at factor × members
	// iterations per currency (default: 10).
	SimplifierGuardFactor int `json:"simplifier_guard_factor" mapstructure:"simplifier_guard_factor" yaml:"simplifier_guard_factor"`

	// CanonicalTransfers sorts every transfer plan by (from, to).
	CanonicalTransfers bool `json:"canonical_transfers" mapstructure:"canonical_transfers" yaml:"canonical_transfers"`

	// PluginTimeout bounds a single plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// CurrencyPrecision overrides the fraction digits of individual
	// currency codes, e.g. {"XTS": 4}.
	CurrencyPrecision map[string]int `json:"currency_precision" mapstructure:"currency_precision" yaml:"currency_precision"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:              "/tally",
		SimplifierGuardFactor: 10,
		PluginTimeout:         5 * time.Second,
	}
}
