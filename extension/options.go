package extension

import (
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/store"
)

// Option configures the Tally Forge extension.
type Option func(*Extension)

// WithStore sets the store for the tally engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithDirectory sets the member directory used to resolve scopes.
func WithDirectory(d scope.Directory) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, tally.WithDirectory(d))
	}
}

// WithTallyOption passes a tally.Option through to the underlying engine.
func WithTallyOption(opt tally.Option) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, opt)
	}
}

// WithPlugin registers a tally plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, tally.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents the HTTP API from being built.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for tally routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithSimplifierGuardFactor sets the simplifier iteration guard factor.
func WithSimplifierGuardFactor(factor int) Option {
	return func(e *Extension) { e.config.SimplifierGuardFactor = factor }
}

// WithCanonicalTransfers sorts every transfer plan by (from, to).
func WithCanonicalTransfers() Option {
	return func(e *Extension) { e.config.CanonicalTransfers = true }
}

// WithPluginTimeout sets the per-hook timeout.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithCurrencyPrecision overrides the fraction digits of one currency.
func WithCurrencyPrecision(code string, digits int) Option {
	return func(e *Extension) {
		if e.config.CurrencyPrecision == nil {
			e.config.CurrencyPrecision = make(map[string]int)
		}
		e.config.CurrencyPrecision[code] = digits
	}
}
