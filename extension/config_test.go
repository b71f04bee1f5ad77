package extension

import (
	"testing"
	"time"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{CanonicalTransfers: true})

	if cfg.BasePath != "/tally" {
		t.Errorf("BasePath = %q, want /tally", cfg.BasePath)
	}
	if cfg.SimplifierGuardFactor != 10 {
		t.Errorf("SimplifierGuardFactor = %d, want 10", cfg.SimplifierGuardFactor)
	}
	if cfg.PluginTimeout != 5*time.Second {
		t.Errorf("PluginTimeout = %v, want 5s", cfg.PluginTimeout)
	}
	if !cfg.CanonicalTransfers {
		t.Error("CanonicalTransfers should survive the merge")
	}
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{
		BasePath:          "/money",
		CurrencyPrecision: map[string]int{"XTS": 4},
	}
	programmatic := Config{
		BasePath:              "/ignored",
		DisableMigrate:        true,
		SimplifierGuardFactor: 3,
		CurrencyPrecision:     map[string]int{"XTS": 1, "XAU": 6},
	}

	cfg := mergeConfigurations(yaml, programmatic)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"base path from yaml", cfg.BasePath, "/money"},
		{"migrate flag from options", cfg.DisableMigrate, true},
		{"guard factor fills gap", cfg.SimplifierGuardFactor, 3},
		{"yaml precision wins", cfg.CurrencyPrecision["XTS"], 4},
		{"options add precision", cfg.CurrencyPrecision["XAU"], 6},
		{"timeout default", cfg.PluginTimeout, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestOptionsApply(t *testing.T) {
	e := New(
		WithDisableRoutes(),
		WithCanonicalTransfers(),
		WithCurrencyPrecision("XTS", 4),
		WithPluginTimeout(time.Second),
	)
	if !e.config.DisableRoutes || !e.config.CanonicalTransfers {
		t.Errorf("flags not applied: %+v", e.config)
	}
	if e.config.CurrencyPrecision["XTS"] != 4 || e.config.PluginTimeout != time.Second {
		t.Errorf("values not applied: %+v", e.config)
	}
	if e.Engine() != nil {
		t.Error("engine must be nil before Register")
	}
}
