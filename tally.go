package tally

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tally/currency"
	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/simplify"
	"github.com/xraph/tally/store"
)

// Tally is the shared-expense and balance-ledger engine.
type Tally struct {
	store       store.Store
	expenses    expense.Store
	instruments instrument.Store
	plugins     *plugin.Registry
	logger      *slog.Logger
	resolver    currency.Resolver
	directory   scope.Directory

	simplifyOpts simplify.Options
	clock        func() time.Time

	clockMu sync.Mutex
	last    time.Time
}

// New creates a new Tally instance.
func New(s store.Store, opts ...Option) *Tally {
	t := &Tally{
		store:       s,
		expenses:    store.Expenses(s),
		instruments: store.Instruments(s),
		plugins:     plugin.NewRegistry(),
		logger:      slog.Default(),
		resolver:    currency.Default(),
		directory:   scope.NewStaticDirectory(),
		clock:       time.Now,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Option configures a Tally instance.
type Option func(*Tally)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tally) {
		t.logger = logger
		t.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(t *Tally) {
		_ = t.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithPluginTimeout bounds every plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(t *Tally) {
		t.plugins.WithTimeout(d)
	}
}

// WithResolver sets the currency precision resolver.
func WithResolver(r currency.Resolver) Option {
	return func(t *Tally) {
		t.resolver = r
	}
}

// WithDirectory sets the member directory used to resolve scope rosters.
func WithDirectory(d scope.Directory) Option {
	return func(t *Tally) {
		t.directory = d
	}
}

// WithClock sets the time source. Timestamps handed out by the engine are
// still strictly increasing.
func WithClock(clock func() time.Time) Option {
	return func(t *Tally) {
		t.clock = clock
	}
}

// WithSimplifierGuardFactor overrides the simplifier's iteration guard factor.
func WithSimplifierGuardFactor(factor int) Option {
	return func(t *Tally) {
		t.simplifyOpts.GuardFactor = factor
	}
}

// WithCanonicalTransfers sorts every transfer plan by (from, to).
func WithCanonicalTransfers(canonical bool) Option {
	return func(t *Tally) {
		t.simplifyOpts.Canonical = canonical
	}
}

// Start migrates the store and initializes plugins.
func (t *Tally) Start(ctx context.Context) error {
	if err := t.store.Migrate(ctx); err != nil {
		return err
	}

	t.plugins.EmitInit(ctx, t)

	t.logger.Info("tally started",
		"plugins", t.plugins.Count(),
		"guard_factor", t.guardFactor(),
		"canonical_transfers", t.simplifyOpts.Canonical,
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (t *Tally) Stop() error {
	t.plugins.EmitShutdown(context.Background())
	return t.store.Close()
}

// Store returns the underlying store.
func (t *Tally) Store() store.Store { return t.store }

// Plugins returns the plugin registry.
func (t *Tally) Plugins() *plugin.Registry { return t.plugins }

// Resolver returns the effective precision resolver, which consults
// precision plugins before the configured resolver.
func (t *Tally) Resolver() currency.Resolver { return precisionChain{t.plugins, t.resolver} }

// Directory returns the member directory.
func (t *Tally) Directory() scope.Directory { return t.directory }

func (t *Tally) guardFactor() int {
	if t.simplifyOpts.GuardFactor > 0 {
		return t.simplifyOpts.GuardFactor
	}
	return simplify.DefaultGuardFactor
}

// now returns a UTC millisecond timestamp strictly after the previous one, so
// createdAt cursors never tie within one engine.
func (t *Tally) now() time.Time {
	t.clockMu.Lock()
	defer t.clockMu.Unlock()

	ts := t.clock().UTC().Truncate(time.Millisecond)
	if !ts.After(t.last) {
		ts = t.last.Add(time.Millisecond)
	}
	t.last = ts
	return ts
}

type precisionChain struct {
	plugins *plugin.Registry
	base    currency.Resolver
}

func (c precisionChain) FractionDigits(code string) int {
	if d, ok := c.plugins.FractionDigits(currency.Normalize(code)); ok {
		return d
	}
	return c.base.FractionDigits(code)
}
