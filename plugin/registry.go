package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/scope"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery so emitting an event never type-asserts.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	// Type-cached plugin lists for efficient dispatch
	onInit                  []OnInit
	onShutdown              []OnShutdown
	onExpenseCreated        []OnExpenseCreated
	onExpenseUpdated        []OnExpenseUpdated
	onExpenseDeleted        []OnExpenseDeleted
	onSettlementRecorded    []OnSettlementRecorded
	onScopeSettled          []OnScopeSettled
	onSimplificationSkipped []OnSimplificationSkipped
	onInstrumentCreated     []OnInstrumentCreated
	onInstrumentDeleted     []OnInstrumentDeleted
	onDefaultChanged        []OnDefaultChanged
	onLedgerMutated         []OnLedgerMutated
	onTransferCompleted     []OnTransferCompleted
	onInsufficientBalance   []OnInsufficientBalance
	precisionProviders      []PrecisionProvider
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnExpenseCreated); ok {
		r.onExpenseCreated = append(r.onExpenseCreated, v)
	}
	if v, ok := p.(OnExpenseUpdated); ok {
		r.onExpenseUpdated = append(r.onExpenseUpdated, v)
	}
	if v, ok := p.(OnExpenseDeleted); ok {
		r.onExpenseDeleted = append(r.onExpenseDeleted, v)
	}
	if v, ok := p.(OnSettlementRecorded); ok {
		r.onSettlementRecorded = append(r.onSettlementRecorded, v)
	}
	if v, ok := p.(OnScopeSettled); ok {
		r.onScopeSettled = append(r.onScopeSettled, v)
	}
	if v, ok := p.(OnSimplificationSkipped); ok {
		r.onSimplificationSkipped = append(r.onSimplificationSkipped, v)
	}
	if v, ok := p.(OnInstrumentCreated); ok {
		r.onInstrumentCreated = append(r.onInstrumentCreated, v)
	}
	if v, ok := p.(OnInstrumentDeleted); ok {
		r.onInstrumentDeleted = append(r.onInstrumentDeleted, v)
	}
	if v, ok := p.(OnDefaultChanged); ok {
		r.onDefaultChanged = append(r.onDefaultChanged, v)
	}
	if v, ok := p.(OnLedgerMutated); ok {
		r.onLedgerMutated = append(r.onLedgerMutated, v)
	}
	if v, ok := p.(OnTransferCompleted); ok {
		r.onTransferCompleted = append(r.onTransferCompleted, v)
	}
	if v, ok := p.(OnInsufficientBalance); ok {
		r.onInsufficientBalance = append(r.onInsufficientBalance, v)
	}
	if v, ok := p.(PrecisionProvider); ok {
		r.precisionProviders = append(r.precisionProviders, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

var hookTypes = []struct {
	name string
	typ  reflect.Type
}{
	{"OnInit", reflect.TypeFor[OnInit]()},
	{"OnShutdown", reflect.TypeFor[OnShutdown]()},
	{"OnExpenseCreated", reflect.TypeFor[OnExpenseCreated]()},
	{"OnExpenseUpdated", reflect.TypeFor[OnExpenseUpdated]()},
	{"OnExpenseDeleted", reflect.TypeFor[OnExpenseDeleted]()},
	{"OnSettlementRecorded", reflect.TypeFor[OnSettlementRecorded]()},
	{"OnScopeSettled", reflect.TypeFor[OnScopeSettled]()},
	{"OnSimplificationSkipped", reflect.TypeFor[OnSimplificationSkipped]()},
	{"OnInstrumentCreated", reflect.TypeFor[OnInstrumentCreated]()},
	{"OnInstrumentDeleted", reflect.TypeFor[OnInstrumentDeleted]()},
	{"OnDefaultChanged", reflect.TypeFor[OnDefaultChanged]()},
	{"OnLedgerMutated", reflect.TypeFor[OnLedgerMutated]()},
	{"OnTransferCompleted", reflect.TypeFor[OnTransferCompleted]()},
	{"OnInsufficientBalance", reflect.TypeFor[OnInsufficientBalance]()},
	{"PrecisionProvider", reflect.TypeFor[PrecisionProvider]()},
}

// implementedInterfaces returns the hook interfaces p implements.
func implementedInterfaces(p Plugin) []string {
	var out []string
	v := reflect.TypeOf(p)
	for _, h := range hookTypes {
		if v.Implements(h.typ) {
			out = append(out, h.name)
		}
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// FractionDigits asks the precision providers in registration order.
func (r *Registry) FractionDigits(code string) (int, bool) {
	r.mu.RLock()
	providers := r.precisionProviders
	r.mu.RUnlock()

	for _, p := range providers {
		if d, ok := p.FractionDigits(code); ok {
			return d, true
		}
	}
	return 0, false
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit calls fn for every cached plugin. Failures are logged and never reach
// the caller.
func emit[T Plugin](r *Registry, ctx context.Context, hook string, cached *[]T, fn func(T) error) {
	r.mu.RLock()
	plugins := *cached
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(r, ctx, "OnInit", &r.onInit, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(r, ctx, "OnShutdown", &r.onShutdown, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitExpenseCreated emits an expense created event.
func (r *Registry) EmitExpenseCreated(ctx context.Context, e *expense.Expense) {
	emit(r, ctx, "OnExpenseCreated", &r.onExpenseCreated, func(p OnExpenseCreated) error {
		return p.OnExpenseCreated(ctx, e)
	})
}

// EmitExpenseUpdated emits an expense updated event.
func (r *Registry) EmitExpenseUpdated(ctx context.Context, before, after *expense.Expense) {
	emit(r, ctx, "OnExpenseUpdated", &r.onExpenseUpdated, func(p OnExpenseUpdated) error {
		return p.OnExpenseUpdated(ctx, before, after)
	})
}

// EmitExpenseDeleted emits an expense deleted event.
func (r *Registry) EmitExpenseDeleted(ctx context.Context, e *expense.Expense) {
	emit(r, ctx, "OnExpenseDeleted", &r.onExpenseDeleted, func(p OnExpenseDeleted) error {
		return p.OnExpenseDeleted(ctx, e)
	})
}

// EmitSettlementRecorded emits a settlement recorded event.
func (r *Registry) EmitSettlementRecorded(ctx context.Context, e *expense.Expense, s scope.Scope) {
	emit(r, ctx, "OnSettlementRecorded", &r.onSettlementRecorded, func(p OnSettlementRecorded) error {
		return p.OnSettlementRecorded(ctx, e, s)
	})
}

// EmitScopeSettled emits a scope settled event.
func (r *Registry) EmitScopeSettled(ctx context.Context, s scope.Scope, currency string, marked int64) {
	emit(r, ctx, "OnScopeSettled", &r.onScopeSettled, func(p OnScopeSettled) error {
		return p.OnScopeSettled(ctx, s, currency, marked)
	})
}

// EmitSimplificationSkipped emits a simplification skipped event.
func (r *Registry) EmitSimplificationSkipped(ctx context.Context, s scope.Scope, currency string, err error) {
	emit(r, ctx, "OnSimplificationSkipped", &r.onSimplificationSkipped, func(p OnSimplificationSkipped) error {
		return p.OnSimplificationSkipped(ctx, s, currency, err)
	})
}

// EmitInstrumentCreated emits an instrument created event.
func (r *Registry) EmitInstrumentCreated(ctx context.Context, inst *instrument.Instrument) {
	emit(r, ctx, "OnInstrumentCreated", &r.onInstrumentCreated, func(p OnInstrumentCreated) error {
		return p.OnInstrumentCreated(ctx, inst)
	})
}

// EmitInstrumentDeleted emits an instrument deleted event.
func (r *Registry) EmitInstrumentDeleted(ctx context.Context, instID id.InstrumentID) {
	emit(r, ctx, "OnInstrumentDeleted", &r.onInstrumentDeleted, func(p OnInstrumentDeleted) error {
		return p.OnInstrumentDeleted(ctx, instID)
	})
}

// EmitDefaultChanged emits a default flag changed event.
func (r *Registry) EmitDefaultChanged(ctx context.Context, ownerID string, instID id.InstrumentID, flag instrument.DefaultFlag) {
	emit(r, ctx, "OnDefaultChanged", &r.onDefaultChanged, func(p OnDefaultChanged) error {
		return p.OnDefaultChanged(ctx, ownerID, instID, flag)
	})
}

// EmitLedgerMutated emits a ledger mutation event.
func (r *Registry) EmitLedgerMutated(ctx context.Context, tx *instrument.Transaction) {
	emit(r, ctx, "OnLedgerMutated", &r.onLedgerMutated, func(p OnLedgerMutated) error {
		return p.OnLedgerMutated(ctx, tx)
	})
}

// EmitTransferCompleted emits a transfer completed event.
func (r *Registry) EmitTransferCompleted(ctx context.Context, out, in *instrument.Transaction) {
	emit(r, ctx, "OnTransferCompleted", &r.onTransferCompleted, func(p OnTransferCompleted) error {
		return p.OnTransferCompleted(ctx, out, in)
	})
}

// EmitInsufficientBalance emits an insufficient balance event.
func (r *Registry) EmitInsufficientBalance(ctx context.Context, instID id.InstrumentID, currency string, bucket instrument.Bucket, amount int64) {
	emit(r, ctx, "OnInsufficientBalance", &r.onInsufficientBalance, func(p OnInsufficientBalance) error {
		return p.OnInsufficientBalance(ctx, instID, currency, bucket, amount)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block a ledger operation.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(r.timeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
