// Package plugin provides an extensible plugin system for Tally.
// Plugins can hook into expense, settlement and ledger events to extend
// functionality.
package plugin

import (
	"context"

	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/scope"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Expense hooks
// ──────────────────────────────────────────────────

// OnExpenseCreated is called after an expense is stored.
type OnExpenseCreated interface {
	Plugin
	OnExpenseCreated(ctx context.Context, e *expense.Expense) error
}

// OnExpenseUpdated is called after an expense edit is stored.
type OnExpenseUpdated interface {
	Plugin
	OnExpenseUpdated(ctx context.Context, before, after *expense.Expense) error
}

// OnExpenseDeleted is called after an expense is deleted.
type OnExpenseDeleted interface {
	Plugin
	OnExpenseDeleted(ctx context.Context, e *expense.Expense) error
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettlementRecorded is called for every settlement expense created.
type OnSettlementRecorded interface {
	Plugin
	OnSettlementRecorded(ctx context.Context, e *expense.Expense, s scope.Scope) error
}

// OnScopeSettled is called when a scope's unsettled expenses in one currency
// are marked settled.
type OnScopeSettled interface {
	Plugin
	OnScopeSettled(ctx context.Context, s scope.Scope, currency string, marked int64) error
}

// OnSimplificationSkipped is called when a currency hits the simplifier
// guard and its transfers are dropped from a plan.
type OnSimplificationSkipped interface {
	Plugin
	OnSimplificationSkipped(ctx context.Context, s scope.Scope, currency string, err error) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnInstrumentCreated is called after an instrument is stored.
type OnInstrumentCreated interface {
	Plugin
	OnInstrumentCreated(ctx context.Context, inst *instrument.Instrument) error
}

// OnInstrumentDeleted is called after an instrument is deleted.
type OnInstrumentDeleted interface {
	Plugin
	OnInstrumentDeleted(ctx context.Context, instID id.InstrumentID) error
}

// OnDefaultChanged is called after a default flag moves to an instrument.
type OnDefaultChanged interface {
	Plugin
	OnDefaultChanged(ctx context.Context, ownerID string, instID id.InstrumentID, flag instrument.DefaultFlag) error
}

// OnLedgerMutated is called for every journal row of a single-instrument
// operation.
type OnLedgerMutated interface {
	Plugin
	OnLedgerMutated(ctx context.Context, tx *instrument.Transaction) error
}

// OnTransferCompleted is called with both journal rows of a transfer.
type OnTransferCompleted interface {
	Plugin
	OnTransferCompleted(ctx context.Context, out, in *instrument.Transaction) error
}

// OnInsufficientBalance is called when a guarded decrement is refused.
type OnInsufficientBalance interface {
	Plugin
	OnInsufficientBalance(ctx context.Context, instID id.InstrumentID, currency string, bucket instrument.Bucket, amount int64) error
}

// ──────────────────────────────────────────────────
// Precision providers
// ──────────────────────────────────────────────────

// PrecisionProvider supplies fraction digits for currencies the built-in
// table does not know or should override.
type PrecisionProvider interface {
	Plugin
	FractionDigits(code string) (digits int, ok bool)
}
