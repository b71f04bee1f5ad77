// Package observability provides a metrics extension for Tally that records
// lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/scope"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnExpenseCreated        = (*MetricsExtension)(nil)
	_ plugin.OnExpenseUpdated        = (*MetricsExtension)(nil)
	_ plugin.OnExpenseDeleted        = (*MetricsExtension)(nil)
	_ plugin.OnSettlementRecorded    = (*MetricsExtension)(nil)
	_ plugin.OnScopeSettled          = (*MetricsExtension)(nil)
	_ plugin.OnSimplificationSkipped = (*MetricsExtension)(nil)
	_ plugin.OnInstrumentCreated     = (*MetricsExtension)(nil)
	_ plugin.OnInstrumentDeleted     = (*MetricsExtension)(nil)
	_ plugin.OnLedgerMutated         = (*MetricsExtension)(nil)
	_ plugin.OnTransferCompleted     = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientBalance   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Tally plugin to track expense and ledger activity.
type MetricsExtension struct {
	factory MetricFactory

	// Expense metrics
	ExpenseCreated Counter
	ExpenseUpdated Counter
	ExpenseDeleted Counter

	// Settlement metrics
	SettlementRecorded    Counter
	ScopeSettled          Counter
	ExpensesMarkedSettled Histogram
	SimplificationSkipped Counter

	// Instrument metrics
	InstrumentCreated Counter
	InstrumentDeleted Counter

	// Ledger metrics
	LedgerMutations     Counter
	LedgerMutationSize  Histogram
	TransfersCompleted  Counter
	InsufficientBalance Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		ExpenseCreated: factory.Counter("tally.expense.created"),
		ExpenseUpdated: factory.Counter("tally.expense.updated"),
		ExpenseDeleted: factory.Counter("tally.expense.deleted"),

		SettlementRecorded:    factory.Counter("tally.settlement.recorded"),
		ScopeSettled:          factory.Counter("tally.scope.settled"),
		ExpensesMarkedSettled: factory.Histogram("tally.scope.settled.expenses"),
		SimplificationSkipped: factory.Counter("tally.simplification.skipped"),

		InstrumentCreated: factory.Counter("tally.instrument.created"),
		InstrumentDeleted: factory.Counter("tally.instrument.deleted"),

		LedgerMutations:     factory.Counter("tally.ledger.mutations"),
		LedgerMutationSize:  factory.Histogram("tally.ledger.mutation.minor_units"),
		TransfersCompleted:  factory.Counter("tally.ledger.transfers"),
		InsufficientBalance: factory.Counter("tally.ledger.insufficient_balance"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Expense hooks
// ──────────────────────────────────────────────────

// OnExpenseCreated implements plugin.OnExpenseCreated.
func (m *MetricsExtension) OnExpenseCreated(_ context.Context, _ *expense.Expense) error {
	m.ExpenseCreated.Inc()
	return nil
}

// OnExpenseUpdated implements plugin.OnExpenseUpdated.
func (m *MetricsExtension) OnExpenseUpdated(_ context.Context, _, _ *expense.Expense) error {
	m.ExpenseUpdated.Inc()
	return nil
}

// OnExpenseDeleted implements plugin.OnExpenseDeleted.
func (m *MetricsExtension) OnExpenseDeleted(_ context.Context, _ *expense.Expense) error {
	m.ExpenseDeleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Settlement hooks
// ──────────────────────────────────────────────────

// OnSettlementRecorded implements plugin.OnSettlementRecorded.
func (m *MetricsExtension) OnSettlementRecorded(_ context.Context, _ *expense.Expense, _ scope.Scope) error {
	m.SettlementRecorded.Inc()
	return nil
}

// OnScopeSettled implements plugin.OnScopeSettled.
func (m *MetricsExtension) OnScopeSettled(_ context.Context, _ scope.Scope, _ string, marked int64) error {
	m.ScopeSettled.Inc()
	m.ExpensesMarkedSettled.Observe(float64(marked))
	return nil
}

// OnSimplificationSkipped implements plugin.OnSimplificationSkipped.
func (m *MetricsExtension) OnSimplificationSkipped(_ context.Context, _ scope.Scope, _ string, _ error) error {
	m.SimplificationSkipped.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnInstrumentCreated implements plugin.OnInstrumentCreated.
func (m *MetricsExtension) OnInstrumentCreated(_ context.Context, _ *instrument.Instrument) error {
	m.InstrumentCreated.Inc()
	return nil
}

// OnInstrumentDeleted implements plugin.OnInstrumentDeleted.
func (m *MetricsExtension) OnInstrumentDeleted(_ context.Context, _ id.InstrumentID) error {
	m.InstrumentDeleted.Inc()
	return nil
}

// OnLedgerMutated implements plugin.OnLedgerMutated.
func (m *MetricsExtension) OnLedgerMutated(_ context.Context, tx *instrument.Transaction) error {
	m.LedgerMutations.Inc()
	amount := tx.Amount
	if amount < 0 {
		amount = -amount
	}
	m.LedgerMutationSize.Observe(float64(amount))
	return nil
}

// OnTransferCompleted implements plugin.OnTransferCompleted.
func (m *MetricsExtension) OnTransferCompleted(_ context.Context, _, _ *instrument.Transaction) error {
	m.TransfersCompleted.Inc()
	return nil
}

// OnInsufficientBalance implements plugin.OnInsufficientBalance.
func (m *MetricsExtension) OnInsufficientBalance(_ context.Context, _ id.InstrumentID, _ string, _ instrument.Bucket, _ int64) error {
	m.InsufficientBalance.Inc()
	return nil
}
