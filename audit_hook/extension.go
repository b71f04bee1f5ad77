// Package audithook bridges Tally lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/scope"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnExpenseCreated        = (*Extension)(nil)
	_ plugin.OnExpenseUpdated        = (*Extension)(nil)
	_ plugin.OnExpenseDeleted        = (*Extension)(nil)
	_ plugin.OnSettlementRecorded    = (*Extension)(nil)
	_ plugin.OnScopeSettled          = (*Extension)(nil)
	_ plugin.OnSimplificationSkipped = (*Extension)(nil)
	_ plugin.OnInstrumentCreated     = (*Extension)(nil)
	_ plugin.OnInstrumentDeleted     = (*Extension)(nil)
	_ plugin.OnDefaultChanged        = (*Extension)(nil)
	_ plugin.OnLedgerMutated         = (*Extension)(nil)
	_ plugin.OnTransferCompleted     = (*Extension)(nil)
	_ plugin.OnInsufficientBalance   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Tally lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Expense lifecycle hooks
// ──────────────────────────────────────────────────

// OnExpenseCreated implements plugin.OnExpenseCreated.
func (e *Extension) OnExpenseCreated(ctx context.Context, exp *expense.Expense) error {
	return e.record(ctx, ActionExpenseCreated, SeverityInfo, OutcomeSuccess,
		ResourceExpense, exp.ID.String(), CategoryExpense, nil,
		expenseMeta(exp)...,
	)
}

// OnExpenseUpdated implements plugin.OnExpenseUpdated.
func (e *Extension) OnExpenseUpdated(ctx context.Context, before, after *expense.Expense) error {
	return e.record(ctx, ActionExpenseUpdated, SeverityInfo, OutcomeSuccess,
		ResourceExpense, after.ID.String(), CategoryExpense, nil,
		append(expenseMeta(after),
			"previous_amount", before.Amount.String(),
			"previous_currency", before.Currency,
		)...,
	)
}

// OnExpenseDeleted implements plugin.OnExpenseDeleted.
func (e *Extension) OnExpenseDeleted(ctx context.Context, exp *expense.Expense) error {
	return e.record(ctx, ActionExpenseDeleted, SeverityWarning, OutcomeSuccess,
		ResourceExpense, exp.ID.String(), CategoryExpense, nil,
		expenseMeta(exp)...,
	)
}

// ──────────────────────────────────────────────────
// Settlement lifecycle hooks
// ──────────────────────────────────────────────────

// OnSettlementRecorded implements plugin.OnSettlementRecorded.
func (e *Extension) OnSettlementRecorded(ctx context.Context, exp *expense.Expense, s scope.Scope) error {
	return e.record(ctx, ActionSettlementRecorded, SeverityInfo, OutcomeSuccess,
		ResourceExpense, exp.ID.String(), CategorySettlement, nil,
		append(expenseMeta(exp), "scope", s.Key())...,
	)
}

// OnScopeSettled implements plugin.OnScopeSettled.
func (e *Extension) OnScopeSettled(ctx context.Context, s scope.Scope, currency string, marked int64) error {
	return e.record(ctx, ActionScopeSettled, SeverityInfo, OutcomeSuccess,
		ResourceScope, s.Key(), CategorySettlement, nil,
		"currency", currency,
		"marked", marked,
	)
}

// OnSimplificationSkipped implements plugin.OnSimplificationSkipped.
func (e *Extension) OnSimplificationSkipped(ctx context.Context, s scope.Scope, currency string, err error) error {
	return e.record(ctx, ActionSimplificationSkipped, SeverityError, OutcomePartial,
		ResourceScope, s.Key(), CategorySettlement, err,
		"currency", currency,
	)
}

// ──────────────────────────────────────────────────
// Instrument lifecycle hooks
// ──────────────────────────────────────────────────

// OnInstrumentCreated implements plugin.OnInstrumentCreated.
func (e *Extension) OnInstrumentCreated(ctx context.Context, inst *instrument.Instrument) error {
	return e.record(ctx, ActionInstrumentCreated, SeverityInfo, OutcomeSuccess,
		ResourceInstrument, inst.ID.String(), CategoryLedger, nil,
		"owner_id", inst.OwnerID,
		"type", string(inst.Type),
	)
}

// OnInstrumentDeleted implements plugin.OnInstrumentDeleted.
func (e *Extension) OnInstrumentDeleted(ctx context.Context, instID id.InstrumentID) error {
	return e.record(ctx, ActionInstrumentDeleted, SeverityWarning, OutcomeSuccess,
		ResourceInstrument, instID.String(), CategoryLedger, nil,
	)
}

// OnDefaultChanged implements plugin.OnDefaultChanged.
func (e *Extension) OnDefaultChanged(ctx context.Context, ownerID string, instID id.InstrumentID, flag instrument.DefaultFlag) error {
	return e.record(ctx, ActionDefaultChanged, SeverityInfo, OutcomeSuccess,
		ResourceInstrument, instID.String(), CategoryLedger, nil,
		"owner_id", ownerID,
		"flag", string(flag),
	)
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnLedgerMutated implements plugin.OnLedgerMutated.
func (e *Extension) OnLedgerMutated(ctx context.Context, tx *instrument.Transaction) error {
	return e.record(ctx, ActionLedgerMutated, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, tx.ID.String(), CategoryLedger, nil,
		txMeta(tx)...,
	)
}

// OnTransferCompleted implements plugin.OnTransferCompleted.
func (e *Extension) OnTransferCompleted(ctx context.Context, out, in *instrument.Transaction) error {
	return e.record(ctx, ActionTransferCompleted, SeverityInfo, OutcomeSuccess,
		ResourceTransaction, out.ID.String(), CategoryLedger, nil,
		"from", out.InstrumentID.String(),
		"to", in.InstrumentID.String(),
		"in_transaction_id", in.ID.String(),
		"currency", out.Currency,
		"amount", in.Amount,
	)
}

// OnInsufficientBalance implements plugin.OnInsufficientBalance.
func (e *Extension) OnInsufficientBalance(ctx context.Context, instID id.InstrumentID, currency string, bucket instrument.Bucket, amount int64) error {
	return e.record(ctx, ActionInsufficientBalance, SeverityWarning, OutcomeFailure,
		ResourceInstrument, instID.String(), CategoryLedger, nil,
		"currency", currency,
		"bucket", string(bucket),
		"amount", amount,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func expenseMeta(exp *expense.Expense) []any {
	return []any{
		"amount", exp.Amount.String(),
		"currency", exp.Currency,
		"type", string(exp.Type),
		"group_id", exp.GroupID,
		"pair_key", exp.PairKey,
	}
}

func txMeta(tx *instrument.Transaction) []any {
	return []any{
		"instrument_id", tx.InstrumentID.String(),
		"currency", tx.Currency,
		"kind", string(tx.Kind),
		"bucket", string(tx.Bucket),
		"amount", tx.Amount,
		"available_after", tx.BalanceAfter.Available,
		"pending_after", tx.BalanceAfter.Pending,
	}
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
