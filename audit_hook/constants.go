package audithook

// Action constants for audit events.
const (
	// Expense actions
	ActionExpenseCreated = "expense.created"
	ActionExpenseUpdated = "expense.updated"
	ActionExpenseDeleted = "expense.deleted"

	// Settlement actions
	ActionSettlementRecorded    = "settlement.recorded"
	ActionScopeSettled          = "scope.settled"
	ActionSimplificationSkipped = "simplification.skipped"

	// Instrument actions
	ActionInstrumentCreated = "instrument.created"
	ActionInstrumentDeleted = "instrument.deleted"
	ActionDefaultChanged    = "instrument.default_changed"

	// Ledger actions
	ActionLedgerMutated       = "ledger.mutated"
	ActionTransferCompleted   = "ledger.transfer_completed"
	ActionInsufficientBalance = "ledger.insufficient_balance"
)

// Resource constants for audit events.
const (
	ResourceExpense     = "expense"
	ResourceScope       = "scope"
	ResourceInstrument  = "instrument"
	ResourceTransaction = "transaction"
)

// Category constants for audit events.
const (
	CategoryExpense    = "expense"
	CategorySettlement = "settlement"
	CategoryLedger     = "ledger"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
