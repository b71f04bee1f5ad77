package tally

import (
	"errors"
	"fmt"

	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/simplify"
	"github.com/xraph/tally/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = types.ErrNotFound
	ErrConflict      = types.ErrConflict
	ErrInvalidInput  = types.ErrInvalidInput
	ErrAlreadyExists = errors.New("tally: already exists")

	// Expense errors
	ErrExpenseNotFound = fmt.Errorf("%w: expense", ErrNotFound)
	ErrExpenseSettled  = fmt.Errorf("%w: expense is already settled", ErrConflict)
	ErrSettlementShape = expense.ErrSettlementShape

	// Scope errors
	ErrScopeNotFound = fmt.Errorf("%w: scope", ErrNotFound)
	ErrNotAMember    = errors.New("tally: member does not belong to scope")
	ErrScopeCurrency = errors.New("tally: currency does not match scope currency")

	// Simplifier errors
	ErrGuardExceeded = simplify.ErrGuardExceeded

	// Ledger errors
	ErrInstrumentNotFound   = fmt.Errorf("%w: instrument", ErrNotFound)
	ErrInstrumentInactive   = fmt.Errorf("%w: instrument is not active", ErrConflict)
	ErrInstrumentHasBalance = fmt.Errorf("%w: instrument still holds a balance", ErrConflict)
	ErrCurrencyNotAllowed   = errors.New("tally: currency not allowed on instrument")
	ErrCapability           = errors.New("tally: instrument lacks capability")
	ErrInsufficientBalance  = errors.New("tally: insufficient balance")

	// Store errors
	ErrStoreClosed       = errors.New("tally: store is closed")
	ErrTransactionFailed = errors.New("tally: transaction failed")
	ErrMigrationFailed   = errors.New("tally: migration failed")
)

// ValidationError represents a validation failure with details. It matches
// ErrInvalidInput.
type ValidationError = types.ValidationError

// InsufficientBalanceError carries the context of a refused decrement.
type InsufficientBalanceError struct {
	InstrumentID string
	Currency     string
	Bucket       instrument.Bucket
	Amount       int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("tally: insufficient %s balance on %s to move %d %s",
		e.Bucket, e.InstrumentID, e.Amount, e.Currency)
}

// Is makes InsufficientBalanceError match ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "tally: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("tally: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the request conflicts with stored state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation returns true if the request was rejected before any mutation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNotAMember) ||
		errors.Is(err, ErrScopeCurrency) ||
		errors.Is(err, ErrCurrencyNotAllowed) ||
		errors.Is(err, ErrCapability)
}

// IsRetryable returns true if the error is temporary and the whole logical
// operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed)
}
