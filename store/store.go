// Package store defines the unified persistence contract of Tally. Backends
// live in the memory, postgres, sqlite and mongo subpackages.
package store

import (
	"context"
	"time"

	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
)

// Store is the unified storage interface for all Tally entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Expense methods
	CreateExpense(ctx context.Context, e *expense.Expense) error
	GetExpense(ctx context.Context, expenseID id.ExpenseID) (*expense.Expense, error)
	FindExpenses(ctx context.Context, f expense.Filter) ([]*expense.Expense, error)
	UpdateExpense(ctx context.Context, e *expense.Expense) error
	DeleteExpense(ctx context.Context, expenseID id.ExpenseID) error
	MarkSettled(ctx context.Context, ids []id.ExpenseID, at time.Time) (int64, error)
	CreateRevision(ctx context.Context, r *expense.Revision) error
	ListRevisions(ctx context.Context, expenseID id.ExpenseID) ([]*expense.Revision, error)

	// Instrument methods
	CreateInstrument(ctx context.Context, inst *instrument.Instrument) error
	GetInstrument(ctx context.Context, instID id.InstrumentID) (*instrument.Instrument, error)
	ListInstruments(ctx context.Context, ownerID string, opts instrument.ListOpts) ([]*instrument.Instrument, error)
	UpdateInstrument(ctx context.Context, inst *instrument.Instrument) error
	DeleteInstrument(ctx context.Context, instID id.InstrumentID) error
	SetDefault(ctx context.Context, ownerID string, instID id.InstrumentID, flag instrument.DefaultFlag) error

	// Balance ledger methods
	Balances(ctx context.Context, instID id.InstrumentID) ([]instrument.Balance, error)
	Apply(ctx context.Context, m instrument.Mutation) (*instrument.Transaction, error)
	Transfer(ctx context.Context, out, in instrument.Mutation) (*instrument.Transaction, *instrument.Transaction, error)
	ListTransactions(ctx context.Context, q instrument.TxQuery) ([]*instrument.Transaction, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Expenses adapts a Store to expense.Store.
func Expenses(s Store) expense.Store { return expenseView{s} }

// Instruments adapts a Store to instrument.Store.
func Instruments(s Store) instrument.Store { return instrumentView{s} }

type expenseView struct{ s Store }

func (v expenseView) Create(ctx context.Context, e *expense.Expense) error {
	return v.s.CreateExpense(ctx, e)
}

func (v expenseView) Get(ctx context.Context, expenseID id.ExpenseID) (*expense.Expense, error) {
	return v.s.GetExpense(ctx, expenseID)
}

func (v expenseView) Find(ctx context.Context, f expense.Filter) ([]*expense.Expense, error) {
	return v.s.FindExpenses(ctx, f)
}

func (v expenseView) Update(ctx context.Context, e *expense.Expense) error {
	return v.s.UpdateExpense(ctx, e)
}

func (v expenseView) Delete(ctx context.Context, expenseID id.ExpenseID) error {
	return v.s.DeleteExpense(ctx, expenseID)
}

func (v expenseView) MarkSettled(ctx context.Context, ids []id.ExpenseID, at time.Time) (int64, error) {
	return v.s.MarkSettled(ctx, ids, at)
}

func (v expenseView) CreateRevision(ctx context.Context, r *expense.Revision) error {
	return v.s.CreateRevision(ctx, r)
}

func (v expenseView) ListRevisions(ctx context.Context, expenseID id.ExpenseID) ([]*expense.Revision, error) {
	return v.s.ListRevisions(ctx, expenseID)
}

type instrumentView struct{ s Store }

func (v instrumentView) Create(ctx context.Context, inst *instrument.Instrument) error {
	return v.s.CreateInstrument(ctx, inst)
}

func (v instrumentView) Get(ctx context.Context, instID id.InstrumentID) (*instrument.Instrument, error) {
	return v.s.GetInstrument(ctx, instID)
}

func (v instrumentView) List(ctx context.Context, ownerID string, opts instrument.ListOpts) ([]*instrument.Instrument, error) {
	return v.s.ListInstruments(ctx, ownerID, opts)
}

func (v instrumentView) Update(ctx context.Context, inst *instrument.Instrument) error {
	return v.s.UpdateInstrument(ctx, inst)
}

func (v instrumentView) Delete(ctx context.Context, instID id.InstrumentID) error {
	return v.s.DeleteInstrument(ctx, instID)
}

func (v instrumentView) SetDefault(ctx context.Context, ownerID string, instID id.InstrumentID, flag instrument.DefaultFlag) error {
	return v.s.SetDefault(ctx, ownerID, instID, flag)
}

func (v instrumentView) Balances(ctx context.Context, instID id.InstrumentID) ([]instrument.Balance, error) {
	return v.s.Balances(ctx, instID)
}

func (v instrumentView) Apply(ctx context.Context, m instrument.Mutation) (*instrument.Transaction, error) {
	return v.s.Apply(ctx, m)
}

func (v instrumentView) Transfer(ctx context.Context, out, in instrument.Mutation) (*instrument.Transaction, *instrument.Transaction, error) {
	return v.s.Transfer(ctx, out, in)
}

func (v instrumentView) ListTransactions(ctx context.Context, q instrument.TxQuery) ([]*instrument.Transaction, error) {
	return v.s.ListTransactions(ctx, q)
}
