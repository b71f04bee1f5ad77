// Package memory is an in-process Store. Every operation runs inside one
// mutex critical section, which makes each ledger mutation atomic.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xraph/tally"
	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Expense storage
	expenses  map[string]*expense.Expense
	revisions map[string][]*expense.Revision

	// Instrument storage
	instruments map[string]*instrument.Instrument

	// Balance ledger: instrument id → currency → balance
	balances map[string]map[string]*instrument.Balance
	journal  []*instrument.Transaction

	closed bool
}

func New() *Store {
	return &Store{
		expenses:    make(map[string]*expense.Expense),
		revisions:   make(map[string][]*expense.Revision),
		instruments: make(map[string]*instrument.Instrument),
		balances:    make(map[string]map[string]*instrument.Balance),
	}
}

// ──────────────────────────────────────────────────
// Expense Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateExpense(_ context.Context, e *expense.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[e.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	s.expenses[e.ID.String()] = e.Clone()
	return nil
}

func (s *Store) GetExpense(_ context.Context, expenseID id.ExpenseID) (*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.expenses[expenseID.String()]; ok {
		return e.Clone(), nil
	}
	return nil, tally.ErrExpenseNotFound
}

func (s *Store) FindExpenses(_ context.Context, f expense.Filter) ([]*expense.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*expense.Expense
	for _, e := range s.expenses {
		if f.Match(e) {
			result = append(result, e.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return page(result, f.Offset, f.Limit), nil
}

func (s *Store) UpdateExpense(_ context.Context, e *expense.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[e.ID.String()]; !exists {
		return tally.ErrExpenseNotFound
	}
	s.expenses[e.ID.String()] = e.Clone()
	return nil
}

func (s *Store) DeleteExpense(_ context.Context, expenseID id.ExpenseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expenses[expenseID.String()]; !exists {
		return tally.ErrExpenseNotFound
	}
	delete(s.expenses, expenseID.String())
	return nil
}

func (s *Store) MarkSettled(_ context.Context, ids []id.ExpenseID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, eid := range ids {
		e, ok := s.expenses[eid.String()]
		if !ok || e.Settled {
			continue
		}
		settledAt := at
		e.Settled = true
		e.SettledAt = &settledAt
		e.UpdatedAt = at
		n++
	}
	return n, nil
}

func (s *Store) CreateRevision(_ context.Context, r *expense.Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.ExpenseID.String()
	s.revisions[key] = append(s.revisions[key], &expense.Revision{
		ID:        r.ID,
		ExpenseID: r.ExpenseID,
		Before:    r.Before.Clone(),
		After:     r.After.Clone(),
		EditedBy:  r.EditedBy,
		CreatedAt: r.CreatedAt,
	})
	return nil
}

func (s *Store) ListRevisions(_ context.Context, expenseID id.ExpenseID) ([]*expense.Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.revisions[expenseID.String()]), nil
}

// ──────────────────────────────────────────────────
// Instrument Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateInstrument(_ context.Context, inst *instrument.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instruments[inst.ID.String()]; exists {
		return tally.ErrAlreadyExists
	}
	s.instruments[inst.ID.String()] = cloneInstrument(inst)
	return nil
}

func (s *Store) GetInstrument(_ context.Context, instID id.InstrumentID) (*instrument.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if inst, ok := s.instruments[instID.String()]; ok {
		return cloneInstrument(inst), nil
	}
	return nil, tally.ErrInstrumentNotFound
}

func (s *Store) ListInstruments(_ context.Context, ownerID string, opts instrument.ListOpts) ([]*instrument.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*instrument.Instrument
	for _, inst := range s.instruments {
		if inst.OwnerID != ownerID {
			continue
		}
		if opts.Status != "" && inst.Status != opts.Status {
			continue
		}
		result = append(result, cloneInstrument(inst))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})

	return page(result, opts.Offset, opts.Limit), nil
}

func (s *Store) UpdateInstrument(_ context.Context, inst *instrument.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.instruments[inst.ID.String()]
	if !ok {
		return tally.ErrInstrumentNotFound
	}
	updated := cloneInstrument(inst)
	updated.IsDefaultSend = existing.IsDefaultSend
	updated.IsDefaultReceive = existing.IsDefaultReceive
	s.instruments[inst.ID.String()] = updated
	return nil
}

func (s *Store) DeleteInstrument(_ context.Context, instID id.InstrumentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instruments[instID.String()]; !ok {
		return tally.ErrInstrumentNotFound
	}
	delete(s.instruments, instID.String())
	delete(s.balances, instID.String())
	return nil
}

func (s *Store) SetDefault(_ context.Context, ownerID string, instID id.InstrumentID, flag instrument.DefaultFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.instruments[instID.String()]
	if !ok || target.OwnerID != ownerID {
		return tally.ErrInstrumentNotFound
	}

	for _, inst := range s.instruments {
		if inst.OwnerID != ownerID {
			continue
		}
		on := inst == target
		switch flag {
		case instrument.DefaultSend:
			inst.IsDefaultSend = on
		case instrument.DefaultReceive:
			inst.IsDefaultReceive = on
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Balance ledger implementation
// ──────────────────────────────────────────────────

func (s *Store) Balances(_ context.Context, instID id.InstrumentID) ([]instrument.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]instrument.Balance, 0, len(s.balances[instID.String()]))
	for _, b := range s.balances[instID.String()] {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Currency < result[j].Currency })
	return result, nil
}

func (s *Store) Apply(_ context.Context, m instrument.Mutation) (*instrument.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(m); err != nil {
		return nil, err
	}
	return s.commit(m), nil
}

func (s *Store) Transfer(_ context.Context, out, in instrument.Mutation) (*instrument.Transaction, *instrument.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(out); err != nil {
		return nil, nil, err
	}
	if err := s.check(in); err != nil {
		return nil, nil, err
	}
	return s.commit(out), s.commit(in), nil
}

// check verifies the guard of m without changing state.
func (s *Store) check(m instrument.Mutation) error {
	if _, ok := s.instruments[m.InstrumentID.String()]; !ok {
		return tally.ErrInstrumentNotFound
	}
	b := s.balance(m.InstrumentID, m.Currency, false)
	if b.Available+m.DeltaAvailable < 0 || b.Pending+m.DeltaPending < 0 {
		return tally.ErrInsufficientBalance
	}
	return nil
}

// commit applies m and appends its journal row. check must have passed.
func (s *Store) commit(m instrument.Mutation) *instrument.Transaction {
	b := s.balance(m.InstrumentID, m.Currency, true)
	b.Available += m.DeltaAvailable
	b.Pending += m.DeltaPending

	tx := *m.Tx
	tx.BalanceAfter = instrument.Snapshot{Available: b.Available, Pending: b.Pending}
	s.journal = append(s.journal, &tx)

	out := tx
	return &out
}

func (s *Store) balance(instID id.InstrumentID, code string, create bool) *instrument.Balance {
	byCurrency, ok := s.balances[instID.String()]
	if !ok {
		if !create {
			return &instrument.Balance{Currency: code}
		}
		byCurrency = make(map[string]*instrument.Balance)
		s.balances[instID.String()] = byCurrency
	}
	b, ok := byCurrency[code]
	if !ok {
		b = &instrument.Balance{Currency: code}
		if create {
			byCurrency[code] = b
		}
	}
	return b
}

func (s *Store) ListTransactions(_ context.Context, q instrument.TxQuery) ([]*instrument.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*instrument.Transaction
	for i := len(s.journal) - 1; i >= 0; i-- {
		tx := s.journal[i]
		if !q.Match(tx) {
			continue
		}
		cp := *tx
		result = append(result, &cp)
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return strings.Compare(result[i].ID.String(), result[j].ID.String()) > 0
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Core methods
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return tally.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// Helper functions

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func cloneInstrument(inst *instrument.Instrument) *instrument.Instrument {
	c := *inst
	c.Currencies = slices.Clone(inst.Currencies)
	if inst.Metadata != nil {
		c.Metadata = make(map[string]string, len(inst.Metadata))
		for k, v := range inst.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fmt.Sprintf("memory.Store{expenses: %d, instruments: %d, journal: %d}",
		len(s.expenses), len(s.instruments), len(s.journal))
}
