package expense

import (
	"context"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/scope"
)

// Store persists expenses and their revisions.
type Store interface {
	Create(ctx context.Context, e *Expense) error
	Get(ctx context.Context, expenseID id.ExpenseID) (*Expense, error)
	Find(ctx context.Context, f Filter) ([]*Expense, error)
	Update(ctx context.Context, e *Expense) error
	Delete(ctx context.Context, expenseID id.ExpenseID) error
	MarkSettled(ctx context.Context, ids []id.ExpenseID, at time.Time) (int64, error)

	CreateRevision(ctx context.Context, r *Revision) error
	ListRevisions(ctx context.Context, expenseID id.ExpenseID) ([]*Revision, error)
}

// Filter selects expenses. Results are ordered by creation time, oldest
// first. GroupID and PairKey are mutually exclusive; an empty Filter matches
// every expense.
type Filter struct {
	GroupID       string
	PairKey       string
	Currency      string
	UnsettledOnly bool
	Limit         int
	Offset        int
}

// ScopeFilter returns the filter matching every expense of s.
func ScopeFilter(s scope.Scope) Filter {
	if s.Kind == scope.KindGroup {
		return Filter{GroupID: s.GroupID}
	}
	return Filter{PairKey: s.PairKey()}
}

// Match reports whether e satisfies the filter, ignoring Limit and Offset.
// In-memory stores use it directly; SQL stores express the same predicate.
func (f Filter) Match(e *Expense) bool {
	if f.GroupID != "" && e.GroupID != f.GroupID {
		return false
	}
	if f.PairKey != "" && (e.GroupID != "" || e.PairKey != f.PairKey) {
		return false
	}
	if f.Currency != "" && e.Currency != f.Currency {
		return false
	}
	if f.UnsettledOnly && e.Settled {
		return false
	}
	return true
}
