package tally

import (
	"context"
	"fmt"

	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/types"
)

// ──────────────────────────────────────────────────
// Expense management
// ──────────────────────────────────────────────────

// CreateExpense validates, normalizes and stores an expense. Group expenses
// must only involve group members.
func (t *Tally) CreateExpense(ctx context.Context, e *expense.Expense) error {
	if err := t.prepareExpense(ctx, e); err != nil {
		return err
	}
	e.ID = id.NewExpenseID()
	e.Entity = types.NewEntityAt(t.now())
	e.Settled = false
	e.SettledAt = nil

	if err := t.expenses.Create(ctx, e); err != nil {
		return err
	}

	t.logger.Debug("expense created",
		"expense", e.ID.String(),
		"type", string(e.Type),
		"currency", e.Currency,
	)
	t.plugins.EmitExpenseCreated(ctx, e)

	if e.Type == expense.TypeSettle {
		t.recheck(ctx, e)
	}
	return nil
}

// GetExpense retrieves an expense by ID.
func (t *Tally) GetExpense(ctx context.Context, expenseID id.ExpenseID) (*expense.Expense, error) {
	return t.expenses.Get(ctx, expenseID)
}

// ListExpenses returns the expenses matching f, oldest first.
func (t *Tally) ListExpenses(ctx context.Context, f expense.Filter) ([]*expense.Expense, error) {
	return t.expenses.Find(ctx, f)
}

// ListScopeExpenses returns every expense of a scope, oldest first.
func (t *Tally) ListScopeExpenses(ctx context.Context, s scope.Scope) ([]*expense.Expense, error) {
	if err := s.Validate(); err != nil {
		return nil, types.Invalid("scope", "%s", err.Error())
	}
	return t.expenses.Find(ctx, expense.ScopeFilter(s))
}

// UpdateExpense replaces an unsettled expense and records a before/after
// revision. Both the old and the new scope are re-checked for settlement.
func (t *Tally) UpdateExpense(ctx context.Context, e *expense.Expense, editedBy string) error {
	before, err := t.expenses.Get(ctx, e.ID)
	if err != nil {
		return err
	}
	if before.Settled {
		return fmt.Errorf("%w: %s", ErrExpenseSettled, e.ID)
	}

	if err := t.prepareExpense(ctx, e); err != nil {
		return err
	}
	e.Entity = before.Entity
	e.Touch(t.now())
	e.CreatedBy = before.CreatedBy
	e.Settled = false
	e.SettledAt = nil

	if err := t.expenses.Update(ctx, e); err != nil {
		return err
	}
	if err := t.expenses.CreateRevision(ctx, &expense.Revision{
		ID:        id.NewRevisionID(),
		ExpenseID: e.ID,
		Before:    before,
		After:     e.Clone(),
		EditedBy:  editedBy,
		CreatedAt: e.UpdatedAt,
	}); err != nil {
		return err
	}

	t.plugins.EmitExpenseUpdated(ctx, before, e)
	t.recheck(ctx, before, e)
	return nil
}

// DeleteExpense hard-deletes an unsettled expense. The deleted state is kept
// as a revision and its scope is re-checked for settlement.
func (t *Tally) DeleteExpense(ctx context.Context, expenseID id.ExpenseID, deletedBy string) error {
	before, err := t.expenses.Get(ctx, expenseID)
	if err != nil {
		return err
	}
	if before.Settled {
		return fmt.Errorf("%w: %s", ErrExpenseSettled, expenseID)
	}

	if err := t.expenses.Delete(ctx, expenseID); err != nil {
		return err
	}
	if err := t.expenses.CreateRevision(ctx, &expense.Revision{
		ID:        id.NewRevisionID(),
		ExpenseID: expenseID,
		Before:    before,
		EditedBy:  deletedBy,
		CreatedAt: t.now(),
	}); err != nil {
		return err
	}

	t.plugins.EmitExpenseDeleted(ctx, before)
	t.recheck(ctx, before)
	return nil
}

// ListRevisions returns the edit history of an expense, oldest first.
func (t *Tally) ListRevisions(ctx context.Context, expenseID id.ExpenseID) ([]*expense.Revision, error) {
	return t.expenses.ListRevisions(ctx, expenseID)
}

func (t *Tally) prepareExpense(ctx context.Context, e *expense.Expense) error {
	if err := expense.Normalize(e, t.Resolver()); err != nil {
		return err
	}
	if e.GroupID == "" {
		return nil
	}
	r, err := t.roster(ctx, scope.Group(e.GroupID))
	if err != nil {
		return err
	}
	for _, p := range e.Participants() {
		if !r.Has(p) {
			return fmt.Errorf("%w: %s is not in group %s", ErrNotAMember, p, e.GroupID)
		}
	}
	return nil
}

// recheck runs the settled check for each distinct scope and currency the
// given expenses touch. The write it follows is already committed, so
// failures are logged only.
func (t *Tally) recheck(ctx context.Context, expenses ...*expense.Expense) {
	seen := make(map[string]bool, len(expenses))
	for _, e := range expenses {
		s, ok := e.Scope()
		if !ok {
			continue
		}
		key := s.Key() + "/" + e.Currency
		if seen[key] {
			continue
		}
		seen[key] = true

		if _, err := t.TryMarkScopeSettled(ctx, s, e.Currency); err != nil {
			t.logger.Warn("settled check failed",
				"scope", s.Key(),
				"currency", e.Currency,
				"error", err,
			)
		}
	}
}
