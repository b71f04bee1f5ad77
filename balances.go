package tally

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/tally/currency"
	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/netting"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/simplify"
	"github.com/xraph/tally/types"
)

// ──────────────────────────────────────────────────
// Scope balances
// ──────────────────────────────────────────────────

// roster resolves the member list of a scope.
func (t *Tally) roster(ctx context.Context, s scope.Scope) (*scope.Roster, error) {
	if err := s.Validate(); err != nil {
		return nil, types.Invalid("scope", "%s", err.Error())
	}
	r, err := t.directory.Roster(ctx, s)
	if errors.Is(err, scope.ErrUnknown) {
		return nil, fmt.Errorf("%w: %s", ErrScopeNotFound, s.Key())
	}
	if err != nil {
		return nil, fmt.Errorf("tally: resolve roster of %s: %w", s.Key(), err)
	}
	return r, nil
}

// ComputeScopeBalances returns currency → member → net amount for a scope.
// Every roster member appears in every currency the scope uses.
func (t *Tally) ComputeScopeBalances(ctx context.Context, s scope.Scope) (netting.Balances, error) {
	r, err := t.roster(ctx, s)
	if err != nil {
		return nil, err
	}
	expenses, err := t.expenses.Find(ctx, expense.ScopeFilter(s))
	if err != nil {
		return nil, err
	}
	return netting.Net(r.Members, expenses, t.Resolver()), nil
}

// ComputeLoanBalances nets the loans of a scope, which never take part in
// expense balances.
func (t *Tally) ComputeLoanBalances(ctx context.Context, s scope.Scope) (netting.Balances, error) {
	r, err := t.roster(ctx, s)
	if err != nil {
		return nil, err
	}
	expenses, err := t.expenses.Find(ctx, expense.ScopeFilter(s))
	if err != nil {
		return nil, err
	}
	return netting.Loans(r.Members, expenses, t.Resolver()), nil
}

// ComputeTransferPlan returns currency → transfers that settle the scope. A
// currency that trips the simplifier guard is logged and left out; the rest
// of the plan is still returned.
func (t *Tally) ComputeTransferPlan(ctx context.Context, s scope.Scope) (simplify.Plan, error) {
	balances, err := t.ComputeScopeBalances(ctx, s)
	if err != nil {
		return nil, err
	}

	plan, skipped := simplify.Simplify(balances, t.Resolver(), t.simplifyOpts)
	for _, serr := range skipped {
		code := ""
		var ge *simplify.GuardError
		if errors.As(serr, &ge) {
			code = ge.Currency
		}
		t.logger.Warn("transfer plan skipped currency",
			"scope", s.Key(),
			"currency", code,
			"error", serr,
		)
		t.plugins.EmitSimplificationSkipped(ctx, s, code, serr)
	}
	return plan, nil
}

// TryMarkScopeSettled marks every unsettled expense of the scope in one
// currency as settled, loans excluded, when all members net to zero. It reports whether the
// scope is settled in that currency. Calling it again without intervening
// changes has no further effect.
func (t *Tally) TryMarkScopeSettled(ctx context.Context, s scope.Scope, code string) (bool, error) {
	code = currency.Normalize(code)
	if !currency.Valid(code) {
		return false, types.Invalid("currency", "%q is not an ISO 4217 code", code)
	}

	r, err := t.roster(ctx, s)
	if err != nil {
		return false, err
	}

	f := expense.ScopeFilter(s)
	f.Currency = code
	f.UnsettledOnly = true
	rows, err := t.expenses.Find(ctx, f)
	if err != nil {
		return false, err
	}
	// Loans are netted on their own and stay open here.
	unsettled := make([]*expense.Expense, 0, len(rows))
	for _, e := range rows {
		if netting.IsExpense(e) {
			unsettled = append(unsettled, e)
		}
	}
	if len(unsettled) == 0 {
		return true, nil
	}

	resolver := t.Resolver()
	if !netting.Net(r.Members, unsettled, resolver).AllZero(resolver, code) {
		return false, nil
	}

	ids := make([]id.ExpenseID, len(unsettled))
	for i, e := range unsettled {
		ids[i] = e.ID
	}
	marked, err := t.expenses.MarkSettled(ctx, ids, t.now())
	if err != nil {
		return false, err
	}

	t.logger.Info("scope settled",
		"scope", s.Key(),
		"currency", code,
		"expenses", marked,
	)
	t.plugins.EmitScopeSettled(ctx, s, code, marked)
	return true, nil
}
