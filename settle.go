package tally

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/currency"
	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/netting"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/settlement"
	"github.com/xraph/tally/types"
)

// ──────────────────────────────────────────────────
// Settlement
// ──────────────────────────────────────────────────

// RecordSettlement records that from paid to amount in one scope, then checks
// whether the scope is now settled in that currency. The amount is recorded
// as given; Settle is the variant that caps it at what is outstanding.
func (t *Tally) RecordSettlement(ctx context.Context, from, to string, amount decimal.Decimal, code string, s scope.Scope) (*settlement.Item, error) {
	code = currency.Normalize(code)
	if err := t.checkParties(from, to, code); err != nil {
		return nil, err
	}
	amount = currency.Round(t.Resolver(), amount, code)
	if !amount.IsPositive() {
		return nil, types.Invalid("amount", "must be positive, got %s", amount)
	}

	r, err := t.roster(ctx, s)
	if err != nil {
		return nil, err
	}
	if err := checkRoster(r, from, to, code); err != nil {
		return nil, err
	}

	return t.record(ctx, settlement.Request{From: from, To: to, Currency: code}, settlement.Leg{Scope: s, Amount: amount})
}

// Settle applies a settlement request. Each touched scope gets one settlement
// record followed by a settled check. Amounts above what is outstanding in a
// scope are not recorded; they come back as Result.Remaining.
func (t *Tally) Settle(ctx context.Context, req settlement.Request) (*settlement.Result, error) {
	req.Currency = currency.Normalize(req.Currency)
	if err := t.checkParties(req.From, req.To, req.Currency); err != nil {
		return nil, err
	}
	if req.Target == nil {
		return nil, types.Invalid("target", "is required")
	}

	legs, remaining, err := t.planLegs(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &settlement.Result{Currency: req.Currency, Remaining: remaining, Items: []settlement.Item{}}
	for _, leg := range legs {
		item, err := t.record(ctx, req, leg)
		if err != nil {
			return res, err
		}
		res.Items = append(res.Items, *item)
		res.CreatedCount++
	}

	if res.Remaining.IsPositive() {
		t.logger.Info("settlement exceeded outstanding",
			"from", req.From,
			"to", req.To,
			"currency", req.Currency,
			"remaining", res.Remaining.String(),
		)
	}
	return res, nil
}

func (t *Tally) checkParties(from, to, code string) error {
	if from == "" {
		return types.Invalid("from", "is required")
	}
	if to == "" {
		return types.Invalid("to", "is required")
	}
	if from == to {
		return types.Invalid("to", "must differ from the payer")
	}
	if !currency.Valid(code) {
		return types.Invalid("currency", "%q is not an ISO 4217 code", code)
	}
	return nil
}

func checkRoster(r *scope.Roster, from, to, code string) error {
	if r.Currency != "" && currency.Normalize(r.Currency) != code {
		return fmt.Errorf("%w: %s uses %s, got %s", ErrScopeCurrency, r.Scope.Key(), r.Currency, code)
	}
	for _, m := range []string{from, to} {
		if !r.Has(m) {
			return fmt.Errorf("%w: %s is not in %s", ErrNotAMember, m, r.Scope.Key())
		}
	}
	return nil
}

// planLegs resolves the target into per-scope amounts before anything is
// written, so a bad allocation fails the whole request.
func (t *Tally) planLegs(ctx context.Context, req settlement.Request) ([]settlement.Leg, decimal.Decimal, error) {
	personal := scope.Personal(req.From, req.To)

	switch target := req.Target.(type) {
	case settlement.Personal:
		amount, err := t.positive("amount", target.Amount, req.Currency)
		if err != nil {
			return nil, decimal.Zero, err
		}
		return t.capped(ctx, req, []settlement.Leg{{Scope: personal, Amount: amount}})

	case settlement.Group:
		amount, err := t.positive("amount", target.Amount, req.Currency)
		if err != nil {
			return nil, decimal.Zero, err
		}
		return t.capped(ctx, req, []settlement.Leg{{Scope: scope.Group(target.GroupID), Amount: amount}})

	case settlement.AllGroups:
		groups, err := t.directory.SharedGroups(ctx, req.From, req.To)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if target.Explicit() {
			legs, err := t.allocationLegs(target.Allocations, groups, req.Currency)
			if err != nil {
				return nil, decimal.Zero, err
			}
			return t.capped(ctx, req, legs)
		}
		total, err := t.positive("amount", target.Total, req.Currency)
		if err != nil {
			return nil, decimal.Zero, err
		}
		return t.distributed(ctx, req, total, groupScopes(groups))

	case settlement.Net:
		groups, err := t.directory.SharedGroups(ctx, req.From, req.To)
		if err != nil {
			return nil, decimal.Zero, err
		}
		if target.Explicit() {
			var legs []settlement.Leg
			if !target.Personal.IsZero() {
				amount, err := t.positive("personal", target.Personal, req.Currency)
				if err != nil {
					return nil, decimal.Zero, err
				}
				legs = append(legs, settlement.Leg{Scope: personal, Amount: amount})
			}
			groupLegs, err := t.allocationLegs(target.Allocations, groups, req.Currency)
			if err != nil {
				return nil, decimal.Zero, err
			}
			return t.capped(ctx, req, append(legs, groupLegs...))
		}
		total, err := t.positive("amount", target.Total, req.Currency)
		if err != nil {
			return nil, decimal.Zero, err
		}
		return t.distributed(ctx, req, total, append([]scope.Scope{personal}, groupScopes(groups)...))
	}

	return nil, decimal.Zero, types.Invalid("target", "unsupported settlement target %T", req.Target)
}

func (t *Tally) positive(field string, v decimal.Decimal, code string) (decimal.Decimal, error) {
	v = currency.Round(t.Resolver(), v, code)
	if !v.IsPositive() {
		return decimal.Zero, types.Invalid(field, "must be positive, got %s", v)
	}
	return v, nil
}

func (t *Tally) allocationLegs(allocs []settlement.Allocation, shared []string, code string) ([]settlement.Leg, error) {
	legs := make([]settlement.Leg, 0, len(allocs))
	for _, a := range allocs {
		if !slices.Contains(shared, a.GroupID) {
			return nil, fmt.Errorf("%w: group %s is not shared by both members", ErrNotAMember, a.GroupID)
		}
		amount, err := t.positive("groups."+a.GroupID, a.Amount, code)
		if err != nil {
			return nil, err
		}
		legs = append(legs, settlement.Leg{Scope: scope.Group(a.GroupID), Amount: amount})
	}
	return legs, nil
}

func groupScopes(groups []string) []scope.Scope {
	out := make([]scope.Scope, len(groups))
	for i, g := range groups {
		out[i] = scope.Group(g)
	}
	return out
}

func (t *Tally) capped(ctx context.Context, req settlement.Request, requested []settlement.Leg) ([]settlement.Leg, decimal.Decimal, error) {
	outstanding := make(map[string]decimal.Decimal, len(requested))
	for _, leg := range requested {
		o, err := t.outstanding(ctx, req, leg.Scope)
		if err != nil {
			return nil, decimal.Zero, err
		}
		outstanding[leg.Scope.Key()] = o
	}
	legs, remaining := settlement.Cap(requested, outstanding)
	return legs, remaining, nil
}

func (t *Tally) distributed(ctx context.Context, req settlement.Request, total decimal.Decimal, scopes []scope.Scope) ([]settlement.Leg, decimal.Decimal, error) {
	candidates := make([]settlement.Candidate, 0, len(scopes))
	for _, s := range scopes {
		o, err := t.outstanding(ctx, req, s)
		if err != nil {
			return nil, decimal.Zero, err
		}
		candidates = append(candidates, settlement.Candidate{Scope: s, Outstanding: o})
	}
	legs, remaining := settlement.Distribute(total, candidates)
	return legs, remaining, nil
}

// outstanding returns what req.From still owes req.To in one scope and
// currency, considering unsettled expenses only.
func (t *Tally) outstanding(ctx context.Context, req settlement.Request, s scope.Scope) (decimal.Decimal, error) {
	r, err := t.roster(ctx, s)
	if err != nil {
		return decimal.Zero, err
	}
	if err := checkRoster(r, req.From, req.To, req.Currency); err != nil {
		return decimal.Zero, err
	}

	f := expense.ScopeFilter(s)
	f.Currency = req.Currency
	f.UnsettledOnly = true
	unsettled, err := t.expenses.Find(ctx, f)
	if err != nil {
		return decimal.Zero, err
	}
	return netting.Net(r.Members, unsettled, t.Resolver()).Outstanding(req.Currency, req.From, req.To), nil
}

// record persists one settlement expense and re-checks its scope.
func (t *Tally) record(ctx context.Context, req settlement.Request, leg settlement.Leg) (*settlement.Item, error) {
	e := settlement.NewExpense(req.From, req.To, leg.Amount, req.Currency, leg.Scope)
	if req.Note != "" {
		e.Description = req.Note
	}
	e.CreatedBy = req.CreatedBy
	if e.CreatedBy == "" {
		e.CreatedBy = req.From
	}
	if err := expense.Normalize(e, t.Resolver()); err != nil {
		return nil, err
	}
	e.ID = id.NewExpenseID()
	e.Entity = types.NewEntityAt(t.now())

	if err := t.expenses.Create(ctx, e); err != nil {
		return nil, err
	}

	t.logger.Info("settlement recorded",
		"scope", leg.Scope.Key(),
		"from", req.From,
		"to", req.To,
		"amount", leg.Amount.String(),
		"currency", req.Currency,
	)
	t.plugins.EmitSettlementRecorded(ctx, e, leg.Scope)

	settled, err := t.TryMarkScopeSettled(ctx, leg.Scope, req.Currency)
	if err != nil {
		return nil, err
	}
	if settled {
		if fresh, err := t.expenses.Get(ctx, e.ID); err == nil {
			e = fresh
		}
	}

	return &settlement.Item{Scope: leg.Scope, Expense: e, Amount: leg.Amount, Settled: settled}, nil
}
