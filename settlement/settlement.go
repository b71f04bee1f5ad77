// Package settlement describes settlement requests and plans how a submitted
// amount is spread over the scopes it covers.
//
// A request's target is a tagged variant decided once at the boundary:
// Personal, Group, AllGroups or Net. The engine turns it into one leg per
// touched scope and records each leg as a settle-typed expense.
package settlement

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/scope"
)

// Kind names a target variant.
type Kind string

const (
	KindPersonal  Kind = "personal"
	KindGroup     Kind = "group"
	KindAllGroups Kind = "all_groups"
	KindNet       Kind = "net"

	// Accepted on the wire as spellings of KindGroup and KindAllGroups.
	kindOneGroup      Kind = "one-group"
	kindAllGroupsDash Kind = "all-groups"
)

// Target is one of Personal, Group, AllGroups or Net.
type Target interface {
	Kind() Kind
}

// Personal settles the personal pair scope of the two members.
type Personal struct {
	Amount decimal.Decimal
}

// Group settles one group.
type Group struct {
	GroupID string
	Amount  decimal.Decimal
}

// AllGroups settles every group both members share. Explicit Allocations are
// applied in order; otherwise Total is spread largest-outstanding-first.
type AllGroups struct {
	Allocations []Allocation
	Total       decimal.Decimal
}

// Net settles the personal scope and every shared group. Explicit
// Allocations and Personal are applied as given (personal first); otherwise
// Total is spread largest-outstanding-first over all of them.
type Net struct {
	Allocations []Allocation
	Personal    decimal.Decimal
	Total       decimal.Decimal
}

func (Personal) Kind() Kind  { return KindPersonal }
func (Group) Kind() Kind     { return KindGroup }
func (AllGroups) Kind() Kind { return KindAllGroups }
func (Net) Kind() Kind       { return KindNet }

// Explicit reports whether the caller supplied per-group amounts.
func (t AllGroups) Explicit() bool { return len(t.Allocations) > 0 }

// Explicit reports whether the caller supplied per-scope amounts.
func (t Net) Explicit() bool { return len(t.Allocations) > 0 || !t.Personal.IsZero() }

// Allocation is an explicit amount for one group.
type Allocation struct {
	GroupID string          `json:"group_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// Request asks to record that From paid To.
type Request struct {
	From      string
	To        string
	Currency  string
	Target    Target
	CreatedBy string
	Note      string
}

// Item is the outcome for one scope.
type Item struct {
	Scope   scope.Scope      `json:"scope"`
	Expense *expense.Expense `json:"expense"`
	Amount  decimal.Decimal  `json:"amount"`
	Settled bool             `json:"settled"`
}

// Result summarises a settlement request. Remaining is the part of the
// submitted amount that exceeded what was outstanding.
type Result struct {
	CreatedCount int             `json:"created_count"`
	Items        []Item          `json:"items"`
	Currency     string          `json:"currency"`
	Remaining    decimal.Decimal `json:"remaining"`
}

// Candidate is a scope with what From still owes To in it.
type Candidate struct {
	Scope       scope.Scope
	Outstanding decimal.Decimal
}

// Leg is the amount to record in one scope.
type Leg struct {
	Scope  scope.Scope
	Amount decimal.Decimal
}

// Distribute spreads total over candidates, largest outstanding first (ties by
// scope key), never exceeding a candidate's outstanding amount. It returns the
// legs with a positive amount and whatever could not be placed.
func Distribute(total decimal.Decimal, candidates []Candidate) ([]Leg, decimal.Decimal) {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		if c := b.Outstanding.Cmp(a.Outstanding); c != 0 {
			return c
		}
		return cmp.Compare(a.Scope.Key(), b.Scope.Key())
	})

	remaining := total
	var legs []Leg
	for _, c := range sorted {
		if !remaining.IsPositive() {
			break
		}
		if !c.Outstanding.IsPositive() {
			continue
		}
		amount := decimal.Min(remaining, c.Outstanding)
		legs = append(legs, Leg{Scope: c.Scope, Amount: amount})
		remaining = remaining.Sub(amount)
	}
	return legs, remaining
}

// Cap applies explicit per-scope amounts in the given order, capping each at
// its outstanding amount. The excess of every leg is summed into the returned
// remainder.
func Cap(requested []Leg, outstanding map[string]decimal.Decimal) ([]Leg, decimal.Decimal) {
	remaining := decimal.Zero
	var legs []Leg
	for _, r := range requested {
		out := decimal.Max(outstanding[r.Scope.Key()], decimal.Zero)
		amount := decimal.Min(r.Amount, out)
		remaining = remaining.Add(r.Amount.Sub(amount))
		if amount.IsPositive() {
			legs = append(legs, Leg{Scope: r.Scope, Amount: amount})
		}
	}
	return legs, remaining
}

// NewExpense builds the settle-typed expense recording that from paid to.
// The receiver owes the amount and the payer pays it, so the record offsets
// the debt when netted.
func NewExpense(from, to string, amount decimal.Decimal, code string, s scope.Scope) *expense.Expense {
	e := &expense.Expense{
		Description: "Settlement",
		Amount:      amount,
		Currency:    code,
		Type:        expense.TypeSettle,
		SplitMode:   expense.ModeValue,
		Source:      expense.SourceSettlement,
		Splits: []expense.Split{
			{Participant: to, Owing: true, OweAmount: amount},
			{Participant: from, Paying: true, PayAmount: amount},
		},
	}
	if s.Kind == scope.KindGroup {
		e.GroupID = s.GroupID
	}
	return e
}
