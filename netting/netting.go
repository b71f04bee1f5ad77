// Package netting reads signed contributions out of a scoped expense set and
// aggregates them into one net balance per member and currency.
//
// Positive balances are creditors, negative balances are debtors. Loans are
// netted separately and never mixed into expense balances.
package netting

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/currency"
	"github.com/xraph/tally/expense"
)

// Balances maps currency → member → signed net amount.
type Balances map[string]map[string]decimal.Decimal

// Contribution is one signed movement read from a split.
type Contribution struct {
	Member   string
	Currency string
	Amount   decimal.Decimal
}

// Contributions extracts every signed contribution from expenses for which
// include returns true. Paying splits contribute +PayAmount, owing splits
// contribute -OweAmount.
func Contributions(expenses []*expense.Expense, include func(*expense.Expense) bool) []Contribution {
	var out []Contribution
	for _, e := range expenses {
		if !include(e) {
			continue
		}
		for _, s := range e.Splits {
			if s.Paying && s.PayAmount.IsPositive() {
				out = append(out, Contribution{Member: s.Participant, Currency: e.Currency, Amount: s.PayAmount})
			}
			if s.Owing && s.OweAmount.IsPositive() {
				out = append(out, Contribution{Member: s.Participant, Currency: e.Currency, Amount: s.OweAmount.Neg()})
			}
		}
	}
	return out
}

// IsExpense selects everything netted as an expense: all types but loans.
func IsExpense(e *expense.Expense) bool { return e.Type != expense.TypeLoan }

// IsLoan selects loans.
func IsLoan(e *expense.Expense) bool { return e.Type == expense.TypeLoan }

// Net computes expense balances for a scope. Every roster member is
// zero-initialised for every currency that appears, so uninvolved members are
// present with a zero balance. Loans are skipped.
func Net(members []string, expenses []*expense.Expense, r currency.Resolver) Balances {
	return aggregate(members, expenses, r, IsExpense)
}

// Loans computes loan balances for a scope the same way Net does for
// expenses.
func Loans(members []string, expenses []*expense.Expense, r currency.Resolver) Balances {
	return aggregate(members, expenses, r, IsLoan)
}

func aggregate(members []string, expenses []*expense.Expense, r currency.Resolver, include func(*expense.Expense) bool) Balances {
	b := make(Balances)
	for _, e := range expenses {
		if !include(e) {
			continue
		}
		if _, ok := b[e.Currency]; !ok {
			m := make(map[string]decimal.Decimal, len(members))
			for _, member := range members {
				m[member] = decimal.Zero
			}
			b[e.Currency] = m
		}
	}

	for _, c := range Contributions(expenses, include) {
		b[c.Currency][c.Member] = b[c.Currency][c.Member].Add(c.Amount)
	}

	for code, m := range b {
		for member, v := range m {
			m[member] = currency.Round(r, v, code)
		}
	}
	return b
}

// Currencies returns the currencies present, sorted.
func (b Balances) Currencies() []string {
	out := make([]string, 0, len(b))
	for code := range b {
		out = append(out, code)
	}
	slices.Sort(out)
	return out
}

// Members returns the members present for a currency, sorted.
func (b Balances) Members(code string) []string {
	out := make([]string, 0, len(b[code]))
	for m := range b[code] {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}

// Get returns the balance of member in code, zero when absent.
func (b Balances) Get(code, member string) decimal.Decimal {
	return b[code][member]
}

// Residual returns the sum of all balances per currency. A closed scope has
// a residual within one minimal unit of zero.
func (b Balances) Residual() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(b))
	for code, m := range b {
		sum := decimal.Zero
		for _, v := range m {
			sum = sum.Add(v)
		}
		out[code] = sum
	}
	return out
}

// AllZero reports whether every member's balance in code is below one
// minimal unit.
func (b Balances) AllZero(r currency.Resolver, code string) bool {
	for _, v := range b[code] {
		if !currency.IsZero(r, v, code) {
			return false
		}
	}
	return true
}

// Outstanding returns what from still owes to to within these balances:
// min(max(-net[from], 0), max(net[to], 0)).
func (b Balances) Outstanding(code, from, to string) decimal.Decimal {
	owes := decimal.Max(b.Get(code, from).Neg(), decimal.Zero)
	owed := decimal.Max(b.Get(code, to), decimal.Zero)
	return decimal.Min(owes, owed)
}
