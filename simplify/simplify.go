// Package simplify turns per-currency net balances into a short list of
// pairwise transfers that zero them.
package simplify

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/currency"
	"github.com/xraph/tally/netting"
)

// DefaultGuardFactor bounds iterations at (owers+owed+1)*DefaultGuardFactor.
const DefaultGuardFactor = 5000

// ErrGuardExceeded is reported for a currency whose simplification ran past
// the iteration guard. That currency yields no transfers.
var ErrGuardExceeded = errors.New("tally: simplification guard exceeded")

// Transfer is one settling payment.
type Transfer struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Plan maps currency → transfers.
type Plan map[string][]Transfer

// Count returns the total number of transfers.
func (p Plan) Count() int {
	n := 0
	for _, ts := range p {
		n += len(ts)
	}
	return n
}

// GuardError carries the currency that hit the iteration guard.
type GuardError struct {
	Currency   string
	Iterations int
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("tally: simplification of %s aborted after %d iterations", e.Currency, e.Iterations)
}

// Is makes GuardError match ErrGuardExceeded.
func (e *GuardError) Is(target error) bool { return target == ErrGuardExceeded }

// Options tune the simplifier.
type Options struct {
	// GuardFactor overrides DefaultGuardFactor when positive.
	GuardFactor int
	// MaxIterations replaces the computed guard when positive.
	MaxIterations int
	// Canonical sorts each currency's transfers by (from, to).
	Canonical bool
}

type party struct {
	member    string
	remaining decimal.Decimal
}

// Simplify computes the plan for every currency in b. Currencies that hit the
// guard are left out of the plan and reported in the returned slice; the
// remaining currencies are unaffected.
func Simplify(b netting.Balances, r currency.Resolver, opts Options) (Plan, []error) {
	plan := make(Plan, len(b))
	var skipped []error
	for _, code := range b.Currencies() {
		transfers, err := Currency(code, b[code], r, opts)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		plan[code] = transfers
	}
	return plan, skipped
}

// Currency simplifies the balances of one currency. Members are scanned in
// member-id order, which makes the output reproducible.
func Currency(code string, balances map[string]decimal.Decimal, r currency.Resolver, opts Options) ([]Transfer, error) {
	unit := currency.MinimalUnit(r, code)

	members := make([]string, 0, len(balances))
	for m := range balances {
		members = append(members, m)
	}
	slices.Sort(members)

	var owers, owed []party
	for _, m := range members {
		v := currency.Round(r, balances[m], code)
		if v.Abs().LessThan(unit) {
			continue
		}
		if v.IsNegative() {
			owers = append(owers, party{member: m, remaining: v.Neg()})
		} else {
			owed = append(owed, party{member: m, remaining: v})
		}
	}

	transfers := []Transfer{}
	if len(owers) == 0 || len(owed) == 0 {
		return transfers, nil
	}

	factor := opts.GuardFactor
	if factor <= 0 {
		factor = DefaultGuardFactor
	}
	limit := (len(owers) + len(owed) + 1) * factor
	if opts.MaxIterations > 0 {
		limit = opts.MaxIterations
	}

	i, j, iterations := 0, 0, 0
	for i < len(owers) && j < len(owed) {
		iterations++
		if iterations > limit {
			return nil, &GuardError{Currency: code, Iterations: iterations - 1}
		}

		amount := currency.Round(r, decimal.Min(owers[i].remaining, owed[j].remaining), code)
		if !amount.LessThan(unit) {
			transfers = append(transfers, Transfer{
				From:     owers[i].member,
				To:       owed[j].member,
				Amount:   amount,
				Currency: code,
			})
		}

		owers[i].remaining = clamp(currency.Round(r, owers[i].remaining.Sub(amount), code), unit)
		owed[j].remaining = clamp(currency.Round(r, owed[j].remaining.Sub(amount), code), unit)

		if owers[i].remaining.IsZero() {
			i++
		}
		if owed[j].remaining.IsZero() {
			j++
		}
	}

	if opts.Canonical {
		slices.SortStableFunc(transfers, func(a, b Transfer) int {
			if c := strings.Compare(a.From, b.From); c != 0 {
				return c
			}
			return strings.Compare(a.To, b.To)
		})
	}
	return transfers, nil
}

// clamp snaps a residue below one minimal unit to exactly zero.
func clamp(v, unit decimal.Decimal) decimal.Decimal {
	if v.Abs().LessThan(unit) {
		return decimal.Zero
	}
	return v
}

// Apply applies transfers to a copy of b and returns the result. A correct
// plan leaves every member within one minimal unit of zero.
func Apply(b netting.Balances, p Plan) netting.Balances {
	out := make(netting.Balances, len(b))
	for code, m := range b {
		c := make(map[string]decimal.Decimal, len(m))
		for k, v := range m {
			c[k] = v
		}
		out[code] = c
	}
	for code, ts := range p {
		if out[code] == nil {
			out[code] = make(map[string]decimal.Decimal)
		}
		for _, t := range ts {
			out[code][t.From] = out[code][t.From].Add(t.Amount)
			out[code][t.To] = out[code][t.To].Sub(t.Amount)
		}
	}
	return out
}
