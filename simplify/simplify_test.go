package simplify

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/currency"
	"github.com/xraph/tally/netting"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSimplifyScenarioGroup(t *testing.T) {
	r := currency.Default()
	b := netting.Balances{"INR": {"A": d("200"), "B": d("-100"), "C": d("-100")}}

	plan, skipped := Simplify(b, r, Options{})
	if len(skipped) != 0 {
		t.Fatalf("unexpected skipped: %v", skipped)
	}

	want := []Transfer{
		{From: "B", To: "A", Amount: d("100"), Currency: "INR"},
		{From: "C", To: "A", Amount: d("100"), Currency: "INR"},
	}
	got := plan["INR"]
	if len(got) != len(want) {
		t.Fatalf("got %d transfers, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].From != want[i].From || got[i].To != want[i].To || !got[i].Amount.Equal(want[i].Amount) {
			t.Errorf("transfer %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSimplifyEdgeCases(t *testing.T) {
	r := currency.Default()

	tests := []struct {
		name     string
		balances map[string]decimal.Decimal
		want     int
	}{
		{"all zero", map[string]decimal.Decimal{"A": d("0"), "B": d("0")}, 0},
		{"sub-unit noise", map[string]decimal.Decimal{"A": d("0.004"), "B": d("-0.004")}, 0},
		{"only owers", map[string]decimal.Decimal{"A": d("-5"), "B": d("-5")}, 0},
		{"only owed", map[string]decimal.Decimal{"A": d("5")}, 0},
		{"one pair", map[string]decimal.Decimal{"A": d("5"), "B": d("-5"), "C": d("0")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Currency("USD", tt.balances, r, Options{})
			if err != nil {
				t.Fatalf("Currency: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d transfers, want %d: %v", len(got), tt.want, got)
			}
		})
	}
}

func TestSimplifyGuard(t *testing.T) {
	r := currency.Default()
	b := netting.Balances{
		"USD": {"A": d("30"), "B": d("-10"), "C": d("-10"), "D": d("-10")},
		"EUR": {"A": d("5"), "B": d("-5")},
	}

	plan, skipped := Simplify(b, r, Options{MaxIterations: 1})
	if len(skipped) != 1 || !errors.Is(skipped[0], ErrGuardExceeded) {
		t.Fatalf("expected one guard error, got %v", skipped)
	}
	var ge *GuardError
	if !errors.As(skipped[0], &ge) || ge.Currency != "USD" {
		t.Errorf("guard error for wrong currency: %v", skipped[0])
	}
	if _, ok := plan["USD"]; ok {
		t.Error("USD should be skipped")
	}
	if len(plan["EUR"]) != 1 {
		t.Errorf("EUR should be unaffected, got %v", plan["EUR"])
	}
}

func TestSimplifyCanonical(t *testing.T) {
	r := currency.Default()
	bal := map[string]decimal.Decimal{"A": d("-10"), "B": d("-10"), "Y": d("5"), "Z": d("15")}

	got, err := Currency("USD", bal, r, Options{Canonical: true})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if prev.From > cur.From || (prev.From == cur.From && prev.To > cur.To) {
			t.Errorf("not canonical at %d: %v", i, got)
		}
	}
}

// Property: applying the plan zeroes every balance and the transfer count
// never exceeds owers+owed-1.
func TestSimplifyProperties(t *testing.T) {
	r := currency.Default()
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		code := []string{"USD", "JPY", "KWD"}[round%3]
		digits := int32(r.FractionDigits(code))

		n := 2 + rng.Intn(8)
		bal := make(map[string]decimal.Decimal, n)
		sum := decimal.Zero
		for i := 0; i < n-1; i++ {
			v := decimal.New(rng.Int63n(2_000_000)-1_000_000, -digits)
			bal[fmt.Sprintf("m%02d", i)] = v
			sum = sum.Add(v)
		}
		bal[fmt.Sprintf("m%02d", n-1)] = sum.Neg()

		owers, owed := 0, 0
		for _, v := range bal {
			switch {
			case currency.IsZero(r, v, code):
			case v.IsNegative():
				owers++
			default:
				owed++
			}
		}

		b := netting.Balances{code: bal}
		plan, skipped := Simplify(b, r, Options{})
		if len(skipped) != 0 {
			t.Fatalf("round %d: skipped %v", round, skipped)
		}

		if owers+owed > 0 && len(plan[code]) > owers+owed-1 {
			t.Errorf("round %d: %d transfers exceeds bound %d", round, len(plan[code]), owers+owed-1)
		}
		for _, tr := range plan[code] {
			if tr.Amount.LessThan(currency.MinimalUnit(r, code)) {
				t.Errorf("round %d: sub-unit transfer %v", round, tr)
			}
		}

		after := Apply(b, plan)
		if !after.AllZero(r, code) {
			t.Errorf("round %d: plan did not zero balances: %v", round, after[code])
		}
	}
}
