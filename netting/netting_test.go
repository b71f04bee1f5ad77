package netting

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/currency"
	"github.com/xraph/tally/expense"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func paidBy(payer string, amount, code string, owers map[string]string) *expense.Expense {
	e := &expense.Expense{Amount: d(amount), Currency: code, Type: expense.TypeExpense}
	e.Splits = append(e.Splits, expense.Split{Participant: payer, Paying: true, PayAmount: d(amount)})
	for m, owe := range owers {
		if m == payer {
			e.Splits[0].Owing = true
			e.Splits[0].OweAmount = d(owe)
			continue
		}
		e.Splits = append(e.Splits, expense.Split{Participant: m, Owing: true, OweAmount: d(owe)})
	}
	return e
}

func TestNetGroupEqualSplit(t *testing.T) {
	r := currency.Default()
	exp := paidBy("A", "300", "INR", map[string]string{"A": "100", "B": "100", "C": "100"})

	b := Net([]string{"A", "B", "C"}, []*expense.Expense{exp}, r)

	want := map[string]string{"A": "200", "B": "-100", "C": "-100"}
	for m, v := range want {
		if got := b.Get("INR", m); !got.Equal(d(v)) {
			t.Errorf("%s = %s, want %s", m, got, v)
		}
	}
	if res := b.Residual()["INR"]; !currency.IsZero(r, res, "INR") {
		t.Errorf("residual = %s", res)
	}
}

func TestNetPersonalCancels(t *testing.T) {
	r := currency.Default()
	e1 := paidBy("A", "50", "USD", map[string]string{"B": "50"})
	e2 := paidBy("B", "50", "USD", map[string]string{"A": "50"})

	b := Net([]string{"A", "B"}, []*expense.Expense{e1, e2}, r)
	if !b.AllZero(r, "USD") {
		t.Errorf("expected all zero, got %v", b["USD"])
	}
}

func TestNetZeroInitialisesRoster(t *testing.T) {
	r := currency.Default()
	e := paidBy("A", "10", "EUR", map[string]string{"B": "10"})

	b := Net([]string{"A", "B", "Z"}, []*expense.Expense{e}, r)
	v, ok := b["EUR"]["Z"]
	if !ok || !v.IsZero() {
		t.Errorf("uninvolved member missing or non-zero: %v %v", v, ok)
	}
	if got := b.Members("EUR"); len(got) != 3 {
		t.Errorf("Members = %v", got)
	}
}

func TestNetSkipsLoansAndNonOwing(t *testing.T) {
	r := currency.Default()
	loan := paidBy("A", "40", "USD", map[string]string{"B": "40"})
	loan.Type = expense.TypeLoan

	e := paidBy("A", "20", "USD", map[string]string{"B": "20"})
	e.Splits[1].Owing = false

	b := Net([]string{"A", "B"}, []*expense.Expense{loan, e}, r)
	if got := b.Get("USD", "A"); !got.Equal(d("20")) {
		t.Errorf("A = %s, want 20 (loan and non-owing ignored)", got)
	}
	if got := b.Get("USD", "B"); !got.IsZero() {
		t.Errorf("B = %s, want 0", got)
	}

	loans := Loans([]string{"A", "B"}, []*expense.Expense{loan, e}, r)
	if got := loans.Get("USD", "B"); !got.Equal(d("-40")) {
		t.Errorf("loan B = %s, want -40", got)
	}
}

func TestNetCurrenciesAreIndependent(t *testing.T) {
	r := currency.Default()
	e1 := paidBy("A", "10", "USD", map[string]string{"B": "10"})
	e2 := paidBy("B", "1000", "JPY", map[string]string{"A": "1000"})

	b := Net([]string{"A", "B"}, []*expense.Expense{e1, e2}, r)
	if got := b.Currencies(); len(got) != 2 || got[0] != "JPY" || got[1] != "USD" {
		t.Errorf("Currencies = %v", got)
	}
	if !b.Get("USD", "A").Equal(d("10")) || !b.Get("JPY", "A").Equal(d("-1000")) {
		t.Errorf("unexpected balances %v", b)
	}
}

func TestOutstanding(t *testing.T) {
	b := Balances{"INR": {"A": d("200"), "B": d("-100"), "C": d("-100")}}

	tests := []struct {
		from, to string
		want     string
	}{
		{"B", "A", "100"},
		{"C", "A", "100"},
		{"A", "B", "0"},
		{"B", "C", "0"},
	}
	for _, tt := range tests {
		if got := b.Outstanding("INR", tt.from, tt.to); !got.Equal(d(tt.want)) {
			t.Errorf("Outstanding(%s→%s) = %s, want %s", tt.from, tt.to, got, tt.want)
		}
	}
}
