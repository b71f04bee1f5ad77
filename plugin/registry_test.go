package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/scope"
)

type counter struct {
	name    string
	created atomic.Int32
	mutated atomic.Int32
}

func (c *counter) Name() string { return c.name }

func (c *counter) OnExpenseCreated(context.Context, *expense.Expense) error {
	c.created.Add(1)
	return nil
}

func (c *counter) OnLedgerMutated(context.Context, *instrument.Transaction) error {
	c.mutated.Add(1)
	return errors.New("ignored")
}

type precision struct{}

func (precision) Name() string { return "precision" }

func (precision) FractionDigits(code string) (int, bool) {
	if code == "BTC" {
		return 8, true
	}
	return 0, false
}

type slow struct{}

func (slow) Name() string { return "slow" }

func (slow) OnExpenseDeleted(ctx context.Context, _ *expense.Expense) error {
	time.Sleep(200 * time.Millisecond)
	return nil
}

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterAndDispatch(t *testing.T) {
	r := quietRegistry()
	c := &counter{name: "counter"}
	if err := r.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&counter{name: "counter"}); err == nil {
		t.Error("expected duplicate registration error")
	}

	ctx := context.Background()
	r.EmitExpenseCreated(ctx, &expense.Expense{})
	r.EmitLedgerMutated(ctx, &instrument.Transaction{})
	r.EmitScopeSettled(ctx, expenseScope(), "USD", 1)

	if c.created.Load() != 1 || c.mutated.Load() != 1 {
		t.Errorf("created=%d mutated=%d", c.created.Load(), c.mutated.Load())
	}
	if r.Count() != 1 || r.Get("counter") == nil || r.Get("missing") != nil {
		t.Error("lookup mismatch")
	}
	if got := implementedInterfaces(c); len(got) != 2 {
		t.Errorf("interfaces = %v", got)
	}
}

func TestPrecisionProvider(t *testing.T) {
	r := quietRegistry()
	_ = r.Register(precision{})

	if d, ok := r.FractionDigits("BTC"); !ok || d != 8 {
		t.Errorf("BTC = %d,%v", d, ok)
	}
	if _, ok := r.FractionDigits("USD"); ok {
		t.Error("USD should fall through")
	}
}

func TestHookTimeout(t *testing.T) {
	r := quietRegistry().WithTimeout(20 * time.Millisecond)
	_ = r.Register(slow{})

	start := time.Now()
	r.EmitExpenseDeleted(context.Background(), &expense.Expense{})
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("emit blocked for %v", elapsed)
	}
}

func expenseScope() scope.Scope { return scope.Group("g1") }
