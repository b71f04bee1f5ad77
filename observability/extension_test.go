package observability

import (
	"context"
	"testing"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/scope"
)

type fakeMetric struct {
	count    float64
	observed []float64
}

func (f *fakeMetric) Inc()              { f.count++ }
func (f *fakeMetric) Add(v float64)     { f.count += v }
func (f *fakeMetric) Observe(v float64) { f.observed = append(f.observed, v) }

type fakeFactory struct {
	metrics map[string]*fakeMetric
}

func (f *fakeFactory) get(name string) *fakeMetric {
	if f.metrics == nil {
		f.metrics = make(map[string]*fakeMetric)
	}
	m, ok := f.metrics[name]
	if !ok {
		m = &fakeMetric{}
		f.metrics[name] = m
	}
	return m
}

func (f *fakeFactory) Counter(name string) Counter     { return f.get(name) }
func (f *fakeFactory) Histogram(name string) Histogram { return f.get(name) }

func TestCountsThroughRegistry(t *testing.T) {
	factory := &fakeFactory{}
	ext := NewMetricsExtension(factory)

	reg := plugin.NewRegistry()
	if err := reg.Register(ext); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ctx := context.Background()

	debit := &instrument.Transaction{ID: id.NewTransactionID(), Amount: -250, Kind: instrument.KindDebit}
	reg.EmitLedgerMutated(ctx, debit)
	reg.EmitScopeSettled(ctx, scope.Group("trip"), "USD", 4)
	reg.EmitInsufficientBalance(ctx, id.NewInstrumentID(), "USD", instrument.BucketAvailable, -10)

	if got := factory.get("tally.ledger.mutations").count; got != 1 {
		t.Errorf("mutations = %v, want 1", got)
	}
	if got := factory.get("tally.ledger.mutation.minor_units").observed; len(got) != 1 || got[0] != 250 {
		t.Errorf("mutation sizes = %v, want [250]", got)
	}
	if got := factory.get("tally.scope.settled.expenses").observed; len(got) != 1 || got[0] != 4 {
		t.Errorf("settled expenses = %v, want [4]", got)
	}
	if got := factory.get("tally.ledger.insufficient_balance").count; got != 1 {
		t.Errorf("insufficient = %v, want 1", got)
	}
}
