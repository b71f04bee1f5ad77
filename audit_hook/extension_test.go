package audithook

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/scope"
)

type captured struct {
	events []*AuditEvent
}

func (c *captured) recorder() RecorderFunc {
	return func(_ context.Context, evt *AuditEvent) error {
		c.events = append(c.events, evt)
		return nil
	}
}

func TestRecordsSettlementEvents(t *testing.T) {
	c := &captured{}
	ext := New(c.recorder())
	ctx := context.Background()

	exp := &expense.Expense{
		ID:       id.NewExpenseID(),
		Amount:   decimal.RequireFromString("25.50"),
		Currency: "USD",
		Type:     expense.TypeSettle,
		GroupID:  "trip",
	}
	if err := ext.OnSettlementRecorded(ctx, exp, scope.Group("trip")); err != nil {
		t.Fatalf("OnSettlementRecorded: %v", err)
	}
	if err := ext.OnScopeSettled(ctx, scope.Group("trip"), "USD", 3); err != nil {
		t.Fatalf("OnScopeSettled: %v", err)
	}

	if len(c.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(c.events))
	}
	rec := c.events[0]
	if rec.Action != ActionSettlementRecorded || rec.ResourceID != exp.ID.String() {
		t.Errorf("unexpected event %+v", rec)
	}
	if rec.Metadata["amount"] != "25.5" || rec.Metadata["scope"] != scope.Group("trip").Key() {
		t.Errorf("unexpected metadata %v", rec.Metadata)
	}
	if c.events[1].Metadata["marked"] != int64(3) {
		t.Errorf("marked = %v, want 3", c.events[1].Metadata["marked"])
	}
}

func TestFailureCarriesReason(t *testing.T) {
	c := &captured{}
	ext := New(c.recorder())

	err := ext.OnSimplificationSkipped(context.Background(), scope.Group("trip"), "EUR", errors.New("too many iterations"))
	if err != nil {
		t.Fatalf("OnSimplificationSkipped: %v", err)
	}
	evt := c.events[0]
	if evt.Outcome != OutcomePartial || evt.Reason != "too many iterations" {
		t.Errorf("unexpected event %+v", evt)
	}
}

func TestActionFilters(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want int
	}{
		{"all enabled", nil, 2},
		{"only mutations", []Option{WithEnabledActions(ActionLedgerMutated)}, 1},
		{"without insufficient", []Option{WithDisabledActions(ActionInsufficientBalance)}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &captured{}
			ext := New(c.recorder(), tt.opts...)
			ctx := context.Background()

			tx := &instrument.Transaction{
				ID:           id.NewTransactionID(),
				InstrumentID: id.NewInstrumentID(),
				Currency:     "INR",
				Amount:       500,
				Kind:         instrument.KindCredit,
				Bucket:       instrument.BucketAvailable,
			}
			_ = ext.OnLedgerMutated(ctx, tx)
			_ = ext.OnInsufficientBalance(ctx, tx.InstrumentID, "INR", instrument.BucketAvailable, -900)

			if len(c.events) != tt.want {
				t.Errorf("recorded %d events, want %d", len(c.events), tt.want)
			}
		})
	}
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	ext := New(RecorderFunc(func(context.Context, *AuditEvent) error {
		return errors.New("backend down")
	}))
	if err := ext.OnInstrumentDeleted(context.Background(), id.NewInstrumentID()); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}
