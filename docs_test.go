package tally_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally"
	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/settlement"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Quick Start example from the package documentation
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Group membership lives outside Tally; push it into a directory.
		dir := scope.NewStaticDirectory()
		dir.SetGroup("goa-trip", "INR", "asha", "ben", "chen")

		t1 := tally.New(store,
			tally.WithLogger(slog.Default()),
			tally.WithDirectory(dir),
			tally.WithCanonicalTransfers(true),
		)

		// Start the engine
		ctx := context.Background()
		if err := t1.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer t1.Stop()

		// Asha pays for dinner, split equally.
		dinner := &expense.Expense{
			Description: "Dinner",
			Amount:      decimal.NewFromInt(300),
			Currency:    "INR",
			GroupID:     "goa-trip",
			Splits: []expense.Split{
				{Participant: "asha", Owing: true, Paying: true, PayAmount: decimal.NewFromInt(300)},
				{Participant: "ben", Owing: true},
				{Participant: "chen", Owing: true},
			},
		}
		if err := t1.CreateExpense(ctx, dinner); err != nil {
			t.Fatal(err)
		}

		// Who pays whom
		plan, err := t1.ComputeTransferPlan(ctx, tally.GroupScope("goa-trip"))
		if err != nil {
			t.Fatal(err)
		}
		for _, tr := range plan["INR"] {
			log.Printf("%s pays %s %s %s\n", tr.From, tr.To, tr.Amount, tr.Currency)
		}

		// Ben settles up; anything above what he owes comes back as Remaining.
		res, err := t1.Settle(ctx, settlement.Request{
			From:     "ben",
			To:       "asha",
			Currency: "INR",
			Target:   settlement.Group{GroupID: "goa-trip", Amount: decimal.NewFromInt(120)},
		})
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("recorded %d settlement(s), remaining %s\n", res.CreatedCount, res.Remaining)

		// Balance ledger on a payment instrument
		wallet := &instrument.Instrument{
			OwnerID:      "asha",
			Label:        "UPI wallet",
			Type:         instrument.TypeUPI,
			Capabilities: instrument.Capabilities{Send: true, Receive: true},
		}
		if err := t1.CreateInstrument(ctx, wallet); err != nil {
			t.Fatal(err)
		}
		if _, err := t1.Credit(ctx, wallet.ID, instrument.Op{Currency: "INR", Amount: 100000}); err != nil {
			t.Fatal(err)
		}
		if _, err := t1.Hold(ctx, wallet.ID, instrument.Op{Currency: "INR", Amount: 25000}); err != nil {
			t.Fatal(err)
		}
	})

	// Ledger amounts are minor units; expense amounts are decimals.
	t.Run("MoneyExamples", func(t *testing.T) {
		wallet := types.New(19900, "INR") // ₹199.00
		_ = types.Zero("usd")             // $0.00

		total, err := types.Sum("INR", wallet, types.New(100, "INR"))
		if err != nil {
			t.Fatal(err)
		}
		if total.String() != "₹200.00" {
			t.Errorf("total = %s", total)
		}

		// Crossing from an expense amount to the ledger
		m, err := types.FromDecimal(tally.New(memory.New()).Resolver(), decimal.RequireFromString("12.50"), "EUR")
		if err != nil {
			t.Fatal(err)
		}
		_ = m.Amount // 1250
	})
}
