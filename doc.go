// Package tally is the financial core of a shared-expense tracker.
//
// Tally is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - Per-member, per-currency net balances for a personal pair or a group
//   - Debt simplification into a short list of settling transfers
//   - Settlement recording that marks a scope settled once it nets to zero
//   - A multi-currency balance ledger per payment instrument with atomic
//     credit, debit, hold, release and transfer, plus an append-only journal
//
// # Quick Start
//
// Create a tally instance with your preferred store:
//
//	import (
//	    "github.com/xraph/tally"
//	    "github.com/xraph/tally/store/postgres"
//	)
//
//	s := postgres.New(db)
//	t := tally.New(s, tally.WithDirectory(dir))
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Stop()
//
// # Core Concepts
//
// A scope is the closed set of expenses netting runs over: one group, or one
// exact pair of members with no group.
//
//	balances, err := t.ComputeScopeBalances(ctx, tally.GroupScope("trip"))
//	plan, err := t.ComputeTransferPlan(ctx, tally.GroupScope("trip"))
//
// Settling records a settle-typed expense per touched scope and returns what
// could not be applied because nothing more was outstanding:
//
//	res, err := t.Settle(ctx, settlement.Request{
//	    From: "bob", To: "alice", Currency: "INR",
//	    Target: settlement.Group{GroupID: "trip", Amount: decimal.NewFromInt(100)},
//	})
//
// Expense amounts are decimals rounded to the currency's precision on every
// write, and a balance counts as zero when it is below one minimal unit of
// its currency. Ledger amounts are integer minor units; available and pending
// never go negative.
//
// # Integration
//
// Tally plugs into the Forge ecosystem through the extension package, and
// exposes its operations over HTTP through the api package.
package tally
