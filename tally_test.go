package tally_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally"
	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/settlement"
	"github.com/xraph/tally/store/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// settledRecorder captures OnScopeSettled calls.
type settledRecorder struct {
	mu     sync.Mutex
	scopes []string
}

func (r *settledRecorder) Name() string { return "settled-recorder" }

func (r *settledRecorder) OnScopeSettled(_ context.Context, s scope.Scope, code string, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes = append(r.scopes, s.Key()+"/"+code)
	return nil
}

func newEngine(t *testing.T, opts ...tally.Option) (*tally.Tally, *scope.StaticDirectory) {
	t.Helper()
	dir := scope.NewStaticDirectory()
	dir.SetGroup("trip", "", "alice", "bob", "carol")
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]tally.Option{
		tally.WithDirectory(dir),
		tally.WithClock(func() time.Time { return clock }),
		tally.WithCanonicalTransfers(true),
	}, opts...)
	return tally.New(memory.New(), opts...), dir
}

// paidBy builds an expense paid entirely by payer and split equally.
func paidBy(payer, amount, code, groupID string, owers ...string) *expense.Expense {
	e := &expense.Expense{
		Description: "test",
		Amount:      d(amount),
		Currency:    code,
		GroupID:     groupID,
	}
	for _, p := range owers {
		e.Splits = append(e.Splits, expense.Split{Participant: p, Owing: true})
	}
	found := false
	for i := range e.Splits {
		if e.Splits[i].Participant == payer {
			e.Splits[i].Paying = true
			e.Splits[i].PayAmount = d(amount)
			found = true
		}
	}
	if !found {
		e.Splits = append(e.Splits, expense.Split{Participant: payer, Paying: true, PayAmount: d(amount)})
	}
	return e
}

func TestGroupBalancesAndPlan(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)

	if err := tl.CreateExpense(ctx, paidBy("alice", "300", "INR", "trip", "alice", "bob", "carol")); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	balances, err := tl.ComputeScopeBalances(ctx, scope.Group("trip"))
	if err != nil {
		t.Fatalf("ComputeScopeBalances: %v", err)
	}
	want := map[string]string{"alice": "200", "bob": "-100", "carol": "-100"}
	for member, amount := range want {
		if got := balances.Get("INR", member); !got.Equal(d(amount)) {
			t.Errorf("net[%s] = %s, want %s", member, got, amount)
		}
	}

	plan, err := tl.ComputeTransferPlan(ctx, scope.Group("trip"))
	if err != nil {
		t.Fatalf("ComputeTransferPlan: %v", err)
	}
	transfers := plan["INR"]
	if len(transfers) != 2 {
		t.Fatalf("transfers = %+v, want 2", transfers)
	}
	for i, from := range []string{"bob", "carol"} {
		tr := transfers[i]
		if tr.From != from || tr.To != "alice" || !tr.Amount.Equal(d("100")) {
			t.Errorf("transfer[%d] = %+v, want %s→alice 100", i, tr, from)
		}
	}
}

func TestPersonalScopeNetsToZero(t *testing.T) {
	ctx := context.Background()
	rec := &settledRecorder{}
	tl, _ := newEngine(t, tally.WithPlugin(rec))
	pair := scope.Personal("alice", "bob")

	if err := tl.CreateExpense(ctx, paidBy("alice", "50", "USD", "", "bob")); err != nil {
		t.Fatal(err)
	}
	if err := tl.CreateExpense(ctx, paidBy("bob", "50", "USD", "", "alice")); err != nil {
		t.Fatal(err)
	}

	balances, err := tl.ComputeScopeBalances(ctx, pair)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range []string{"alice", "bob"} {
		if !balances.Get("USD", m).IsZero() {
			t.Errorf("net[%s] = %s, want 0", m, balances.Get("USD", m))
		}
	}

	plan, err := tl.ComputeTransferPlan(ctx, pair)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Count() != 0 {
		t.Errorf("plan has %d transfers, want 0", plan.Count())
	}

	settled, err := tl.TryMarkScopeSettled(ctx, pair, "usd")
	if err != nil || !settled {
		t.Fatalf("TryMarkScopeSettled = %v, %v; want true", settled, err)
	}
	expenses, _ := tl.ListScopeExpenses(ctx, pair)
	for _, e := range expenses {
		if !e.Settled || e.SettledAt == nil {
			t.Errorf("expense %s not marked settled", e.ID)
		}
	}
	if len(rec.scopes) != 1 || rec.scopes[0] != "personal:alice:bob/USD" {
		t.Errorf("settled hooks = %v", rec.scopes)
	}
}

func TestTryMarkScopeSettledIdempotent(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)
	pair := scope.Personal("alice", "bob")

	if err := tl.CreateExpense(ctx, paidBy("alice", "40", "USD", "", "bob")); err != nil {
		t.Fatal(err)
	}
	res, err := tl.Settle(ctx, settlement.Request{
		From: "bob", To: "alice", Currency: "USD",
		Target: settlement.Personal{Amount: d("40")},
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.CreatedCount != 1 || !res.Items[0].Settled {
		t.Fatalf("result = %+v, want one settled item", res)
	}
	if !res.Items[0].Expense.Settled {
		t.Error("returned settlement expense is not flagged settled")
	}

	snapshot := func() map[string]time.Time {
		out := map[string]time.Time{}
		expenses, _ := tl.ListScopeExpenses(ctx, pair)
		for _, e := range expenses {
			if !e.Settled {
				t.Errorf("expense %s unsettled", e.ID)
				continue
			}
			out[e.ID.String()] = *e.SettledAt
		}
		return out
	}

	before := snapshot()
	for range 2 {
		settled, err := tl.TryMarkScopeSettled(ctx, pair, "USD")
		if err != nil || !settled {
			t.Fatalf("TryMarkScopeSettled = %v, %v", settled, err)
		}
	}
	after := snapshot()
	if len(before) != 2 || len(after) != 2 {
		t.Fatalf("expected 2 expenses, got %d/%d", len(before), len(after))
	}
	for k, v := range before {
		if !after[k].Equal(v) {
			t.Errorf("settled_at of %s changed: %v → %v", k, v, after[k])
		}
	}
}

func TestSettleReturnsRemaining(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)

	if err := tl.CreateExpense(ctx, paidBy("alice", "300", "INR", "trip", "alice", "bob", "carol")); err != nil {
		t.Fatal(err)
	}

	res, err := tl.Settle(ctx, settlement.Request{
		From: "bob", To: "alice", Currency: "INR",
		Target: settlement.Group{GroupID: "trip", Amount: d("150")},
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.CreatedCount != 1 {
		t.Fatalf("created = %d, want 1", res.CreatedCount)
	}
	if !res.Items[0].Amount.Equal(d("100")) {
		t.Errorf("applied = %s, want 100", res.Items[0].Amount)
	}
	if !res.Remaining.Equal(d("50")) {
		t.Errorf("remaining = %s, want 50", res.Remaining)
	}
	// carol still owes alice, so the group is not settled.
	if res.Items[0].Settled {
		t.Error("group marked settled while carol still owes")
	}

	balances, _ := tl.ComputeScopeBalances(ctx, scope.Group("trip"))
	if !balances.Get("INR", "bob").IsZero() {
		t.Errorf("bob = %s, want 0", balances.Get("INR", "bob"))
	}
	if got := balances.Residual()["INR"]; !got.IsZero() {
		t.Errorf("residual = %s, want 0", got)
	}
}

func TestSettleNetDistributesLargestFirst(t *testing.T) {
	ctx := context.Background()
	tl, dir := newEngine(t)
	dir.SetGroup("flat", "", "alice", "bob")

	// bob owes alice 100 in trip, 30 in flat and 20 personally.
	if err := tl.CreateExpense(ctx, paidBy("alice", "300", "INR", "trip", "alice", "bob", "carol")); err != nil {
		t.Fatal(err)
	}
	if err := tl.CreateExpense(ctx, paidBy("alice", "30", "INR", "flat", "bob")); err != nil {
		t.Fatal(err)
	}
	if err := tl.CreateExpense(ctx, paidBy("alice", "20", "INR", "", "bob")); err != nil {
		t.Fatal(err)
	}

	res, err := tl.Settle(ctx, settlement.Request{
		From: "bob", To: "alice", Currency: "INR",
		Target: settlement.Net{Total: d("140")},
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if res.CreatedCount != 3 {
		t.Fatalf("created = %d, want 3", res.CreatedCount)
	}
	wantOrder := []struct {
		key    string
		amount string
	}{
		{"group:trip", "100"},
		{"group:flat", "30"},
		{"personal:alice:bob", "10"},
	}
	for i, w := range wantOrder {
		it := res.Items[i]
		if it.Scope.Key() != w.key || !it.Amount.Equal(d(w.amount)) {
			t.Errorf("item[%d] = %s %s, want %s %s", i, it.Scope.Key(), it.Amount, w.key, w.amount)
		}
	}
	if !res.Remaining.IsZero() {
		t.Errorf("remaining = %s, want 0", res.Remaining)
	}
	if !res.Items[1].Settled {
		t.Error("flat should be settled")
	}
}

func TestSettleRejects(t *testing.T) {
	ctx := context.Background()
	tl, dir := newEngine(t)
	dir.SetGroup("euro", "EUR", "alice", "bob")

	tests := []struct {
		name  string
		req   settlement.Request
		check func(error) bool
	}{
		{
			"same member",
			settlement.Request{From: "bob", To: "bob", Currency: "USD", Target: settlement.Personal{Amount: d("1")}},
			tally.IsValidation,
		},
		{
			"non-positive amount",
			settlement.Request{From: "bob", To: "alice", Currency: "USD", Target: settlement.Personal{Amount: d("0.001")}},
			tally.IsValidation,
		},
		{
			"unknown group",
			settlement.Request{From: "bob", To: "alice", Currency: "USD", Target: settlement.Group{GroupID: "nope", Amount: d("1")}},
			tally.IsNotFound,
		},
		{
			"non-member",
			settlement.Request{From: "dave", To: "alice", Currency: "USD", Target: settlement.Group{GroupID: "trip", Amount: d("1")}},
			func(err error) bool { return errors.Is(err, tally.ErrNotAMember) },
		},
		{
			"scope currency",
			settlement.Request{From: "bob", To: "alice", Currency: "USD", Target: settlement.Group{GroupID: "euro", Amount: d("1")}},
			func(err error) bool { return errors.Is(err, tally.ErrScopeCurrency) },
		},
		{
			"unshared allocation",
			settlement.Request{From: "bob", To: "carol", Currency: "USD", Target: settlement.AllGroups{
				Allocations: []settlement.Allocation{{GroupID: "euro", Amount: d("1")}},
			}},
			func(err error) bool { return errors.Is(err, tally.ErrNotAMember) },
		},
		{
			"missing target",
			settlement.Request{From: "bob", To: "alice", Currency: "USD"},
			tally.IsValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tl.Settle(ctx, tt.req)
			if err == nil || !tt.check(err) {
				t.Errorf("Settle error = %v", err)
			}
		})
	}
}

func TestRecordSettlementUncapped(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)

	item, err := tl.RecordSettlement(ctx, "bob", "alice", d("25"), "USD", scope.Personal("alice", "bob"))
	if err != nil {
		t.Fatalf("RecordSettlement: %v", err)
	}
	if item.Settled {
		t.Error("an unmatched settlement must leave the scope open")
	}
	if item.Expense.Type != expense.TypeSettle {
		t.Errorf("type = %s, want settle", item.Expense.Type)
	}

	balances, _ := tl.ComputeScopeBalances(ctx, scope.Personal("alice", "bob"))
	if got := balances.Get("USD", "bob"); !got.Equal(d("25")) {
		t.Errorf("bob = %s, want 25", got)
	}
}

func TestSettlementShapeRejected(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)

	e := &expense.Expense{
		Amount: d("10"), Currency: "USD", Type: expense.TypeSettle, SplitMode: expense.ModeValue,
		GroupID: "trip",
		Splits: []expense.Split{
			{Participant: "alice", Paying: true, PayAmount: d("10")},
			{Participant: "bob", Paying: true},
		},
	}
	err := tl.CreateExpense(ctx, e)
	if !errors.Is(err, tally.ErrSettlementShape) || !tally.IsConflict(err) {
		t.Errorf("CreateExpense = %v, want ErrSettlementShape", err)
	}
}

func TestSettledExpenseIsFrozen(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)

	e := paidBy("alice", "40", "USD", "", "bob")
	if err := tl.CreateExpense(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.RecordSettlement(ctx, "bob", "alice", d("40"), "USD", scope.Personal("alice", "bob")); err != nil {
		t.Fatal(err)
	}

	stored, err := tl.GetExpense(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Settled {
		t.Fatal("expense should be settled")
	}

	stored.Description = "edited"
	if err := tl.UpdateExpense(ctx, stored, "alice"); !errors.Is(err, tally.ErrExpenseSettled) {
		t.Errorf("UpdateExpense = %v, want ErrExpenseSettled", err)
	}
	if err := tl.DeleteExpense(ctx, e.ID, "alice"); !errors.Is(err, tally.ErrExpenseSettled) {
		t.Errorf("DeleteExpense = %v, want ErrExpenseSettled", err)
	}
}

func TestUpdateAndDeleteRecordRevisions(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)
	pair := scope.Personal("alice", "bob")

	e := paidBy("alice", "40", "USD", "", "bob")
	if err := tl.CreateExpense(ctx, e); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.RecordSettlement(ctx, "bob", "alice", d("25"), "USD", pair); err != nil {
		t.Fatal(err)
	}

	// Lowering the expense to the settled amount closes the scope.
	edited := paidBy("alice", "25", "USD", "", "bob")
	edited.ID = e.ID
	if err := tl.UpdateExpense(ctx, edited, "alice"); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}
	got, _ := tl.GetExpense(ctx, e.ID)
	if !got.Settled {
		t.Error("scope should be settled after the edit")
	}

	revs, err := tl.ListRevisions(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 1 || !revs[0].Before.Amount.Equal(d("40")) || !revs[0].After.Amount.Equal(d("25")) {
		t.Errorf("revisions = %+v", revs)
	}

	other := paidBy("bob", "10", "USD", "", "alice")
	if err := tl.CreateExpense(ctx, other); err != nil {
		t.Fatal(err)
	}
	if err := tl.DeleteExpense(ctx, other.ID, "bob"); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if _, err := tl.GetExpense(ctx, other.ID); !tally.IsNotFound(err) {
		t.Errorf("GetExpense after delete = %v, want not found", err)
	}
	revs, _ = tl.ListRevisions(ctx, other.ID)
	if len(revs) != 1 || revs[0].After != nil || revs[0].EditedBy != "bob" {
		t.Errorf("delete revision = %+v", revs)
	}
}

func TestGroupExpenseRequiresMembers(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)

	err := tl.CreateExpense(ctx, paidBy("alice", "10", "USD", "trip", "dave"))
	if !errors.Is(err, tally.ErrNotAMember) {
		t.Errorf("CreateExpense = %v, want ErrNotAMember", err)
	}
	err = tl.CreateExpense(ctx, paidBy("alice", "10", "USD", "nowhere", "bob"))
	if !errors.Is(err, tally.ErrScopeNotFound) {
		t.Errorf("CreateExpense = %v, want ErrScopeNotFound", err)
	}
}

func TestLoansAreNettedSeparately(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)
	pair := scope.Personal("alice", "bob")

	loan := paidBy("alice", "70", "USD", "", "bob")
	loan.Type = expense.TypeLoan
	if err := tl.CreateExpense(ctx, loan); err != nil {
		t.Fatal(err)
	}

	balances, _ := tl.ComputeScopeBalances(ctx, pair)
	if !balances.Get("USD", "alice").IsZero() {
		t.Errorf("loan leaked into expense balances: %s", balances.Get("USD", "alice"))
	}
	loans, err := tl.ComputeLoanBalances(ctx, pair)
	if err != nil {
		t.Fatal(err)
	}
	if got := loans.Get("USD", "alice"); !got.Equal(d("70")) {
		t.Errorf("loan balance alice = %s, want 70", got)
	}

	// Clearing the expense side leaves the loan open.
	if err := tl.CreateExpense(ctx, paidBy("alice", "40", "USD", "", "bob")); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.RecordSettlement(ctx, "bob", "alice", d("40"), "USD", pair); err != nil {
		t.Fatal(err)
	}
	got, err := tl.GetExpense(ctx, loan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Settled {
		t.Error("loan was marked settled by an expense settlement")
	}
	loans, err = tl.ComputeLoanBalances(ctx, pair)
	if err != nil {
		t.Fatal(err)
	}
	if got := loans.Get("USD", "alice"); !got.Equal(d("70")) {
		t.Errorf("loan balance alice after settlement = %s, want 70", got)
	}
	if err := tl.DeleteExpense(ctx, loan.ID, "alice"); err != nil {
		t.Errorf("DeleteExpense(loan) = %v", err)
	}
}

func TestGuardSkipsCurrency(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t, tally.WithSimplifierGuardFactor(1))

	if err := tl.CreateExpense(ctx, paidBy("alice", "300", "INR", "trip", "alice", "bob", "carol")); err != nil {
		t.Fatal(err)
	}
	plan, err := tl.ComputeTransferPlan(ctx, scope.Group("trip"))
	if err != nil {
		t.Fatalf("ComputeTransferPlan: %v", err)
	}
	// A factor of one still allows (owers+owed+1) iterations, enough here.
	if len(plan["INR"]) != 2 {
		t.Errorf("transfers = %d, want 2", len(plan["INR"]))
	}
}
