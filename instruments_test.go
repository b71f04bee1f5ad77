package tally_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/tally"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
)

func newWallet(t *testing.T, tl *tally.Tally, owner string, currencies ...string) *instrument.Instrument {
	t.Helper()
	inst := &instrument.Instrument{
		OwnerID:      owner,
		Label:        owner + " wallet",
		Type:         instrument.TypeWallet,
		Capabilities: instrument.Capabilities{Send: true, Receive: true},
		Currencies:   currencies,
	}
	if err := tl.CreateInstrument(context.Background(), inst); err != nil {
		t.Fatalf("CreateInstrument: %v", err)
	}
	return inst
}

func balanceOf(t *testing.T, tl *tally.Tally, instID id.InstrumentID, code string) instrument.Balance {
	t.Helper()
	balances, err := tl.GetBalances(context.Background(), instID)
	if err != nil {
		t.Fatalf("GetBalances: %v", err)
	}
	for _, b := range balances {
		if b.Currency == code {
			return b
		}
	}
	return instrument.Balance{Currency: code}
}

func TestHoldReleaseDebit(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)
	w := newWallet(t, tl, "alice")

	if _, err := tl.Credit(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 1000}); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	steps := []struct {
		name            string
		run             func() (*instrument.Transaction, error)
		available, pend int64
	}{
		{"hold", func() (*instrument.Transaction, error) {
			return tl.Hold(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 500})
		}, 500, 500},
		{"release", func() (*instrument.Transaction, error) {
			return tl.Release(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 200})
		}, 700, 300},
	}
	for _, s := range steps {
		tx, err := s.run()
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if tx.BalanceAfter.Available != s.available || tx.BalanceAfter.Pending != s.pend {
			t.Errorf("%s: after = %+v, want %d/%d", s.name, tx.BalanceAfter, s.available, s.pend)
		}
	}

	_, err := tl.Debit(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 800})
	var ibe *tally.InsufficientBalanceError
	if !errors.As(err, &ibe) || !errors.Is(err, tally.ErrInsufficientBalance) {
		t.Fatalf("Debit = %v, want InsufficientBalanceError", err)
	}
	if ibe.Bucket != instrument.BucketAvailable || ibe.Amount != 800 {
		t.Errorf("error context = %+v", ibe)
	}

	b := balanceOf(t, tl, w.ID, "INR")
	if b.Available != 700 || b.Pending != 300 {
		t.Errorf("balance = %+v, want 700/300", b)
	}

	tx, err := tl.Debit(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 300, Bucket: instrument.BucketPending})
	if err != nil {
		t.Fatalf("Debit pending: %v", err)
	}
	if tx.Kind != instrument.KindCapture || tx.Amount != -300 {
		t.Errorf("pending debit = %s %d, want capture -300", tx.Kind, tx.Amount)
	}
}

func TestTransferInsufficientLeavesBothUnchanged(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)
	x := newWallet(t, tl, "alice")
	y := newWallet(t, tl, "bob")

	if _, err := tl.Credit(ctx, x.ID, instrument.Op{Currency: "INR", Amount: 50}); err != nil {
		t.Fatal(err)
	}
	_, _, err := tl.Transfer(ctx, instrument.TransferOp{From: x.ID, To: y.ID, Currency: "INR", Amount: 100})
	if !errors.Is(err, tally.ErrInsufficientBalance) {
		t.Fatalf("Transfer = %v, want ErrInsufficientBalance", err)
	}
	if b := balanceOf(t, tl, x.ID, "INR"); b.Available != 50 {
		t.Errorf("source = %+v, want 50", b)
	}
	if b := balanceOf(t, tl, y.ID, "INR"); !b.IsZero() {
		t.Errorf("destination = %+v, want zero", b)
	}
	page, _ := tl.ListTransactions(ctx, instrument.TxQuery{InstrumentID: y.ID})
	if len(page.Items) != 0 {
		t.Errorf("destination journal = %d rows, want 0", len(page.Items))
	}

	out, in, err := tl.Transfer(ctx, instrument.TransferOp{From: x.ID, To: y.ID, Currency: "INR", Amount: 50})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if out.OriginID.String() != in.ID.String() || in.OriginID.String() != out.ID.String() {
		t.Error("transfer rows are not linked")
	}
	if out.Kind != instrument.KindTransferOut || in.Kind != instrument.KindTransferIn {
		t.Errorf("kinds = %s/%s", out.Kind, in.Kind)
	}
}

func TestLedgerValidation(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)
	w := newWallet(t, tl, "alice", "INR")
	recvOnly := &instrument.Instrument{
		OwnerID: "bob", Label: "inbox", Capabilities: instrument.Capabilities{Receive: true},
	}
	if err := tl.CreateInstrument(ctx, recvOnly); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Credit(ctx, recvOnly.ID, instrument.Op{Currency: "INR", Amount: 10}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"zero amount", func() error {
			_, err := tl.Credit(ctx, w.ID, instrument.Op{Currency: "INR"})
			return err
		}, tally.ErrInvalidInput},
		{"bad bucket", func() error {
			_, err := tl.Credit(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 1, Bucket: "frozen"})
			return err
		}, tally.ErrInvalidInput},
		{"wrong kind", func() error {
			_, err := tl.Credit(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 1, Kind: instrument.KindWithdrawal})
			return err
		}, tally.ErrInvalidInput},
		{"currency not allowed", func() error {
			_, err := tl.Credit(ctx, w.ID, instrument.Op{Currency: "USD", Amount: 1})
			return err
		}, tally.ErrCurrencyNotAllowed},
		{"unknown instrument", func() error {
			_, err := tl.Credit(ctx, id.NewInstrumentID(), instrument.Op{Currency: "INR", Amount: 1})
			return err
		}, tally.ErrInstrumentNotFound},
		{"self transfer", func() error {
			_, _, err := tl.Transfer(ctx, instrument.TransferOp{From: w.ID, To: w.ID, Currency: "INR", Amount: 1})
			return err
		}, tally.ErrInvalidInput},
		{"cannot send", func() error {
			_, _, err := tl.Transfer(ctx, instrument.TransferOp{From: recvOnly.ID, To: w.ID, Currency: "INR", Amount: 1})
			return err
		}, tally.ErrCapability},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	w.Status = instrument.StatusFrozen
	if err := tl.UpdateInstrument(ctx, w); err != nil {
		t.Fatal(err)
	}
	if _, err := tl.Credit(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 1}); !errors.Is(err, tally.ErrInstrumentInactive) {
		t.Errorf("frozen credit = %v, want ErrInstrumentInactive", err)
	}
}

func TestConcurrentDebitsStayNonNegative(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)
	w := newWallet(t, tl, "alice")

	if _, err := tl.Credit(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 1000}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch i % 4 {
			case 0:
				_, _ = tl.Hold(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 90})
			case 1:
				_, _ = tl.Release(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 60})
			case 2:
				_, _ = tl.Debit(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 70})
			default:
				_, _ = tl.Debit(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 40, Bucket: instrument.BucketPending})
			}
		}()
	}
	wg.Wait()

	page, err := tl.ListTransactions(ctx, instrument.TxQuery{InstrumentID: w.ID, Limit: tally.MaxTransactionPageSize})
	if err != nil {
		t.Fatal(err)
	}
	for _, tx := range page.Items {
		if tx.BalanceAfter.Available < 0 || tx.BalanceAfter.Pending < 0 {
			t.Fatalf("negative balance after %s: %+v", tx.Kind, tx.BalanceAfter)
		}
	}
	b := balanceOf(t, tl, w.ID, "INR")
	if b.Available < 0 || b.Pending < 0 {
		t.Fatalf("negative balance: %+v", b)
	}
}

func TestDefaultFlagUniqueness(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)

	a := newWallet(t, tl, "alice")
	b := newWallet(t, tl, "alice")
	c := &instrument.Instrument{OwnerID: "alice", Label: "card", IsDefaultSend: true, IsDefaultReceive: true}
	if err := tl.CreateInstrument(ctx, c); err != nil {
		t.Fatal(err)
	}

	sequence := []struct {
		inst *instrument.Instrument
		flag instrument.DefaultFlag
	}{
		{a, instrument.DefaultSend},
		{b, instrument.DefaultReceive},
		{b, instrument.DefaultSend},
		{a, instrument.DefaultReceive},
		{c, instrument.DefaultSend},
	}
	for _, step := range sequence {
		if err := tl.SetDefaultInstrument(ctx, "alice", step.inst.ID, step.flag); err != nil {
			t.Fatalf("SetDefaultInstrument: %v", err)
		}
		list, err := tl.ListInstruments(ctx, "alice", instrument.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		var send, recv int
		for _, inst := range list {
			if inst.IsDefaultSend {
				send++
			}
			if inst.IsDefaultReceive {
				recv++
			}
		}
		if send > 1 || recv > 1 {
			t.Fatalf("after %s on %s: send=%d receive=%d", step.flag, step.inst.ID, send, recv)
		}
	}

	if err := tl.SetDefaultInstrument(ctx, "bob", a.ID, instrument.DefaultSend); !tally.IsNotFound(err) {
		t.Errorf("foreign owner = %v, want not found", err)
	}
}

func TestDeleteInstrumentWithBalance(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)
	w := newWallet(t, tl, "alice")

	if _, err := tl.Credit(ctx, w.ID, instrument.Op{Currency: "USD", Amount: 5}); err != nil {
		t.Fatal(err)
	}
	if err := tl.DeleteInstrument(ctx, w.ID); !errors.Is(err, tally.ErrInstrumentHasBalance) {
		t.Fatalf("DeleteInstrument = %v, want ErrInstrumentHasBalance", err)
	}
	if _, err := tl.Debit(ctx, w.ID, instrument.Op{Currency: "USD", Amount: 5, Kind: instrument.KindWithdrawal}); err != nil {
		t.Fatal(err)
	}
	if err := tl.DeleteInstrument(ctx, w.ID); err != nil {
		t.Fatalf("DeleteInstrument: %v", err)
	}
	if _, err := tl.GetInstrument(ctx, w.ID); !errors.Is(err, tally.ErrInstrumentNotFound) {
		t.Errorf("GetInstrument = %v, want ErrInstrumentNotFound", err)
	}
}

func TestListTransactionsPaging(t *testing.T) {
	ctx := context.Background()
	tl, _ := newEngine(t)
	w := newWallet(t, tl, "alice")

	for range 5 {
		if _, err := tl.Credit(ctx, w.ID, instrument.Op{Currency: "INR", Amount: 10}); err != nil {
			t.Fatal(err)
		}
	}

	q := instrument.TxQuery{InstrumentID: w.ID, Limit: 2}
	var seen []int64
	for pages := 0; pages < 5; pages++ {
		page, err := tl.ListTransactions(ctx, q)
		if err != nil {
			t.Fatal(err)
		}
		for _, tx := range page.Items {
			seen = append(seen, tx.BalanceAfter.Available)
		}
		if page.NextCursor == nil {
			break
		}
		q.Before = *page.NextCursor
	}

	want := []int64{50, 40, 30, 20, 10}
	if len(seen) != len(want) {
		t.Fatalf("seen %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("row %d = %d, want %d", i, seen[i], want[i])
		}
	}

	if _, err := tl.ListTransactions(ctx, instrument.TxQuery{Kind: "bogus"}); !tally.IsValidation(err) {
		t.Errorf("bad kind = %v, want validation error", err)
	}
}
