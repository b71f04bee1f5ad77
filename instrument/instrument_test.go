package instrument

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

func TestAllows(t *testing.T) {
	open := &Instrument{}
	if !open.Allows("JPY") {
		t.Error("empty whitelist should allow any currency")
	}

	inr := &Instrument{Currencies: []string{"INR"}}
	if !inr.Allows("inr") || inr.Allows("USD") {
		t.Error("whitelist not enforced")
	}
}

func TestOpNormalize(t *testing.T) {
	tests := []struct {
		name    string
		op      Op
		allowed []Kind
		want    Kind
		wantErr bool
	}{
		{"defaults", Op{Currency: "inr", Amount: 10}, []Kind{KindCredit, KindTopup}, KindCredit, false},
		{"explicit kind", Op{Currency: "INR", Amount: 10, Kind: KindTopup}, []Kind{KindCredit, KindTopup}, KindTopup, false},
		{"kind not allowed", Op{Currency: "INR", Amount: 10, Kind: KindHold}, []Kind{KindCredit}, "", true},
		{"zero amount", Op{Currency: "INR"}, []Kind{KindCredit}, "", true},
		{"bad currency", Op{Currency: "rupee", Amount: 1}, []Kind{KindCredit}, "", true},
		{"bad bucket", Op{Currency: "INR", Amount: 1, Bucket: "frozen"}, []Kind{KindCredit}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := tt.op
			err := op.Normalize(tt.allowed...)
			if tt.wantErr {
				if !errors.Is(err, types.ErrInvalidInput) {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if op.Kind != tt.want || op.Bucket != BucketAvailable || op.Currency != "INR" {
				t.Errorf("normalized op = %+v", op)
			}
		})
	}
}

func TestTransferOpNormalize(t *testing.T) {
	x, y := id.NewInstrumentID(), id.NewInstrumentID()

	op := TransferOp{From: x, To: y, Currency: "usd", Amount: 5}
	if err := op.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if op.FromBucket != BucketAvailable || op.ToBucket != BucketAvailable {
		t.Errorf("buckets not defaulted: %+v", op)
	}

	same := TransferOp{From: x, To: x, Currency: "USD", Amount: 5}
	if err := same.Normalize(); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("expected error for self transfer, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	inst := &Instrument{OwnerID: "u1", Label: "Wallet", Currencies: []string{"inr", "usd"}}
	if err := Validate(inst); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if inst.Type != TypeOther || inst.Status != StatusActive || inst.Currencies[0] != "INR" {
		t.Errorf("defaults not applied: %+v", inst)
	}

	for name, bad := range map[string]*Instrument{
		"no owner":     {Label: "x"},
		"no label":     {OwnerID: "u"},
		"bad type":     {OwnerID: "u", Label: "x", Type: "crypto"},
		"bad currency": {OwnerID: "u", Label: "x", Currencies: []string{"EURO"}},
	} {
		if err := Validate(bad); !errors.Is(err, types.ErrInvalidInput) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestTxQueryMatch(t *testing.T) {
	inst := id.NewInstrumentID()
	now := time.Now()
	tx := &Transaction{InstrumentID: inst, Currency: "INR", Kind: KindHold, CreatedAt: now}

	tests := []struct {
		name string
		q    TxQuery
		want bool
	}{
		{"empty", TxQuery{}, true},
		{"instrument", TxQuery{InstrumentID: inst}, true},
		{"other instrument", TxQuery{InstrumentID: id.NewInstrumentID()}, false},
		{"currency", TxQuery{Currency: "USD"}, false},
		{"kind", TxQuery{Kind: KindHold}, true},
		{"before later", TxQuery{Before: now.Add(time.Second)}, true},
		{"before same instant", TxQuery{Before: now}, false},
	}
	for _, tt := range tests {
		if got := tt.q.Match(tx); got != tt.want {
			t.Errorf("%s: Match = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestBalanceGet(t *testing.T) {
	b := Balance{Available: 7, Pending: 3}
	if b.Get(BucketAvailable) != 7 || b.Get(BucketPending) != 3 || b.IsZero() {
		t.Errorf("unexpected %+v", b)
	}
	if a, p := Delta(BucketPending, 5); a != 0 || p != 5 {
		t.Errorf("Delta pending = %d,%d", a, p)
	}
}
