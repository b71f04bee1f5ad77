// Package instrument models payment instruments, their per-currency balances
// and the append-only journal of balance mutations.
package instrument

import (
	"slices"
	"strings"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

type Type string

const (
	TypeBank   Type = "bank"
	TypeCard   Type = "card"
	TypeWallet Type = "wallet"
	TypeCash   Type = "cash"
	TypeUPI    Type = "upi"
	TypeOther  Type = "other"
)

func (t Type) Valid() bool {
	switch t {
	case TypeBank, TypeCard, TypeWallet, TypeCash, TypeUPI, TypeOther:
		return true
	}
	return false
}

type Status string

const (
	StatusActive Status = "active"
	StatusFrozen Status = "frozen"
	StatusClosed Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusFrozen, StatusClosed:
		return true
	}
	return false
}

type Capabilities struct {
	Send    bool `json:"send"`
	Receive bool `json:"receive"`
}

// Instrument is a user-owned source or destination of value.
type Instrument struct {
	types.Entity
	ID               id.InstrumentID   `json:"id"`
	OwnerID          string            `json:"owner_id"`
	Label            string            `json:"label"`
	Type             Type              `json:"type"`
	Capabilities     Capabilities      `json:"capabilities"`
	Currencies       []string          `json:"currencies,omitempty"`
	Status           Status            `json:"status"`
	IsDefaultSend    bool              `json:"is_default_send"`
	IsDefaultReceive bool              `json:"is_default_receive"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Allows reports whether code is on the currency whitelist. An empty
// whitelist allows any currency.
func (i *Instrument) Allows(code string) bool {
	if len(i.Currencies) == 0 {
		return true
	}
	return slices.ContainsFunc(i.Currencies, func(c string) bool {
		return strings.EqualFold(c, code)
	})
}

// Bucket names one of the two balance counters.
type Bucket string

const (
	BucketAvailable Bucket = "available"
	BucketPending   Bucket = "pending"
)

func (b Bucket) Valid() bool { return b == BucketAvailable || b == BucketPending }

// Balance is the state of one instrument in one currency, in minor units.
// Both counters are never negative.
type Balance struct {
	Currency  string `json:"currency"`
	Available int64  `json:"available"`
	Pending   int64  `json:"pending"`
}

// Get returns the counter of bucket b.
func (b Balance) Get(bucket Bucket) int64 {
	if bucket == BucketPending {
		return b.Pending
	}
	return b.Available
}

// IsZero reports whether both counters are zero.
func (b Balance) IsZero() bool { return b.Available == 0 && b.Pending == 0 }

// Kind classifies a journal row.
type Kind string

const (
	KindCredit      Kind = "credit"
	KindDebit       Kind = "debit"
	KindHold        Kind = "hold"
	KindRelease     Kind = "release"
	KindCapture     Kind = "capture"
	KindTransferIn  Kind = "transfer_in"
	KindTransferOut Kind = "transfer_out"
	KindAdjustment  Kind = "adjustment"
	KindTopup       Kind = "topup"
	KindWithdrawal  Kind = "withdrawal"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCredit, KindDebit, KindHold, KindRelease, KindCapture,
		KindTransferIn, KindTransferOut, KindAdjustment, KindTopup, KindWithdrawal:
		return true
	}
	return false
}

// Snapshot is the balance right after a mutation.
type Snapshot struct {
	Available int64 `json:"available"`
	Pending   int64 `json:"pending"`
}

// Transaction is one immutable journal row. Amount is the signed change of
// Bucket; hold and release move the same amount into the other bucket.
type Transaction struct {
	ID           id.TransactionID `json:"id"`
	InstrumentID id.InstrumentID  `json:"instrument_id"`
	Currency     string           `json:"currency"`
	Amount       int64            `json:"amount"`
	Kind         Kind             `json:"kind"`
	Bucket       Bucket           `json:"bucket"`
	BalanceAfter Snapshot         `json:"balance_after"`
	OriginID     id.TransactionID `json:"origin_id,omitzero"`
	Note         string           `json:"note,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}
