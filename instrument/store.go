package instrument

import (
	"context"
	"time"

	"github.com/xraph/tally/id"
)

// DefaultFlag names one of the per-owner default flags.
type DefaultFlag string

const (
	DefaultSend    DefaultFlag = "send"
	DefaultReceive DefaultFlag = "receive"
)

func (f DefaultFlag) Valid() bool { return f == DefaultSend || f == DefaultReceive }

// Mutation is a guarded change of one instrument's balance in one currency.
// A store applies both deltas only if neither counter goes negative, and
// appends Tx in the same unit of work with BalanceAfter filled in.
type Mutation struct {
	InstrumentID   id.InstrumentID
	Currency       string
	DeltaAvailable int64
	DeltaPending   int64
	Tx             *Transaction
}

// Store persists instruments, balances and the journal.
//
// Apply and Transfer return tally.ErrInsufficientBalance when a guard fails
// and leave state untouched. Transfer applies both mutations or neither.
type Store interface {
	Create(ctx context.Context, inst *Instrument) error
	Get(ctx context.Context, instID id.InstrumentID) (*Instrument, error)
	List(ctx context.Context, ownerID string, opts ListOpts) ([]*Instrument, error)
	Update(ctx context.Context, inst *Instrument) error
	Delete(ctx context.Context, instID id.InstrumentID) error
	SetDefault(ctx context.Context, ownerID string, instID id.InstrumentID, flag DefaultFlag) error

	Balances(ctx context.Context, instID id.InstrumentID) ([]Balance, error)
	Apply(ctx context.Context, m Mutation) (*Transaction, error)
	Transfer(ctx context.Context, out, in Mutation) (*Transaction, *Transaction, error)
	ListTransactions(ctx context.Context, q TxQuery) ([]*Transaction, error)
}

type ListOpts struct {
	Status Status
	Limit  int
	Offset int
}

// TxQuery selects journal rows newest first. A non-zero Before keeps only
// rows strictly older than it.
type TxQuery struct {
	InstrumentID id.InstrumentID
	Currency     string
	Kind         Kind
	Before       time.Time
	Limit        int
}

// Match reports whether tx satisfies the query, ignoring Limit.
func (q TxQuery) Match(tx *Transaction) bool {
	if !q.InstrumentID.IsNil() && !tx.InstrumentID.Equal(q.InstrumentID) {
		return false
	}
	if q.Currency != "" && tx.Currency != q.Currency {
		return false
	}
	if q.Kind != "" && tx.Kind != q.Kind {
		return false
	}
	if !q.Before.IsZero() && !tx.CreatedAt.Before(q.Before) {
		return false
	}
	return true
}
