package instrument

import (
	"strings"

	"github.com/xraph/tally/currency"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Op is a single-instrument ledger request. Bucket defaults to available;
// Kind defaults to the operation's natural kind.
type Op struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	Bucket   Bucket `json:"bucket,omitempty"`
	Kind     Kind   `json:"kind,omitempty"`
	Note     string `json:"note,omitempty"`
}

// TransferOp moves value between two instruments.
type TransferOp struct {
	From       id.InstrumentID `json:"from"`
	To         id.InstrumentID `json:"to"`
	Currency   string          `json:"currency"`
	Amount     int64           `json:"amount"`
	FromBucket Bucket          `json:"from_bucket,omitempty"`
	ToBucket   Bucket          `json:"to_bucket,omitempty"`
	Note       string          `json:"note,omitempty"`
}

// Normalize validates op in place. allowed lists the kinds the calling
// operation accepts; the first one is the default.
func (op *Op) Normalize(allowed ...Kind) error {
	op.Currency = currency.Normalize(op.Currency)
	if !currency.Valid(op.Currency) {
		return types.Invalid("currency", "%q is not an ISO 4217 code", op.Currency)
	}
	if op.Amount <= 0 {
		return types.Invalid("amount", "must be positive, got %d", op.Amount)
	}
	if op.Bucket == "" {
		op.Bucket = BucketAvailable
	}
	if !op.Bucket.Valid() {
		return types.Invalid("bucket", "unknown bucket %q", op.Bucket)
	}
	if op.Kind == "" && len(allowed) > 0 {
		op.Kind = allowed[0]
	}
	for _, k := range allowed {
		if op.Kind == k {
			return nil
		}
	}
	return types.Invalid("kind", "%q is not allowed here", op.Kind)
}

// Normalize validates op in place.
func (op *TransferOp) Normalize() error {
	op.Currency = currency.Normalize(op.Currency)
	if !currency.Valid(op.Currency) {
		return types.Invalid("currency", "%q is not an ISO 4217 code", op.Currency)
	}
	if op.Amount <= 0 {
		return types.Invalid("amount", "must be positive, got %d", op.Amount)
	}
	if op.From.IsNil() || op.To.IsNil() {
		return types.Invalid("from/to", "both instruments are required")
	}
	if op.From.Equal(op.To) {
		return types.Invalid("to", "must differ from the source instrument")
	}
	if op.FromBucket == "" {
		op.FromBucket = BucketAvailable
	}
	if op.ToBucket == "" {
		op.ToBucket = BucketAvailable
	}
	if !op.FromBucket.Valid() {
		return types.Invalid("from_bucket", "unknown bucket %q", op.FromBucket)
	}
	if !op.ToBucket.Valid() {
		return types.Invalid("to_bucket", "unknown bucket %q", op.ToBucket)
	}
	return nil
}

// Delta returns the (available, pending) delta of adding amount to bucket.
func Delta(bucket Bucket, amount int64) (int64, int64) {
	if bucket == BucketPending {
		return 0, amount
	}
	return amount, 0
}

// Validate checks an instrument before it is created or updated, and fills
// defaults.
func Validate(inst *Instrument) error {
	if strings.TrimSpace(inst.OwnerID) == "" {
		return types.Invalid("owner_id", "is required")
	}
	if strings.TrimSpace(inst.Label) == "" {
		return types.Invalid("label", "is required")
	}
	if inst.Type == "" {
		inst.Type = TypeOther
	}
	if !inst.Type.Valid() {
		return types.Invalid("type", "unknown instrument type %q", inst.Type)
	}
	if inst.Status == "" {
		inst.Status = StatusActive
	}
	if !inst.Status.Valid() {
		return types.Invalid("status", "unknown status %q", inst.Status)
	}
	for i, c := range inst.Currencies {
		c = currency.Normalize(c)
		if !currency.Valid(c) {
			return types.Invalid("currencies", "%q is not an ISO 4217 code", c)
		}
		inst.Currencies[i] = c
	}
	return nil
}
