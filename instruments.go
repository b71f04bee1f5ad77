package tally

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/types"
)

// DefaultTransactionPageSize is used when a transaction query has no limit.
const DefaultTransactionPageSize = 50

// MaxTransactionPageSize caps a transaction query's limit.
const MaxTransactionPageSize = 500

// ──────────────────────────────────────────────────
// Instrument management
// ──────────────────────────────────────────────────

// CreateInstrument stores a new instrument. Default flags requested on the
// instrument are applied through SetDefaultInstrument so that they move away
// from the owner's other instruments atomically.
func (t *Tally) CreateInstrument(ctx context.Context, inst *instrument.Instrument) error {
	if err := instrument.Validate(inst); err != nil {
		return err
	}
	wantSend, wantReceive := inst.IsDefaultSend, inst.IsDefaultReceive
	inst.IsDefaultSend, inst.IsDefaultReceive = false, false
	inst.ID = id.NewInstrumentID()
	inst.Entity = types.NewEntityAt(t.now())

	if err := t.instruments.Create(ctx, inst); err != nil {
		return err
	}
	t.plugins.EmitInstrumentCreated(ctx, inst)

	if wantSend {
		if err := t.SetDefaultInstrument(ctx, inst.OwnerID, inst.ID, instrument.DefaultSend); err != nil {
			return err
		}
		inst.IsDefaultSend = true
	}
	if wantReceive {
		if err := t.SetDefaultInstrument(ctx, inst.OwnerID, inst.ID, instrument.DefaultReceive); err != nil {
			return err
		}
		inst.IsDefaultReceive = true
	}
	return nil
}

// GetInstrument retrieves an instrument by ID.
func (t *Tally) GetInstrument(ctx context.Context, instID id.InstrumentID) (*instrument.Instrument, error) {
	return t.instruments.Get(ctx, instID)
}

// ListInstruments lists an owner's instruments.
func (t *Tally) ListInstruments(ctx context.Context, ownerID string, opts instrument.ListOpts) ([]*instrument.Instrument, error) {
	return t.instruments.List(ctx, ownerID, opts)
}

// UpdateInstrument updates the descriptive fields of an instrument. The
// owner and the default flags are kept; use SetDefaultInstrument for flags.
func (t *Tally) UpdateInstrument(ctx context.Context, inst *instrument.Instrument) error {
	existing, err := t.instruments.Get(ctx, inst.ID)
	if err != nil {
		return err
	}
	inst.OwnerID = existing.OwnerID
	if err := instrument.Validate(inst); err != nil {
		return err
	}
	inst.IsDefaultSend = existing.IsDefaultSend
	inst.IsDefaultReceive = existing.IsDefaultReceive
	inst.Entity = existing.Entity
	inst.Touch(t.now())

	return t.instruments.Update(ctx, inst)
}

// DeleteInstrument deletes an instrument that holds no balance in any
// currency. Its journal is kept.
func (t *Tally) DeleteInstrument(ctx context.Context, instID id.InstrumentID) error {
	balances, err := t.GetBalances(ctx, instID)
	if err != nil {
		return err
	}
	for _, b := range balances {
		if !b.IsZero() {
			return fmt.Errorf("%w: %s holds %d/%d %s", ErrInstrumentHasBalance, instID, b.Available, b.Pending, b.Currency)
		}
	}
	if err := t.instruments.Delete(ctx, instID); err != nil {
		return err
	}
	t.plugins.EmitInstrumentDeleted(ctx, instID)
	return nil
}

// SetDefaultInstrument sets a default flag on one instrument and clears it on
// every other instrument of the same owner, in one atomic store operation.
func (t *Tally) SetDefaultInstrument(ctx context.Context, ownerID string, instID id.InstrumentID, flag instrument.DefaultFlag) error {
	if !flag.Valid() {
		return types.Invalid("flag", "unknown default flag %q", flag)
	}
	inst, err := t.instruments.Get(ctx, instID)
	if err != nil {
		return err
	}
	if inst.OwnerID != ownerID {
		return fmt.Errorf("%w: %s is not owned by %s", ErrInstrumentNotFound, instID, ownerID)
	}
	if err := t.instruments.SetDefault(ctx, ownerID, instID, flag); err != nil {
		return err
	}
	t.plugins.EmitDefaultChanged(ctx, ownerID, instID, flag)
	return nil
}

// GetBalances returns an instrument's balance in every currency it has used.
func (t *Tally) GetBalances(ctx context.Context, instID id.InstrumentID) ([]instrument.Balance, error) {
	if _, err := t.instruments.Get(ctx, instID); err != nil {
		return nil, err
	}
	return t.instruments.Balances(ctx, instID)
}

// ──────────────────────────────────────────────────
// Balance ledger
// ──────────────────────────────────────────────────

// Credit adds to one bucket. Kind may be credit, topup or adjustment.
func (t *Tally) Credit(ctx context.Context, instID id.InstrumentID, op instrument.Op) (*instrument.Transaction, error) {
	if err := op.Normalize(instrument.KindCredit, instrument.KindTopup, instrument.KindAdjustment); err != nil {
		return nil, err
	}
	da, dp := instrument.Delta(op.Bucket, op.Amount)
	return t.apply(ctx, instID, op, da, dp, op.Bucket, op.Amount)
}

// Debit removes from one bucket if it holds enough. Kind may be debit,
// withdrawal, capture or adjustment; a plain debit of the pending bucket is
// journaled as a capture.
func (t *Tally) Debit(ctx context.Context, instID id.InstrumentID, op instrument.Op) (*instrument.Transaction, error) {
	if err := op.Normalize(instrument.KindDebit, instrument.KindWithdrawal, instrument.KindCapture, instrument.KindAdjustment); err != nil {
		return nil, err
	}
	if op.Bucket == instrument.BucketPending && op.Kind == instrument.KindDebit {
		op.Kind = instrument.KindCapture
	}
	da, dp := instrument.Delta(op.Bucket, -op.Amount)
	return t.apply(ctx, instID, op, da, dp, op.Bucket, -op.Amount)
}

// Hold moves an amount from available to pending.
func (t *Tally) Hold(ctx context.Context, instID id.InstrumentID, op instrument.Op) (*instrument.Transaction, error) {
	op.Bucket = instrument.BucketAvailable
	if err := op.Normalize(instrument.KindHold); err != nil {
		return nil, err
	}
	return t.apply(ctx, instID, op, -op.Amount, op.Amount, instrument.BucketAvailable, -op.Amount)
}

// Release moves an amount from pending back to available.
func (t *Tally) Release(ctx context.Context, instID id.InstrumentID, op instrument.Op) (*instrument.Transaction, error) {
	op.Bucket = instrument.BucketPending
	if err := op.Normalize(instrument.KindRelease); err != nil {
		return nil, err
	}
	return t.apply(ctx, instID, op, op.Amount, -op.Amount, instrument.BucketPending, -op.Amount)
}

func (t *Tally) apply(ctx context.Context, instID id.InstrumentID, op instrument.Op, da, dp int64, bucket instrument.Bucket, signed int64) (*instrument.Transaction, error) {
	inst, err := t.instruments.Get(ctx, instID)
	if err != nil {
		return nil, err
	}
	if err := usable(inst, op.Currency); err != nil {
		return nil, err
	}

	tx, err := t.instruments.Apply(ctx, instrument.Mutation{
		InstrumentID:   instID,
		Currency:       op.Currency,
		DeltaAvailable: da,
		DeltaPending:   dp,
		Tx: &instrument.Transaction{
			ID:           id.NewTransactionID(),
			InstrumentID: instID,
			Currency:     op.Currency,
			Amount:       signed,
			Kind:         op.Kind,
			Bucket:       bucket,
			Note:         op.Note,
			CreatedAt:    t.now(),
		},
	})
	if errors.Is(err, ErrInsufficientBalance) {
		return nil, t.insufficient(ctx, instID, op.Currency, bucket, op.Amount)
	}
	if err != nil {
		return nil, err
	}

	t.logger.Debug("ledger mutated",
		"instrument", instID.String(),
		"kind", string(tx.Kind),
		"currency", tx.Currency,
		"amount", tx.Amount,
	)
	t.plugins.EmitLedgerMutated(ctx, tx)
	return tx, nil
}

// Transfer moves value between two instruments. The debit of the source and
// the credit of the destination happen together or not at all.
func (t *Tally) Transfer(ctx context.Context, op instrument.TransferOp) (*instrument.Transaction, *instrument.Transaction, error) {
	if err := op.Normalize(); err != nil {
		return nil, nil, err
	}

	from, err := t.instruments.Get(ctx, op.From)
	if err != nil {
		return nil, nil, err
	}
	to, err := t.instruments.Get(ctx, op.To)
	if err != nil {
		return nil, nil, err
	}
	if err := usable(from, op.Currency); err != nil {
		return nil, nil, err
	}
	if err := usable(to, op.Currency); err != nil {
		return nil, nil, err
	}
	if !from.Capabilities.Send {
		return nil, nil, fmt.Errorf("%w: %s cannot send", ErrCapability, from.ID)
	}
	if !to.Capabilities.Receive {
		return nil, nil, fmt.Errorf("%w: %s cannot receive", ErrCapability, to.ID)
	}

	outAt, inAt := t.now(), t.now()
	outID, inID := id.NewTransactionID(), id.NewTransactionID()
	outA, outP := instrument.Delta(op.FromBucket, -op.Amount)
	inA, inP := instrument.Delta(op.ToBucket, op.Amount)

	out := instrument.Mutation{
		InstrumentID: op.From, Currency: op.Currency, DeltaAvailable: outA, DeltaPending: outP,
		Tx: &instrument.Transaction{
			ID: outID, InstrumentID: op.From, Currency: op.Currency, Amount: -op.Amount,
			Kind: instrument.KindTransferOut, Bucket: op.FromBucket, OriginID: inID,
			Note: op.Note, CreatedAt: outAt,
		},
	}
	in := instrument.Mutation{
		InstrumentID: op.To, Currency: op.Currency, DeltaAvailable: inA, DeltaPending: inP,
		Tx: &instrument.Transaction{
			ID: inID, InstrumentID: op.To, Currency: op.Currency, Amount: op.Amount,
			Kind: instrument.KindTransferIn, Bucket: op.ToBucket, OriginID: outID,
			Note: op.Note, CreatedAt: inAt,
		},
	}

	outTx, inTx, err := t.instruments.Transfer(ctx, out, in)
	if errors.Is(err, ErrInsufficientBalance) {
		return nil, nil, t.insufficient(ctx, op.From, op.Currency, op.FromBucket, op.Amount)
	}
	if err != nil {
		return nil, nil, err
	}

	t.logger.Debug("transfer completed",
		"from", op.From.String(),
		"to", op.To.String(),
		"currency", op.Currency,
		"amount", op.Amount,
	)
	t.plugins.EmitTransferCompleted(ctx, outTx, inTx)
	return outTx, inTx, nil
}

// TransactionPage is one page of journal rows, newest first. NextCursor is
// set when more rows may follow; pass it back as TxQuery.Before.
type TransactionPage struct {
	Items      []*instrument.Transaction `json:"items"`
	NextCursor *time.Time                `json:"next_cursor,omitempty"`
}

// ListTransactions pages through the journal newest first.
func (t *Tally) ListTransactions(ctx context.Context, q instrument.TxQuery) (*TransactionPage, error) {
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultTransactionPageSize
	case q.Limit > MaxTransactionPageSize:
		q.Limit = MaxTransactionPageSize
	}
	if q.Kind != "" && !q.Kind.Valid() {
		return nil, types.Invalid("kind", "unknown transaction kind %q", q.Kind)
	}

	items, err := t.instruments.ListTransactions(ctx, q)
	if err != nil {
		return nil, err
	}

	page := &TransactionPage{Items: items}
	if len(items) == q.Limit {
		next := items[len(items)-1].CreatedAt
		page.NextCursor = &next
	}
	return page, nil
}

func usable(inst *instrument.Instrument, code string) error {
	if inst.Status != instrument.StatusActive {
		return fmt.Errorf("%w: %s is %s", ErrInstrumentInactive, inst.ID, inst.Status)
	}
	if !inst.Allows(code) {
		return fmt.Errorf("%w: %s does not accept %s", ErrCurrencyNotAllowed, inst.ID, code)
	}
	return nil
}

func (t *Tally) insufficient(ctx context.Context, instID id.InstrumentID, code string, bucket instrument.Bucket, amount int64) error {
	t.logger.Info("insufficient balance",
		"instrument", instID.String(),
		"currency", code,
		"bucket", string(bucket),
		"amount", amount,
	)
	t.plugins.EmitInsufficientBalance(ctx, instID, code, bucket, amount)
	return &InsufficientBalanceError{
		InstrumentID: instID.String(),
		Currency:     code,
		Bucket:       bucket,
		Amount:       amount,
	}
}
