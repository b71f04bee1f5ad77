package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tally"
	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	tallystore "github.com/xraph/tally/store"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("tally/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: sqlite: %w", tally.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Expense Store ====================

func (s *Store) CreateExpense(ctx context.Context, e *expense.Expense) error {
	_, err := s.sdb.NewInsert(toExpenseModel(e)).Exec(ctx)
	return err
}

func (s *Store) GetExpense(ctx context.Context, expenseID id.ExpenseID) (*expense.Expense, error) {
	m := new(expenseModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", expenseID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrExpenseNotFound
		}
		return nil, err
	}
	return fromExpenseModel(m)
}

func (s *Store) FindExpenses(ctx context.Context, f expense.Filter) ([]*expense.Expense, error) {
	var models []expenseModel
	q := s.sdb.NewSelect(&models)

	if f.GroupID != "" {
		q = q.Where("group_id = ?", f.GroupID)
	}
	if f.PairKey != "" {
		q = q.Where("group_id = '' AND pair_key = ?", f.PairKey)
	}
	if f.Currency != "" {
		q = q.Where("currency = ?", f.Currency)
	}
	if f.UnsettledOnly {
		q = q.Where("settled = 0")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	q = q.OrderExpr("created_at ASC, id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*expense.Expense, len(models))
	for i := range models {
		e, err := fromExpenseModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) UpdateExpense(ctx context.Context, e *expense.Expense) error {
	res, err := s.sdb.NewUpdate(toExpenseModel(e)).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res, tally.ErrExpenseNotFound)
}

func (s *Store) DeleteExpense(ctx context.Context, expenseID id.ExpenseID) error {
	res, err := s.sdb.NewDelete((*expenseModel)(nil)).
		Where("id = ?", expenseID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res, tally.ErrExpenseNotFound)
}

func (s *Store) MarkSettled(ctx context.Context, ids []id.ExpenseID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, eid := range ids {
		args[i] = eid.String()
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")

	res, err := s.sdb.NewUpdate((*expenseModel)(nil)).
		Set("settled = 1").
		Set("settled_at = ?", at).
		Set("updated_at = ?", at).
		Where("id IN ("+placeholders+")", args...).
		Where("settled = 0").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CreateRevision(ctx context.Context, r *expense.Revision) error {
	_, err := s.sdb.NewInsert(toRevisionModel(r)).Exec(ctx)
	return err
}

func (s *Store) ListRevisions(ctx context.Context, expenseID id.ExpenseID) ([]*expense.Revision, error) {
	var models []revisionModel
	err := s.sdb.NewSelect(&models).
		Where("expense_id = ?", expenseID.String()).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]*expense.Revision, len(models))
	for i := range models {
		r, err := fromRevisionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = r
	}
	return result, nil
}

// ==================== Instrument Store ====================

func (s *Store) CreateInstrument(ctx context.Context, inst *instrument.Instrument) error {
	_, err := s.sdb.NewInsert(toInstrumentModel(inst)).Exec(ctx)
	return err
}

func (s *Store) GetInstrument(ctx context.Context, instID id.InstrumentID) (*instrument.Instrument, error) {
	m := new(instrumentModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", instID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrInstrumentNotFound
		}
		return nil, err
	}
	return fromInstrumentModel(m)
}

func (s *Store) ListInstruments(ctx context.Context, ownerID string, opts instrument.ListOpts) ([]*instrument.Instrument, error) {
	var models []instrumentModel
	q := s.sdb.NewSelect(&models).Where("owner_id = ?", ownerID)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*instrument.Instrument, len(models))
	for i := range models {
		inst, err := fromInstrumentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = inst
	}
	return result, nil
}

func (s *Store) UpdateInstrument(ctx context.Context, inst *instrument.Instrument) error {
	m := toInstrumentModel(inst)
	res, err := s.sdb.NewUpdate((*instrumentModel)(nil)).
		Set("label = ?", m.Label).
		Set("type = ?", m.Type).
		Set("can_send = ?", m.CanSend).
		Set("can_receive = ?", m.CanReceive).
		Set("currencies = ?", string(m.Currencies)).
		Set("status = ?", m.Status).
		Set("metadata = ?", string(m.Metadata)).
		Set("updated_at = ?", m.UpdatedAt).
		Where("id = ?", m.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res, tally.ErrInstrumentNotFound)
}

// DeleteInstrument removes the instrument; a trigger drops its balance rows
// in the same statement.
func (s *Store) DeleteInstrument(ctx context.Context, instID id.InstrumentID) error {
	res, err := s.sdb.NewDelete((*instrumentModel)(nil)).
		Where("id = ?", instID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res, tally.ErrInstrumentNotFound)
}

// SetDefault rewrites the flag on all of the owner's instruments in one
// UPDATE.
func (s *Store) SetDefault(ctx context.Context, ownerID string, instID id.InstrumentID, flag instrument.DefaultFlag) error {
	column, err := defaultColumn(flag)
	if err != nil {
		return err
	}

	res, err := s.sdb.NewUpdate((*instrumentModel)(nil)).
		Set(column+" = (id = ?)", instID.String()).
		Where("owner_id = ?", ownerID).
		Where("EXISTS (SELECT 1 FROM tally_instruments t WHERE t.id = ? AND t.owner_id = ?)", instID.String(), ownerID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res, tally.ErrInstrumentNotFound)
}

// ==================== Balance ledger ====================

func (s *Store) Balances(ctx context.Context, instID id.InstrumentID) ([]instrument.Balance, error) {
	var models []balanceModel
	err := s.sdb.NewSelect(&models).
		Where("instrument_id = ?", instID.String()).
		OrderExpr("currency ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]instrument.Balance, len(models))
	for i := range models {
		result[i] = fromBalanceModel(&models[i])
	}
	return result, nil
}

// Apply inserts the journal row only when the guarded SELECT yields a row;
// the balance trigger then stores the new balance.
func (s *Store) Apply(ctx context.Context, m instrument.Mutation) (*instrument.Transaction, error) {
	tx := *m.Tx
	var available, pending int64
	err := s.sdb.NewRaw(`
		INSERT INTO tally_transactions
			(id, instrument_id, currency, amount, kind, bucket, available_after, pending_after, origin_id, note, created_at)
		SELECT ?, i.id, ?, ?, ?, ?,
		       COALESCE(b.available, 0) + ?, COALESCE(b.pending, 0) + ?, ?, ?, ?
		FROM tally_instruments i
		LEFT JOIN tally_balances b ON b.instrument_id = i.id AND b.currency = ?
		WHERE i.id = ?
		  AND COALESCE(b.available, 0) + ? >= 0
		  AND COALESCE(b.pending, 0) + ? >= 0
		RETURNING available_after, pending_after
	`,
		tx.ID.String(), m.Currency, tx.Amount, string(tx.Kind), string(tx.Bucket),
		m.DeltaAvailable, m.DeltaPending, originID(tx), tx.Note, tx.CreatedAt,
		m.Currency,
		m.InstrumentID.String(),
		m.DeltaAvailable,
		m.DeltaPending,
	).Scan(ctx, &available, &pending)
	if isNoRows(err) {
		return nil, s.refusal(ctx, m.InstrumentID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite apply: %w", tally.ErrTransactionFailed, err)
	}

	tx.BalanceAfter = instrument.Snapshot{Available: available, Pending: pending}
	return &tx, nil
}

// Transfer inserts one tally_transfers row, guarded on both balances; its
// trigger writes both journal rows and their balance triggers follow.
func (s *Store) Transfer(ctx context.Context, out, in instrument.Mutation) (*instrument.Transaction, *instrument.Transaction, error) {
	outTx, inTx := *out.Tx, *in.Tx
	var outAvail, outPend, inAvail, inPend int64
	err := s.sdb.NewRaw(`
		INSERT INTO tally_transfers
			(id, in_tx_id, currency, from_id, to_id,
			 out_amount, out_kind, out_bucket, out_available_after, out_pending_after, out_created_at,
			 in_amount, in_kind, in_bucket, in_available_after, in_pending_after, in_created_at, note)
		SELECT ?, ?, ?, f.id, t.id,
		       ?, ?, ?, COALESCE(fb.available, 0) + ?, COALESCE(fb.pending, 0) + ?, ?,
		       ?, ?, ?, COALESCE(tb.available, 0) + ?, COALESCE(tb.pending, 0) + ?, ?, ?
		FROM tally_instruments f
		JOIN tally_instruments t ON t.id = ?
		LEFT JOIN tally_balances fb ON fb.instrument_id = f.id AND fb.currency = ?
		LEFT JOIN tally_balances tb ON tb.instrument_id = t.id AND tb.currency = ?
		WHERE f.id = ?
		  AND COALESCE(fb.available, 0) + ? >= 0 AND COALESCE(fb.pending, 0) + ? >= 0
		  AND COALESCE(tb.available, 0) + ? >= 0 AND COALESCE(tb.pending, 0) + ? >= 0
		RETURNING out_available_after, out_pending_after, in_available_after, in_pending_after
	`,
		outTx.ID.String(), inTx.ID.String(), out.Currency,
		outTx.Amount, string(outTx.Kind), string(outTx.Bucket), out.DeltaAvailable, out.DeltaPending, outTx.CreatedAt,
		inTx.Amount, string(inTx.Kind), string(inTx.Bucket), in.DeltaAvailable, in.DeltaPending, inTx.CreatedAt, outTx.Note,
		in.InstrumentID.String(),
		out.Currency,
		in.Currency,
		out.InstrumentID.String(),
		out.DeltaAvailable, out.DeltaPending,
		in.DeltaAvailable, in.DeltaPending,
	).Scan(ctx, &outAvail, &outPend, &inAvail, &inPend)
	if isNoRows(err) {
		if rerr := s.refusal(ctx, out.InstrumentID); !errors.Is(rerr, tally.ErrInsufficientBalance) {
			return nil, nil, rerr
		}
		return nil, nil, s.refusal(ctx, in.InstrumentID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: sqlite transfer: %w", tally.ErrTransactionFailed, err)
	}

	outTx.BalanceAfter = instrument.Snapshot{Available: outAvail, Pending: outPend}
	inTx.BalanceAfter = instrument.Snapshot{Available: inAvail, Pending: inPend}
	return &outTx, &inTx, nil
}

// refusal explains a guarded insert that produced no row.
func (s *Store) refusal(ctx context.Context, instID id.InstrumentID) error {
	var n int64
	err := s.sdb.NewRaw(`SELECT COUNT(*) FROM tally_instruments WHERE id = ?`, instID.String()).Scan(ctx, &n)
	if err != nil {
		return err
	}
	if n == 0 {
		return tally.ErrInstrumentNotFound
	}
	return tally.ErrInsufficientBalance
}

func (s *Store) ListTransactions(ctx context.Context, q instrument.TxQuery) ([]*instrument.Transaction, error) {
	var models []transactionModel
	sel := s.sdb.NewSelect(&models)

	if !q.InstrumentID.IsNil() {
		sel = sel.Where("instrument_id = ?", q.InstrumentID.String())
	}
	if q.Currency != "" {
		sel = sel.Where("currency = ?", q.Currency)
	}
	if q.Kind != "" {
		sel = sel.Where("kind = ?", string(q.Kind))
	}
	if !q.Before.IsZero() {
		sel = sel.Where("created_at < ?", q.Before)
	}
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}
	sel = sel.OrderExpr("created_at DESC, id DESC")

	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*instrument.Transaction, len(models))
	for i := range models {
		tx, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = tx
	}
	return result, nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// requireRow maps an UPDATE or DELETE that touched nothing to notFound.
func requireRow(res rowsAffecter, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

func defaultColumn(flag instrument.DefaultFlag) (string, error) {
	switch flag {
	case instrument.DefaultSend:
		return "is_default_send", nil
	case instrument.DefaultReceive:
		return "is_default_receive", nil
	}
	return "", fmt.Errorf("%w: unknown default flag %q", tally.ErrInvalidInput, flag)
}

func originID(tx instrument.Transaction) string {
	if tx.OriginID.IsNil() {
		return ""
	}
	return tx.OriginID.String()
}
