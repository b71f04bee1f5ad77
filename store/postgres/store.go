package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/tally"
	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	tallystore "github.com/xraph/tally/store"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
//
// Every balance mutation is a single statement: a guarded UPDATE of the
// balance row feeds the journal INSERT through a data-modifying CTE, so the
// guard, the new balance and the journal row commit together.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("tally/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: postgres: %w", tally.ErrMigrationFailed, err)
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
	_, err := s.pg.NewInsert(toExpenseModel(e)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: create expense: %w", err)
	}
	return nil
}

func (s *Store) GetExpense(ctx context.Context, expenseID id.ExpenseID) (*expense.Expense, error) {
	m := new(expenseModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", expenseID.String()).
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
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if f.GroupID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("group_id = $%d", argIdx), f.GroupID)
	}
	if f.PairKey != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("group_id = '' AND pair_key = $%d", argIdx), f.PairKey)
	}
	if f.Currency != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("currency = $%d", argIdx), f.Currency)
	}
	if f.UnsettledOnly {
		q = q.Where("settled = FALSE")
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
	res, err := s.pg.NewUpdate(toExpenseModel(e)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: update expense: %w", err)
	}
	return requireRow(res, tally.ErrExpenseNotFound)
}

func (s *Store) DeleteExpense(ctx context.Context, expenseID id.ExpenseID) error {
	res, err := s.pg.NewDelete((*expenseModel)(nil)).
		Where("id = $1", expenseID.String()).
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
	keys := make([]string, len(ids))
	for i, eid := range ids {
		keys[i] = eid.String()
	}

	res, err := s.pg.NewUpdate((*expenseModel)(nil)).
		Set("settled = TRUE").
		Set("settled_at = $1", at).
		Set("updated_at = $2", at).
		Where("id = ANY($3)", keys).
		Where("settled = FALSE").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("tally/postgres: mark settled: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) CreateRevision(ctx context.Context, r *expense.Revision) error {
	_, err := s.pg.NewInsert(toRevisionModel(r)).Exec(ctx)
	return err
}

func (s *Store) ListRevisions(ctx context.Context, expenseID id.ExpenseID) ([]*expense.Revision, error) {
	var models []revisionModel
	err := s.pg.NewSelect(&models).
		Where("expense_id = $1", expenseID.String()).
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
	_, err := s.pg.NewInsert(toInstrumentModel(inst)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: create instrument: %w", err)
	}
	return nil
}

func (s *Store) GetInstrument(ctx context.Context, instID id.InstrumentID) (*instrument.Instrument, error) {
	m := new(instrumentModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", instID.String()).
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
	q := s.pg.NewSelect(&models).Where("owner_id = $1", ownerID)

	if opts.Status != "" {
		q = q.Where("status = $2", string(opts.Status))
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

// UpdateInstrument writes the descriptive columns only; default flags are
// owned by SetDefault.
func (s *Store) UpdateInstrument(ctx context.Context, inst *instrument.Instrument) error {
	m := toInstrumentModel(inst)
	res, err := s.pg.NewUpdate((*instrumentModel)(nil)).
		Set("label = $1", m.Label).
		Set("type = $2", m.Type).
		Set("can_send = $3", m.CanSend).
		Set("can_receive = $4", m.CanReceive).
		Set("currencies = $5", m.Currencies).
		Set("status = $6", m.Status).
		Set("metadata = $7", m.Metadata).
		Set("updated_at = $8", m.UpdatedAt).
		Where("id = $9", m.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/postgres: update instrument: %w", err)
	}
	return requireRow(res, tally.ErrInstrumentNotFound)
}

func (s *Store) DeleteInstrument(ctx context.Context, instID id.InstrumentID) error {
	var deleted int64
	err := s.pg.NewRaw(`
		WITH b AS (
			DELETE FROM tally_balances WHERE instrument_id = $1
		), i AS (
			DELETE FROM tally_instruments WHERE id = $1 RETURNING id
		)
		SELECT COUNT(*) FROM i
	`, instID.String()).Scan(ctx, &deleted)
	if err != nil {
		return fmt.Errorf("tally/postgres: delete instrument: %w", err)
	}
	if deleted == 0 {
		return tally.ErrInstrumentNotFound
	}
	return nil
}

// SetDefault flips the flag on every instrument of the owner in one UPDATE,
// so at most one row holds it at commit.
func (s *Store) SetDefault(ctx context.Context, ownerID string, instID id.InstrumentID, flag instrument.DefaultFlag) error {
	column, err := defaultColumn(flag)
	if err != nil {
		return err
	}

	var found int64
	err = s.pg.NewRaw(fmt.Sprintf(`
		WITH target AS (
			SELECT id FROM tally_instruments WHERE id = $1 AND owner_id = $2
		), flipped AS (
			UPDATE tally_instruments SET %[1]s = (id = $1)
			WHERE owner_id = $2 AND EXISTS (SELECT 1 FROM target)
			RETURNING id
		)
		SELECT COUNT(*) FROM target
	`, column), instID.String(), ownerID).Scan(ctx, &found)
	if err != nil {
		return fmt.Errorf("tally/postgres: set default: %w", err)
	}
	if found == 0 {
		return tally.ErrInstrumentNotFound
	}
	return nil
}

// ==================== Balance ledger ====================

func (s *Store) Balances(ctx context.Context, instID id.InstrumentID) ([]instrument.Balance, error) {
	var models []balanceModel
	err := s.pg.NewSelect(&models).
		Where("instrument_id = $1", instID.String()).
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

func (s *Store) Apply(ctx context.Context, m instrument.Mutation) (*instrument.Transaction, error) {
	if err := s.ensureBalance(ctx, m); err != nil {
		return nil, err
	}

	tx := *m.Tx
	var available, pending int64
	err := s.pg.NewRaw(`
		WITH upd AS (
			UPDATE tally_balances
			SET available = available + $3, pending = pending + $4, updated_at = $5
			WHERE instrument_id = $1 AND currency = $2
			  AND available + $3 >= 0 AND pending + $4 >= 0
			RETURNING available, pending
		), ins AS (
			INSERT INTO tally_transactions
				(id, instrument_id, currency, amount, kind, bucket, available_after, pending_after, origin_id, note, created_at)
			SELECT $6::text, $1::text, $2::text, $7::bigint, $8::text, $9::text,
			       upd.available, upd.pending, $10::text, $11::text, $5::timestamptz
			FROM upd
			RETURNING available_after, pending_after
		)
		SELECT COALESCE((SELECT available_after FROM ins), -1),
		       COALESCE((SELECT pending_after FROM ins), -1)
	`,
		m.InstrumentID.String(), m.Currency, m.DeltaAvailable, m.DeltaPending, tx.CreatedAt,
		tx.ID.String(), tx.Amount, string(tx.Kind), string(tx.Bucket), originID(tx), tx.Note,
	).Scan(ctx, &available, &pending)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres apply: %w", tally.ErrTransactionFailed, err)
	}
	if available < 0 {
		return nil, tally.ErrInsufficientBalance
	}

	tx.BalanceAfter = instrument.Snapshot{Available: available, Pending: pending}
	return &tx, nil
}

// Transfer debits the source and credits the destination in one statement.
// The destination UPDATE only runs when the source UPDATE passed its guard,
// and the journal rows are written only when both rows changed.
func (s *Store) Transfer(ctx context.Context, out, in instrument.Mutation) (*instrument.Transaction, *instrument.Transaction, error) {
	if err := s.ensureBalance(ctx, out); err != nil {
		return nil, nil, err
	}
	if err := s.ensureBalance(ctx, in); err != nil {
		return nil, nil, err
	}

	outTx, inTx := *out.Tx, *in.Tx
	var outAvail, outPend, inAvail, inPend int64
	err := s.pg.NewRaw(`
		WITH src AS (
			UPDATE tally_balances
			SET available = available + $3, pending = pending + $4, updated_at = $5
			WHERE instrument_id = $1 AND currency = $2
			  AND available + $3 >= 0 AND pending + $4 >= 0
			RETURNING available, pending
		), dst AS (
			UPDATE tally_balances
			SET available = available + $7, pending = pending + $8, updated_at = $9
			WHERE instrument_id = $6 AND currency = $2
			  AND available + $7 >= 0 AND pending + $8 >= 0
			  AND EXISTS (SELECT 1 FROM src)
			RETURNING available, pending
		), ins AS (
			INSERT INTO tally_transactions
				(id, instrument_id, currency, amount, kind, bucket, available_after, pending_after, origin_id, note, created_at)
			SELECT $10::text, $1::text, $2::text, $11::bigint, $12::text, $13::text,
			       src.available, src.pending, $14::text, $15::text, $5::timestamptz
			FROM src, dst
			UNION ALL
			SELECT $14::text, $6::text, $2::text, $16::bigint, $17::text, $18::text,
			       dst.available, dst.pending, $10::text, $15::text, $9::timestamptz
			FROM src, dst
			RETURNING id, available_after, pending_after
		)
		SELECT COALESCE((SELECT available_after FROM ins WHERE id = $10), -1),
		       COALESCE((SELECT pending_after FROM ins WHERE id = $10), -1),
		       COALESCE((SELECT available_after FROM ins WHERE id = $14), -1),
		       COALESCE((SELECT pending_after FROM ins WHERE id = $14), -1)
	`,
		out.InstrumentID.String(), out.Currency, out.DeltaAvailable, out.DeltaPending, outTx.CreatedAt,
		in.InstrumentID.String(), in.DeltaAvailable, in.DeltaPending, inTx.CreatedAt,
		outTx.ID.String(), outTx.Amount, string(outTx.Kind), string(outTx.Bucket),
		inTx.ID.String(), outTx.Note,
		inTx.Amount, string(inTx.Kind), string(inTx.Bucket),
	).Scan(ctx, &outAvail, &outPend, &inAvail, &inPend)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: postgres transfer: %w", tally.ErrTransactionFailed, err)
	}
	if outAvail < 0 || inAvail < 0 {
		return nil, nil, tally.ErrInsufficientBalance
	}

	outTx.BalanceAfter = instrument.Snapshot{Available: outAvail, Pending: outPend}
	inTx.BalanceAfter = instrument.Snapshot{Available: inAvail, Pending: inPend}
	return &outTx, &inTx, nil
}

// ensureBalance creates the zero balance row of m's instrument and currency
// if the instrument exists. A row inserted in the same statement as the
// guarded UPDATE would not be visible to it, hence the separate round trip.
func (s *Store) ensureBalance(ctx context.Context, m instrument.Mutation) error {
	var exists bool
	err := s.pg.NewRaw(`
		WITH ensure AS (
			INSERT INTO tally_balances (instrument_id, currency, available, pending, updated_at)
			SELECT $1::text, $2::text, 0, 0, $3::timestamptz
			WHERE EXISTS (SELECT 1 FROM tally_instruments WHERE id = $1)
			ON CONFLICT (instrument_id, currency) DO NOTHING
		)
		SELECT EXISTS (SELECT 1 FROM tally_instruments WHERE id = $1)
	`, m.InstrumentID.String(), m.Currency, m.Tx.CreatedAt).Scan(ctx, &exists)
	if err != nil {
		return fmt.Errorf("tally/postgres: ensure balance: %w", err)
	}
	if !exists {
		return tally.ErrInstrumentNotFound
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, q instrument.TxQuery) ([]*instrument.Transaction, error) {
	var models []transactionModel
	sel := s.pg.NewSelect(&models)

	argIdx := 0
	if !q.InstrumentID.IsNil() {
		argIdx++
		sel = sel.Where(fmt.Sprintf("instrument_id = $%d", argIdx), q.InstrumentID.String())
	}
	if q.Currency != "" {
		argIdx++
		sel = sel.Where(fmt.Sprintf("currency = $%d", argIdx), q.Currency)
	}
	if q.Kind != "" {
		argIdx++
		sel = sel.Where(fmt.Sprintf("kind = $%d", argIdx), string(q.Kind))
	}
	if !q.Before.IsZero() {
		argIdx++
		sel = sel.Where(fmt.Sprintf("created_at < $%d", argIdx), q.Before)
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
