package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tally"
	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	tallystore "github.com/xraph/tally/store"
)

// Collection name constants.
const (
	colExpenses     = "tally_expenses"
	colRevisions    = "tally_expense_revisions"
	colInstruments  = "tally_instruments"
	colBalances     = "tally_balances"
	colTransactions = "tally_transactions"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM. Balance
// mutations run inside multi-document transactions, so the server must be a
// replica set or sharded cluster.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tally collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: mongo %s indexes: %w", tally.ErrMigrationFailed, col, err)
		}
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
	_, err := s.mdb.NewInsert(toExpenseModel(e)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create expense: %w", err)
	}
	return nil
}

func (s *Store) GetExpense(ctx context.Context, expenseID id.ExpenseID) (*expense.Expense, error) {
	var m expenseModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": expenseID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrExpenseNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get expense: %w", err)
	}
	return fromExpenseModel(&m)
}

func (s *Store) FindExpenses(ctx context.Context, f expense.Filter) ([]*expense.Expense, error) {
	var models []expenseModel

	filter := bson.M{}
	if f.GroupID != "" {
		filter["group_id"] = f.GroupID
	}
	if f.PairKey != "" {
		filter["group_id"] = ""
		filter["pair_key"] = f.PairKey
	}
	if f.Currency != "" {
		filter["currency"] = f.Currency
	}
	if f.UnsettledOnly {
		filter["settled"] = false
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if f.Limit > 0 {
		q = q.Limit(int64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Skip(int64(f.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: find expenses: %w", err)
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
	m := toExpenseModel(e)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update expense: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrExpenseNotFound
	}
	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, expenseID id.ExpenseID) error {
	res, err := s.mdb.NewDelete((*expenseModel)(nil)).
		Filter(bson.M{"_id": expenseID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete expense: %w", err)
	}
	if res.DeletedCount() == 0 {
		return tally.ErrExpenseNotFound
	}
	return nil
}

// MarkSettled flips only unsettled expenses, so concurrent callers never
// count the same expense twice.
func (s *Store) MarkSettled(ctx context.Context, ids []id.ExpenseID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	for i, eid := range ids {
		keys[i] = eid.String()
	}

	res, err := s.mdb.Collection(colExpenses).UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": keys}, "settled": false},
		bson.M{"$set": bson.M{"settled": true, "settled_at": at, "updated_at": at}},
	)
	if err != nil {
		return 0, fmt.Errorf("tally/mongo: mark settled: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) CreateRevision(ctx context.Context, r *expense.Revision) error {
	_, err := s.mdb.NewInsert(toRevisionModel(r)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: create revision: %w", err)
	}
	return nil
}

func (s *Store) ListRevisions(ctx context.Context, expenseID id.ExpenseID) ([]*expense.Revision, error) {
	var models []revisionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"expense_id": expenseID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list revisions: %w", err)
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
	_, err := s.mdb.NewInsert(toInstrumentModel(inst)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create instrument: %w", err)
	}
	return nil
}

func (s *Store) GetInstrument(ctx context.Context, instID id.InstrumentID) (*instrument.Instrument, error) {
	var m instrumentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": instID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrInstrumentNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get instrument: %w", err)
	}
	return fromInstrumentModel(&m)
}

func (s *Store) ListInstruments(ctx context.Context, ownerID string, opts instrument.ListOpts) ([]*instrument.Instrument, error) {
	var models []instrumentModel

	filter := bson.M{"owner_id": ownerID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list instruments: %w", err)
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

// UpdateInstrument leaves the default flags alone; SetDefault owns them.
func (s *Store) UpdateInstrument(ctx context.Context, inst *instrument.Instrument) error {
	m := toInstrumentModel(inst)
	res, err := s.mdb.NewUpdate((*instrumentModel)(nil)).
		Filter(bson.M{"_id": m.ID}).
		Set("label", m.Label).
		Set("type", m.Type).
		Set("can_send", m.CanSend).
		Set("can_receive", m.CanReceive).
		Set("currencies", m.Currencies).
		Set("status", m.Status).
		Set("metadata", m.Metadata).
		Set("updated_at", m.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update instrument: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrInstrumentNotFound
	}
	return nil
}

func (s *Store) DeleteInstrument(ctx context.Context, instID id.InstrumentID) error {
	return s.inTransaction(ctx, func(ctx context.Context) error {
		res, err := s.mdb.Collection(colInstruments).DeleteOne(ctx, bson.M{"_id": instID.String()})
		if err != nil {
			return fmt.Errorf("tally/mongo: delete instrument: %w", err)
		}
		if res.DeletedCount == 0 {
			return tally.ErrInstrumentNotFound
		}
		if _, err := s.mdb.Collection(colBalances).DeleteMany(ctx, bson.M{"instrument_id": instID.String()}); err != nil {
			return fmt.Errorf("tally/mongo: delete balances: %w", err)
		}
		return nil
	})
}

func (s *Store) SetDefault(ctx context.Context, ownerID string, instID id.InstrumentID, flag instrument.DefaultFlag) error {
	field, err := defaultField(flag)
	if err != nil {
		return err
	}

	return s.inTransaction(ctx, func(ctx context.Context) error {
		instruments := s.mdb.Collection(colInstruments)
		res, err := instruments.UpdateOne(ctx,
			bson.M{"_id": instID.String(), "owner_id": ownerID},
			bson.M{"$set": bson.M{field: true}},
		)
		if err != nil {
			return fmt.Errorf("tally/mongo: set default: %w", err)
		}
		if res.MatchedCount == 0 {
			return tally.ErrInstrumentNotFound
		}
		_, err = instruments.UpdateMany(ctx,
			bson.M{"owner_id": ownerID, "_id": bson.M{"$ne": instID.String()}, field: true},
			bson.M{"$set": bson.M{field: false}},
		)
		if err != nil {
			return fmt.Errorf("tally/mongo: clear default: %w", err)
		}
		return nil
	})
}

// ==================== Balance ledger ====================

func (s *Store) Balances(ctx context.Context, instID id.InstrumentID) ([]instrument.Balance, error) {
	var models []balanceModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"instrument_id": instID.String()}).
		Sort(bson.D{{Key: "currency", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: balances: %w", err)
	}

	result := make([]instrument.Balance, len(models))
	for i := range models {
		result[i] = fromBalanceModel(&models[i])
	}
	return result, nil
}

func (s *Store) Apply(ctx context.Context, m instrument.Mutation) (*instrument.Transaction, error) {
	var tx *instrument.Transaction
	err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		tx, err = s.apply(ctx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Store) Transfer(ctx context.Context, out, in instrument.Mutation) (*instrument.Transaction, *instrument.Transaction, error) {
	var outTx, inTx *instrument.Transaction
	err := s.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		if outTx, err = s.apply(ctx, out); err != nil {
			return err
		}
		inTx, err = s.apply(ctx, in)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return outTx, inTx, nil
}

// apply runs one guarded $inc and appends the journal row. It must be called
// inside a transaction.
func (s *Store) apply(ctx context.Context, m instrument.Mutation) (*instrument.Transaction, error) {
	n, err := s.mdb.Collection(colInstruments).CountDocuments(ctx, bson.M{"_id": m.InstrumentID.String()})
	if err != nil {
		return nil, fmt.Errorf("%w: mongo: %w", tally.ErrTransactionFailed, err)
	}
	if n == 0 {
		return nil, tally.ErrInstrumentNotFound
	}

	tx := *m.Tx
	key := balanceKey(m.InstrumentID, m.Currency)
	balances := s.mdb.Collection(colBalances)

	_, err = balances.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$setOnInsert": bson.M{
			"instrument_id": m.InstrumentID.String(),
			"currency":      m.Currency,
			"available":     int64(0),
			"pending":       int64(0),
			"updated_at":    tx.CreatedAt,
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: mongo: %w", tally.ErrTransactionFailed, err)
	}

	var bm balanceModel
	err = balances.FindOneAndUpdate(ctx,
		bson.M{
			"_id":       key,
			"available": bson.M{"$gte": -m.DeltaAvailable},
			"pending":   bson.M{"$gte": -m.DeltaPending},
		},
		bson.M{
			"$inc": bson.M{"available": m.DeltaAvailable, "pending": m.DeltaPending},
			"$set": bson.M{"updated_at": tx.CreatedAt},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&bm)
	if isNoDocuments(err) {
		return nil, tally.ErrInsufficientBalance
	}
	if err != nil {
		return nil, fmt.Errorf("%w: mongo: %w", tally.ErrTransactionFailed, err)
	}

	tx.BalanceAfter = instrument.Snapshot{Available: bm.Available, Pending: bm.Pending}
	if _, err := s.mdb.Collection(colTransactions).InsertOne(ctx, toTransactionModel(&tx)); err != nil {
		return nil, fmt.Errorf("%w: mongo journal: %w", tally.ErrTransactionFailed, err)
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, q instrument.TxQuery) ([]*instrument.Transaction, error) {
	var models []transactionModel

	filter := bson.M{}
	if !q.InstrumentID.IsNil() {
		filter["instrument_id"] = q.InstrumentID.String()
	}
	if q.Currency != "" {
		filter["currency"] = q.Currency
	}
	if q.Kind != "" {
		filter["kind"] = string(q.Kind)
	}
	if !q.Before.IsZero() {
		filter["created_at"] = bson.M{"$lt": q.Before}
	}

	find := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if q.Limit > 0 {
		find = find.Limit(int64(q.Limit))
	}

	if err := find.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list transactions: %w", err)
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

// inTransaction runs fn in a session transaction. The driver retries fn on
// transient errors such as write conflicts between concurrent mutations.
func (s *Store) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.mdb.Collection(colBalances).Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("%w: mongo session: %w", tally.ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func defaultField(flag instrument.DefaultFlag) (string, error) {
	switch flag {
	case instrument.DefaultSend:
		return "is_default_send", nil
	case instrument.DefaultReceive:
		return "is_default_receive", nil
	}
	return "", fmt.Errorf("%w: unknown default flag %q", tally.ErrInvalidInput, flag)
}

// migrationIndexes returns the index definitions for all tally collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colExpenses: {
			{Keys: bson.D{{Key: "group_id", Value: 1}, {Key: "currency", Value: 1}, {Key: "settled", Value: 1}}},
			{Keys: bson.D{{Key: "pair_key", Value: 1}, {Key: "currency", Value: 1}, {Key: "settled", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: 1}}},
		},
		colRevisions: {
			{Keys: bson.D{{Key: "expense_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colInstruments: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colBalances: {
			{
				Keys:    bson.D{{Key: "instrument_id", Value: 1}, {Key: "currency", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colTransactions: {
			{Keys: bson.D{{Key: "instrument_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		},
	}
}
