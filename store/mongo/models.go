package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xraph/grove"

	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/types"
)

// ==================== Expense models ====================

type expenseModel struct {
	grove.BaseModel `grove:"table:tally_expenses"`

	ID          string            `grove:"id,pk"       bson:"_id"`
	Description string            `grove:"description" bson:"description"`
	Amount      string            `grove:"amount"      bson:"amount"`
	Currency    string            `grove:"currency"    bson:"currency"`
	Type        string            `grove:"type"        bson:"type"`
	SplitMode   string            `grove:"split_mode"  bson:"split_mode"`
	Splits      []splitModel      `grove:"splits"      bson:"splits"`
	GroupID     string            `grove:"group_id"    bson:"group_id"`
	PairKey     string            `grove:"pair_key"    bson:"pair_key"`
	Source      string            `grove:"source"      bson:"source"`
	CreatedBy   string            `grove:"created_by"  bson:"created_by"`
	Settled     bool              `grove:"settled"     bson:"settled"`
	SettledAt   *time.Time        `grove:"settled_at"  bson:"settled_at,omitempty"`
	Metadata    map[string]string `grove:"metadata"    bson:"metadata,omitempty"`
	CreatedAt   time.Time         `grove:"created_at"  bson:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"  bson:"updated_at"`
}

// splitModel keeps decimals as strings so no precision is lost to doubles.
type splitModel struct {
	Participant string `bson:"participant"`
	Owing       bool   `bson:"owing"`
	Paying      bool   `bson:"paying"`
	OweAmount   string `bson:"owe_amount"`
	OwePercent  string `bson:"owe_percent"`
	PayAmount   string `bson:"pay_amount"`
}

func toExpenseModel(e *expense.Expense) *expenseModel {
	splits := make([]splitModel, len(e.Splits))
	for i, sp := range e.Splits {
		splits[i] = splitModel{
			Participant: sp.Participant,
			Owing:       sp.Owing,
			Paying:      sp.Paying,
			OweAmount:   sp.OweAmount.String(),
			OwePercent:  sp.OwePercent.String(),
			PayAmount:   sp.PayAmount.String(),
		}
	}

	return &expenseModel{
		ID:          e.ID.String(),
		Description: e.Description,
		Amount:      e.Amount.String(),
		Currency:    e.Currency,
		Type:        string(e.Type),
		SplitMode:   string(e.SplitMode),
		Splits:      splits,
		GroupID:     e.GroupID,
		PairKey:     e.PairKey,
		Source:      string(e.Source),
		CreatedBy:   e.CreatedBy,
		Settled:     e.Settled,
		SettledAt:   e.SettledAt,
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func fromExpenseModel(m *expenseModel) (*expense.Expense, error) {
	expenseID, err := id.ParseExpenseID(m.ID)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: expense %s amount: %w", m.ID, err)
	}

	splits := make([]expense.Split, len(m.Splits))
	for i, sp := range m.Splits {
		split := expense.Split{
			Participant: sp.Participant,
			Owing:       sp.Owing,
			Paying:      sp.Paying,
		}
		if split.OweAmount, err = parseDecimal(sp.OweAmount); err != nil {
			return nil, fmt.Errorf("tally/mongo: expense %s split %s: %w", m.ID, sp.Participant, err)
		}
		if split.OwePercent, err = parseDecimal(sp.OwePercent); err != nil {
			return nil, fmt.Errorf("tally/mongo: expense %s split %s: %w", m.ID, sp.Participant, err)
		}
		if split.PayAmount, err = parseDecimal(sp.PayAmount); err != nil {
			return nil, fmt.Errorf("tally/mongo: expense %s split %s: %w", m.ID, sp.Participant, err)
		}
		splits[i] = split
	}

	return &expense.Expense{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          expenseID,
		Description: m.Description,
		Amount:      amount,
		Currency:    m.Currency,
		Type:        expense.Type(m.Type),
		SplitMode:   expense.SplitMode(m.SplitMode),
		Splits:      splits,
		GroupID:     m.GroupID,
		PairKey:     m.PairKey,
		Source:      expense.Source(m.Source),
		CreatedBy:   m.CreatedBy,
		Settled:     m.Settled,
		SettledAt:   m.SettledAt,
		Metadata:    m.Metadata,
	}, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

type revisionModel struct {
	grove.BaseModel `grove:"table:tally_expense_revisions"`

	ID        string        `grove:"id,pk"      bson:"_id"`
	ExpenseID string        `grove:"expense_id" bson:"expense_id"`
	Before    *expenseModel `grove:"before"     bson:"before,omitempty"`
	After     *expenseModel `grove:"after"      bson:"after,omitempty"`
	EditedBy  string        `grove:"edited_by"  bson:"edited_by"`
	CreatedAt time.Time     `grove:"created_at" bson:"created_at"`
}

func toRevisionModel(r *expense.Revision) *revisionModel {
	m := &revisionModel{
		ID:        r.ID.String(),
		ExpenseID: r.ExpenseID.String(),
		EditedBy:  r.EditedBy,
		CreatedAt: r.CreatedAt,
	}
	if r.Before != nil {
		m.Before = toExpenseModel(r.Before)
	}
	if r.After != nil {
		m.After = toExpenseModel(r.After)
	}
	return m
}

func fromRevisionModel(m *revisionModel) (*expense.Revision, error) {
	revID, err := id.ParseRevisionID(m.ID)
	if err != nil {
		return nil, err
	}
	expenseID, err := id.ParseExpenseID(m.ExpenseID)
	if err != nil {
		return nil, err
	}

	r := &expense.Revision{
		ID:        revID,
		ExpenseID: expenseID,
		EditedBy:  m.EditedBy,
		CreatedAt: m.CreatedAt,
	}
	if m.Before != nil {
		if r.Before, err = fromExpenseModel(m.Before); err != nil {
			return nil, err
		}
	}
	if m.After != nil {
		if r.After, err = fromExpenseModel(m.After); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ==================== Instrument models ====================

type instrumentModel struct {
	grove.BaseModel `grove:"table:tally_instruments"`

	ID               string            `grove:"id,pk"              bson:"_id"`
	OwnerID          string            `grove:"owner_id"           bson:"owner_id"`
	Label            string            `grove:"label"              bson:"label"`
	Type             string            `grove:"type"               bson:"type"`
	CanSend          bool              `grove:"can_send"           bson:"can_send"`
	CanReceive       bool              `grove:"can_receive"        bson:"can_receive"`
	Currencies       []string          `grove:"currencies"         bson:"currencies,omitempty"`
	Status           string            `grove:"status"             bson:"status"`
	IsDefaultSend    bool              `grove:"is_default_send"    bson:"is_default_send"`
	IsDefaultReceive bool              `grove:"is_default_receive" bson:"is_default_receive"`
	Metadata         map[string]string `grove:"metadata"           bson:"metadata,omitempty"`
	CreatedAt        time.Time         `grove:"created_at"         bson:"created_at"`
	UpdatedAt        time.Time         `grove:"updated_at"         bson:"updated_at"`
}

func toInstrumentModel(inst *instrument.Instrument) *instrumentModel {
	return &instrumentModel{
		ID:               inst.ID.String(),
		OwnerID:          inst.OwnerID,
		Label:            inst.Label,
		Type:             string(inst.Type),
		CanSend:          inst.Capabilities.Send,
		CanReceive:       inst.Capabilities.Receive,
		Currencies:       inst.Currencies,
		Status:           string(inst.Status),
		IsDefaultSend:    inst.IsDefaultSend,
		IsDefaultReceive: inst.IsDefaultReceive,
		Metadata:         inst.Metadata,
		CreatedAt:        inst.CreatedAt,
		UpdatedAt:        inst.UpdatedAt,
	}
}

func fromInstrumentModel(m *instrumentModel) (*instrument.Instrument, error) {
	instID, err := id.ParseInstrumentID(m.ID)
	if err != nil {
		return nil, err
	}

	var currencies []string
	if len(m.Currencies) > 0 {
		currencies = m.Currencies
	}

	return &instrument.Instrument{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:      instID,
		OwnerID: m.OwnerID,
		Label:   m.Label,
		Type:    instrument.Type(m.Type),
		Capabilities: instrument.Capabilities{
			Send:    m.CanSend,
			Receive: m.CanReceive,
		},
		Currencies:       currencies,
		Status:           instrument.Status(m.Status),
		IsDefaultSend:    m.IsDefaultSend,
		IsDefaultReceive: m.IsDefaultReceive,
		Metadata:         m.Metadata,
	}, nil
}

// ==================== Ledger models ====================

// balanceModel is keyed by instrument and currency, joined with ":".
type balanceModel struct {
	grove.BaseModel `grove:"table:tally_balances"`

	Key          string    `grove:"key,pk"        bson:"_id"`
	InstrumentID string    `grove:"instrument_id" bson:"instrument_id"`
	Currency     string    `grove:"currency"      bson:"currency"`
	Available    int64     `grove:"available"     bson:"available"`
	Pending      int64     `grove:"pending"       bson:"pending"`
	UpdatedAt    time.Time `grove:"updated_at"    bson:"updated_at"`
}

func balanceKey(instID id.InstrumentID, currency string) string {
	return instID.String() + ":" + currency
}

func fromBalanceModel(m *balanceModel) instrument.Balance {
	return instrument.Balance{
		Currency:  m.Currency,
		Available: m.Available,
		Pending:   m.Pending,
	}
}

type transactionModel struct {
	grove.BaseModel `grove:"table:tally_transactions"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	InstrumentID   string    `grove:"instrument_id"   bson:"instrument_id"`
	Currency       string    `grove:"currency"        bson:"currency"`
	Amount         int64     `grove:"amount"          bson:"amount"`
	Kind           string    `grove:"kind"            bson:"kind"`
	Bucket         string    `grove:"bucket"          bson:"bucket"`
	AvailableAfter int64     `grove:"available_after" bson:"available_after"`
	PendingAfter   int64     `grove:"pending_after"   bson:"pending_after"`
	OriginID       string    `grove:"origin_id"       bson:"origin_id,omitempty"`
	Note           string    `grove:"note"            bson:"note,omitempty"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
}

func toTransactionModel(tx *instrument.Transaction) *transactionModel {
	m := &transactionModel{
		ID:             tx.ID.String(),
		InstrumentID:   tx.InstrumentID.String(),
		Currency:       tx.Currency,
		Amount:         tx.Amount,
		Kind:           string(tx.Kind),
		Bucket:         string(tx.Bucket),
		AvailableAfter: tx.BalanceAfter.Available,
		PendingAfter:   tx.BalanceAfter.Pending,
		Note:           tx.Note,
		CreatedAt:      tx.CreatedAt,
	}
	if !tx.OriginID.IsNil() {
		m.OriginID = tx.OriginID.String()
	}
	return m
}

func fromTransactionModel(m *transactionModel) (*instrument.Transaction, error) {
	txID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	instID, err := id.ParseInstrumentID(m.InstrumentID)
	if err != nil {
		return nil, err
	}

	tx := &instrument.Transaction{
		ID:           txID,
		InstrumentID: instID,
		Currency:     m.Currency,
		Amount:       m.Amount,
		Kind:         instrument.Kind(m.Kind),
		Bucket:       instrument.Bucket(m.Bucket),
		BalanceAfter: instrument.Snapshot{
			Available: m.AvailableAfter,
			Pending:   m.PendingAfter,
		},
		Note:      m.Note,
		CreatedAt: m.CreatedAt,
	}
	if m.OriginID != "" {
		originID, err := id.ParseTransactionID(m.OriginID)
		if err != nil {
			return nil, err
		}
		tx.OriginID = originID
	}
	return tx, nil
}
