package postgres

import (
	"encoding/json"
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

	ID          string            `grove:"id,pk"`
	Description string            `grove:"description"`
	Amount      string            `grove:"amount"`
	Currency    string            `grove:"currency"`
	Type        string            `grove:"type"`
	SplitMode   string            `grove:"split_mode"`
	Splits      json.RawMessage   `grove:"splits,type:jsonb"`
	GroupID     string            `grove:"group_id"`
	PairKey     string            `grove:"pair_key"`
	Source      string            `grove:"source"`
	CreatedBy   string            `grove:"created_by"`
	Settled     bool              `grove:"settled"`
	SettledAt   *time.Time        `grove:"settled_at"`
	Metadata    map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt   time.Time         `grove:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"`
}

func toExpenseModel(e *expense.Expense) *expenseModel {
	splits, _ := json.Marshal(e.Splits) //nolint:errcheck // decimals always marshal

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
		return nil, fmt.Errorf("tally/postgres: expense %s amount: %w", m.ID, err)
	}

	var splits []expense.Split
	if len(m.Splits) > 0 {
		if err := json.Unmarshal(m.Splits, &splits); err != nil {
			return nil, fmt.Errorf("tally/postgres: expense %s splits: %w", m.ID, err)
		}
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

type revisionModel struct {
	grove.BaseModel `grove:"table:tally_expense_revisions"`

	ID        string          `grove:"id,pk"`
	ExpenseID string          `grove:"expense_id"`
	Before    json.RawMessage `grove:"before,type:jsonb"`
	After     json.RawMessage `grove:"after,type:jsonb"`
	EditedBy  string          `grove:"edited_by"`
	CreatedAt time.Time       `grove:"created_at"`
}

func toRevisionModel(r *expense.Revision) *revisionModel {
	before, _ := json.Marshal(r.Before) //nolint:errcheck // plain data
	var after json.RawMessage
	if r.After != nil {
		after, _ = json.Marshal(r.After) //nolint:errcheck // plain data
	}
	return &revisionModel{
		ID:        r.ID.String(),
		ExpenseID: r.ExpenseID.String(),
		Before:    before,
		After:     after,
		EditedBy:  r.EditedBy,
		CreatedAt: r.CreatedAt,
	}
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
	if len(m.Before) > 0 && string(m.Before) != "null" {
		r.Before = new(expense.Expense)
		if err := json.Unmarshal(m.Before, r.Before); err != nil {
			return nil, fmt.Errorf("tally/postgres: revision %s: %w", m.ID, err)
		}
	}
	if len(m.After) > 0 && string(m.After) != "null" {
		r.After = new(expense.Expense)
		if err := json.Unmarshal(m.After, r.After); err != nil {
			return nil, fmt.Errorf("tally/postgres: revision %s: %w", m.ID, err)
		}
	}
	return r, nil
}

// ==================== Instrument models ====================

type instrumentModel struct {
	grove.BaseModel `grove:"table:tally_instruments"`

	ID               string            `grove:"id,pk"`
	OwnerID          string            `grove:"owner_id"`
	Label            string            `grove:"label"`
	Type             string            `grove:"type"`
	CanSend          bool              `grove:"can_send"`
	CanReceive       bool              `grove:"can_receive"`
	Currencies       json.RawMessage   `grove:"currencies,type:jsonb"`
	Status           string            `grove:"status"`
	IsDefaultSend    bool              `grove:"is_default_send"`
	IsDefaultReceive bool              `grove:"is_default_receive"`
	Metadata         map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt        time.Time         `grove:"created_at"`
	UpdatedAt        time.Time         `grove:"updated_at"`
}

func toInstrumentModel(inst *instrument.Instrument) *instrumentModel {
	currencies := inst.Currencies
	if currencies == nil {
		currencies = []string{}
	}
	raw, _ := json.Marshal(currencies) //nolint:errcheck // []string always marshals

	return &instrumentModel{
		ID:               inst.ID.String(),
		OwnerID:          inst.OwnerID,
		Label:            inst.Label,
		Type:             string(inst.Type),
		CanSend:          inst.Capabilities.Send,
		CanReceive:       inst.Capabilities.Receive,
		Currencies:       raw,
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
		_ = json.Unmarshal(m.Currencies, &currencies) //nolint:errcheck // best-effort
	}
	if len(currencies) == 0 {
		currencies = nil
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

type balanceModel struct {
	grove.BaseModel `grove:"table:tally_balances"`

	InstrumentID string    `grove:"instrument_id,pk"`
	Currency     string    `grove:"currency,pk"`
	Available    int64     `grove:"available"`
	Pending      int64     `grove:"pending"`
	UpdatedAt    time.Time `grove:"updated_at"`
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

	ID             string    `grove:"id,pk"`
	InstrumentID   string    `grove:"instrument_id"`
	Currency       string    `grove:"currency"`
	Amount         int64     `grove:"amount"`
	Kind           string    `grove:"kind"`
	Bucket         string    `grove:"bucket"`
	AvailableAfter int64     `grove:"available_after"`
	PendingAfter   int64     `grove:"pending_after"`
	OriginID       string    `grove:"origin_id"`
	Note           string    `grove:"note"`
	CreatedAt      time.Time `grove:"created_at"`
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
