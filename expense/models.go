// Package expense models shared expenses, their splits and edit revisions.
package expense

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/types"
)

// Type classifies an expense for netting.
type Type string

const (
	TypeExpense Type = "expense"
	TypeSettle  Type = "settle"
	TypeIncome  Type = "income"
	TypeLoan    Type = "loan"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeExpense, TypeSettle, TypeIncome, TypeLoan:
		return true
	}
	return false
}

// SplitMode says how owed amounts are derived.
type SplitMode string

const (
	ModeEqual   SplitMode = "equal"
	ModeValue   SplitMode = "value"
	ModePercent SplitMode = "percent"
)

// Valid reports whether m is a known split mode.
func (m SplitMode) Valid() bool {
	switch m {
	case ModeEqual, ModeValue, ModePercent:
		return true
	}
	return false
}

// Source records how an expense was entered.
type Source string

const (
	SourceManual     Source = "manual"
	SourceOCR        Source = "ocr"
	SourceVoice      Source = "voice"
	SourceSettlement Source = "settlement"
)

// Split is one participant's share of an expense. OweAmount is ignored by
// netting when Owing is false.
type Split struct {
	Participant string          `json:"participant"`
	Owing       bool            `json:"owing"`
	Paying      bool            `json:"paying"`
	OweAmount   decimal.Decimal `json:"owe_amount"`
	OwePercent  decimal.Decimal `json:"owe_percent"`
	PayAmount   decimal.Decimal `json:"pay_amount"`
}

// Expense is one recorded expense, settlement, income or loan.
type Expense struct {
	types.Entity
	ID          id.ExpenseID      `json:"id"`
	Description string            `json:"description"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	Type        Type              `json:"type"`
	SplitMode   SplitMode         `json:"split_mode"`
	Splits      []Split           `json:"splits"`
	GroupID     string            `json:"group_id,omitempty"`
	PairKey     string            `json:"pair_key,omitempty"`
	Source      Source            `json:"source,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
	Settled     bool              `json:"settled"`
	SettledAt   *time.Time        `json:"settled_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Participants returns the distinct participants of the expense, sorted.
func (e *Expense) Participants() []string {
	out := make([]string, 0, len(e.Splits))
	for _, s := range e.Splits {
		out = append(out, s.Participant)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Scope returns the scope the expense belongs to. It reports false for an
// expense that is neither grouped nor a personal pair.
func (e *Expense) Scope() (scope.Scope, bool) {
	if e.GroupID != "" {
		return scope.Group(e.GroupID), true
	}
	p := e.Participants()
	if len(p) != 2 {
		return scope.Scope{}, false
	}
	return scope.Personal(p[0], p[1]), true
}

// Clone returns a deep copy.
func (e *Expense) Clone() *Expense {
	if e == nil {
		return nil
	}
	c := *e
	c.Splits = slices.Clone(e.Splits)
	if e.SettledAt != nil {
		t := *e.SettledAt
		c.SettledAt = &t
	}
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Revision is an immutable before/after snapshot of one edit or delete.
// After is nil for a delete.
type Revision struct {
	ID        id.RevisionID `json:"id"`
	ExpenseID id.ExpenseID  `json:"expense_id"`
	Before    *Expense      `json:"before"`
	After     *Expense      `json:"after,omitempty"`
	EditedBy  string        `json:"edited_by,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
