package settlement

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/types"
)

// WireRequest is the flat JSON shape accepted at the HTTP boundary. Target
// resolves it into exactly one variant so nothing downstream probes optional
// fields.
type WireRequest struct {
	From      string                     `json:"from"`
	To        string                     `json:"to"`
	Currency  string                     `json:"currency"`
	ScopeKind Kind                       `json:"scope_kind"`
	GroupID   string                     `json:"group_id,omitempty"`
	Amount    decimal.NullDecimal        `json:"amount"`
	Groups    map[string]decimal.Decimal `json:"groups,omitempty"`
	Personal  decimal.NullDecimal        `json:"personal"`
	CreatedBy string                     `json:"created_by,omitempty"`
	Note      string                     `json:"note,omitempty"`
}

// Request converts the wire shape into a Request.
func (w WireRequest) Request() (Request, error) {
	t, err := w.target()
	if err != nil {
		return Request{}, err
	}
	return Request{
		From:      w.From,
		To:        w.To,
		Currency:  w.Currency,
		Target:    t,
		CreatedBy: w.CreatedBy,
		Note:      w.Note,
	}, nil
}

func (w WireRequest) target() (Target, error) {
	switch w.ScopeKind {
	case KindPersonal:
		if !w.Amount.Valid {
			return nil, types.Invalid("amount", "is required for a personal settlement")
		}
		return Personal{Amount: w.Amount.Decimal}, nil

	case KindGroup, kindOneGroup:
		if w.GroupID == "" {
			return nil, types.Invalid("group_id", "is required for a group settlement")
		}
		if !w.Amount.Valid {
			return nil, types.Invalid("amount", "is required for a group settlement")
		}
		return Group{GroupID: w.GroupID, Amount: w.Amount.Decimal}, nil

	case KindAllGroups, kindAllGroupsDash:
		if len(w.Groups) > 0 {
			return AllGroups{Allocations: allocations(w.Groups)}, nil
		}
		if !w.Amount.Valid {
			return nil, types.Invalid("amount", "either amount or groups is required")
		}
		return AllGroups{Total: w.Amount.Decimal}, nil

	case KindNet:
		if w.Personal.Valid && !w.Personal.Decimal.IsPositive() {
			return nil, types.Invalid("personal", "must be positive, got %s", w.Personal.Decimal)
		}
		if len(w.Groups) > 0 || w.Personal.Valid {
			return Net{Allocations: allocations(w.Groups), Personal: w.Personal.Decimal}, nil
		}
		if !w.Amount.Valid {
			return nil, types.Invalid("amount", "either amount or personal/groups is required")
		}
		return Net{Total: w.Amount.Decimal}, nil
	}
	return nil, types.Invalid("scope_kind", "unknown scope kind %q", w.ScopeKind)
}

// allocations orders a map by group id so explicit requests are replayed
// deterministically.
func allocations(m map[string]decimal.Decimal) []Allocation {
	out := make([]Allocation, 0, len(m))
	for gid, amt := range m {
		out = append(out, Allocation{GroupID: gid, Amount: amt})
	}
	slices.SortFunc(out, func(a, b Allocation) int {
		switch {
		case a.GroupID < b.GroupID:
			return -1
		case a.GroupID > b.GroupID:
			return 1
		}
		return 0
	})
	return out
}
