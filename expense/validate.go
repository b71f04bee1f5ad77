package expense

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/currency"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/types"
)

// ErrSettlementShape is returned when a settle-typed expense does not have
// exactly one payer and one receiver.
var ErrSettlementShape = fmt.Errorf("%w: settlement must have exactly one payer and one receiver", types.ErrConflict)

var hundred = decimal.NewFromInt(100)

// Normalize validates e and rewrites its amounts in place: every amount is
// rounded to the currency precision, owed amounts are derived from the split
// mode, and the personal pair key is derived from the participants.
func Normalize(e *Expense, r currency.Resolver) error {
	if e.Type == "" {
		e.Type = TypeExpense
	}
	if !e.Type.Valid() {
		return types.Invalid("type", "unknown expense type %q", e.Type)
	}
	if e.SplitMode == "" {
		e.SplitMode = ModeEqual
	}
	if !e.SplitMode.Valid() {
		return types.Invalid("split_mode", "unknown split mode %q", e.SplitMode)
	}
	if e.Source == "" {
		e.Source = SourceManual
	}

	e.Currency = currency.Normalize(e.Currency)
	if !currency.Valid(e.Currency) {
		return types.Invalid("currency", "%q is not an ISO 4217 code", e.Currency)
	}

	e.Amount = currency.Round(r, e.Amount, e.Currency)
	if !e.Amount.IsPositive() {
		return types.Invalid("amount", "must be positive, got %s", e.Amount)
	}

	if len(e.Splits) == 0 {
		return types.Invalid("splits", "at least one split is required")
	}

	seen := make(map[string]bool, len(e.Splits))
	for i := range e.Splits {
		s := &e.Splits[i]
		if s.Participant == "" {
			return types.Invalid(fmt.Sprintf("splits[%d].participant", i), "is required")
		}
		if seen[s.Participant] {
			return types.Invalid(fmt.Sprintf("splits[%d].participant", i), "%s appears twice", s.Participant)
		}
		seen[s.Participant] = true

		if s.OweAmount.IsNegative() || s.OwePercent.IsNegative() || s.PayAmount.IsNegative() {
			return types.Invalid(fmt.Sprintf("splits[%d]", i), "amounts must not be negative")
		}
		s.PayAmount = currency.Round(r, s.PayAmount, e.Currency)
		s.OweAmount = currency.Round(r, s.OweAmount, e.Currency)
		if !s.Paying {
			s.PayAmount = decimal.Zero
		}
		if !s.Owing {
			s.OweAmount = decimal.Zero
			s.OwePercent = decimal.Zero
		}
	}

	if e.Type == TypeSettle {
		if err := checkSettlementShape(e); err != nil {
			return err
		}
	}

	if err := checkPaid(e, r); err != nil {
		return err
	}
	if err := deriveOwed(e, r); err != nil {
		return err
	}

	if e.GroupID == "" {
		p := e.Participants()
		if len(p) != 2 {
			return types.Invalid("splits", "an expense without a group needs exactly two participants, got %d", len(p))
		}
		e.PairKey = scope.PairKey(p[0], p[1])
	} else {
		e.PairKey = ""
	}
	return nil
}

// IsSettlementShapeError reports whether err is ErrSettlementShape.
func IsSettlementShapeError(err error) bool {
	return errors.Is(err, ErrSettlementShape)
}

func checkSettlementShape(e *Expense) error {
	if e.SplitMode != ModeValue || len(e.Splits) != 2 {
		return ErrSettlementShape
	}
	var payers, receivers int
	for _, s := range e.Splits {
		if s.Paying && s.Owing {
			return ErrSettlementShape
		}
		if s.Paying {
			payers++
		}
		if s.Owing {
			receivers++
		}
	}
	if payers != 1 || receivers != 1 {
		return ErrSettlementShape
	}
	return nil
}

func checkPaid(e *Expense, r currency.Resolver) error {
	paid := decimal.Zero
	payers := 0
	for _, s := range e.Splits {
		if s.Paying {
			paid = paid.Add(s.PayAmount)
			payers++
		}
	}
	if payers == 0 {
		return types.Invalid("splits", "at least one payer is required")
	}
	if !currency.IsZero(r, paid.Sub(e.Amount), e.Currency) {
		return types.Invalid("splits", "paid amounts sum to %s, expected %s", paid, e.Amount)
	}
	return nil
}

func deriveOwed(e *Expense, r currency.Resolver) error {
	var owing []int
	for i, s := range e.Splits {
		if s.Owing {
			owing = append(owing, i)
		}
	}
	if len(owing) == 0 {
		return types.Invalid("splits", "at least one owing participant is required")
	}

	switch e.SplitMode {
	case ModeEqual:
		shares := EqualShares(r, e.Amount, e.Currency, len(owing))
		for k, i := range owing {
			e.Splits[i].OweAmount = shares[k]
		}

	case ModeValue:
		owed := decimal.Zero
		for _, i := range owing {
			owed = owed.Add(e.Splits[i].OweAmount)
		}
		if !currency.IsZero(r, owed.Sub(e.Amount), e.Currency) {
			return types.Invalid("splits", "owed amounts sum to %s, expected %s", owed, e.Amount)
		}

	case ModePercent:
		total := decimal.Zero
		for _, i := range owing {
			total = total.Add(e.Splits[i].OwePercent)
		}
		if !total.Equal(hundred) {
			return types.Invalid("splits", "percentages sum to %s, expected 100", total)
		}
		// Shares are truncated, so the leftover is never negative and is
		// handed out one minimal unit at a time to the leading shares.
		digits := int32(r.FractionDigits(e.Currency))
		unit := currency.MinimalUnit(r, e.Currency)
		assigned := decimal.Zero
		for _, i := range owing {
			share := e.Amount.Mul(e.Splits[i].OwePercent).Div(hundred).Truncate(digits)
			e.Splits[i].OweAmount = share
			assigned = assigned.Add(share)
		}
		leftover := e.Amount.Sub(assigned).Div(unit).IntPart()
		for k := 0; int64(k) < leftover; k++ {
			i := owing[k%len(owing)]
			e.Splits[i].OweAmount = e.Splits[i].OweAmount.Add(unit)
		}
	}
	return nil
}

// EqualShares divides amount into n shares at the currency precision. The
// shares sum exactly to amount; leftover minimal units go one each to the
// leading shares.
func EqualShares(r currency.Resolver, amount decimal.Decimal, code string, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	digits := int32(r.FractionDigits(code))
	unit := currency.MinimalUnit(r, code)

	base := amount.Div(decimal.NewFromInt(int64(n))).Truncate(digits)
	leftover := amount.Sub(base.Mul(decimal.NewFromInt(int64(n)))).Div(unit).IntPart()

	shares := make([]decimal.Decimal, n)
	for i := range shares {
		shares[i] = base
		if int64(i) < leftover {
			shares[i] = shares[i].Add(unit)
		}
	}
	return shares
}
