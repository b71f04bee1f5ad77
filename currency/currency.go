// Package currency resolves the precision of ISO 4217 currencies and rounds
// decimal amounts to it.
//
// Every balance comparison in Tally goes through this package: a value is
// zero when its magnitude is below one minimal unit of its currency, never by
// exact equality.
package currency

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// DefaultFractionDigits is used when a currency cannot be resolved.
const DefaultFractionDigits = 2

// Resolver maps a currency code to its number of fraction digits.
type Resolver interface {
	FractionDigits(code string) int
}

// Table is a Resolver backed by an in-memory override table with the
// go-money ISO table as fallback.
type Table struct {
	overrides map[string]int
}

// NewTable creates a Table. Overrides take precedence over the ISO table.
func NewTable(overrides map[string]int) *Table {
	t := &Table{overrides: make(map[string]int, len(overrides))}
	for code, digits := range overrides {
		t.overrides[Normalize(code)] = digits
	}
	return t
}

// Default returns a Table without overrides.
func Default() *Table { return NewTable(nil) }

// FractionDigits implements Resolver. Unknown codes resolve to
// DefaultFractionDigits.
func (t *Table) FractionDigits(code string) int {
	code = Normalize(code)
	if d, ok := t.overrides[code]; ok {
		return d
	}
	if c := money.GetCurrency(code); c != nil {
		return c.Fraction
	}
	return DefaultFractionDigits
}

// Known reports whether the code is in the override table or the ISO table.
func (t *Table) Known(code string) bool {
	code = Normalize(code)
	if _, ok := t.overrides[code]; ok {
		return true
	}
	return money.GetCurrency(code) != nil
}

// Normalize upper-cases and trims a currency code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code has the shape of an ISO 4217 alphabetic code.
func Valid(code string) bool {
	code = Normalize(code)
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Round rounds amount to the precision of code.
func Round(r Resolver, amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(int32(r.FractionDigits(code)))
}

// MinimalUnit returns 10^-fractionDigits for code.
func MinimalUnit(r Resolver, code string) decimal.Decimal {
	return decimal.New(1, -int32(r.FractionDigits(code)))
}

// IsZero reports whether |amount| is below one minimal unit of code.
func IsZero(r Resolver, amount decimal.Decimal, code string) bool {
	return amount.Abs().LessThan(MinimalUnit(r, code))
}

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// ToMinor converts a decimal amount into integer minor units. Amounts with
// more precision than the currency allows are rejected rather than rounded.
func ToMinor(r Resolver, amount decimal.Decimal, code string) (int64, error) {
	digits := int32(r.FractionDigits(code))
	shifted := amount.Shift(digits)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("currency: %s has more than %d fraction digits for %s", amount, digits, Normalize(code))
	}
	if shifted.GreaterThan(maxMinor) || shifted.LessThan(minMinor) {
		return 0, fmt.Errorf("currency: %s %s is out of range", amount, Normalize(code))
	}
	return shifted.IntPart(), nil
}

// FromMinor converts integer minor units back into a decimal amount.
func FromMinor(r Resolver, minor int64, code string) decimal.Decimal {
	return decimal.New(minor, -int32(r.FractionDigits(code)))
}
