// Package types provides common types used across Tally.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/xraph/tally/currency"
)

// ErrCurrencyMismatch is returned when amounts of two currencies are combined.
var ErrCurrencyMismatch = fmt.Errorf("%w: currency mismatch", ErrInvalidInput)

// Money is a ledger amount in integer minor units of one currency. Instrument
// balances and journal rows are kept in it; expense amounts are decimals and
// cross over through FromDecimal and Decimal.
//
// Examples:
//   - New(4900, "USD") = $49.00
//   - New(19900, "INR") = ₹199.00
//   - New(100, "JPY") = ¥100
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit (cents, paise, etc)
	Currency string `json:"currency"` // ISO 4217 upper case: "USD", "INR"
}

// New creates a Money value from minor units.
func New(minor int64, code string) Money {
	return Money{Amount: minor, Currency: currency.Normalize(code)}
}

// Zero returns a zero Money value in the specified currency.
func Zero(code string) Money { return New(0, code) }

// FromDecimal converts a decimal amount into minor units. An amount with more
// fraction digits than the currency allows is rejected, never rounded.
func FromDecimal(r currency.Resolver, amount decimal.Decimal, code string) (Money, error) {
	code = currency.Normalize(code)
	minor, err := currency.ToMinor(r, amount, code)
	if err != nil {
		return Money{}, Invalid("amount", "%v", err)
	}
	return Money{Amount: minor, Currency: code}, nil
}

// Decimal returns the amount in major units at r's precision.
func (m Money) Decimal(r currency.Resolver) decimal.Decimal {
	return currency.FromMinor(r, m.Amount, m.Currency)
}

// Arithmetic operations

// Add adds two Money values of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub subtracts another Money value of the same currency.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.Amount < 0 {
		return m.Negate()
	}
	return m
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// Cmp compares two amounts of the same currency: -1, 0 or +1.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	switch {
	case m.Amount < other.Amount:
		return -1, nil
	case m.Amount > other.Amount:
		return 1, nil
	}
	return 0, nil
}

// Formatting methods

// Format renders the amount with r's precision and the currency symbol, e.g.
// "₹199.00" or "ZZZ 1.00" for a code without a symbol.
func (m Money) Format(r currency.Resolver) string {
	digits := int32(r.FractionDigits(m.Currency))
	return symbol(m.Currency) + m.Decimal(r).StringFixed(digits)
}

// String formats with the ISO precision table.
func (m Money) String() string {
	return m.Format(currency.Default())
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return fmt.Errorf("%w: %s != %s", ErrCurrencyMismatch, m.Currency, other.Currency)
	}
	return nil
}

// symbol returns the grapheme for a known code, the code otherwise.
func symbol(code string) string {
	if c := money.GetCurrency(code); c != nil && c.Grapheme != "" {
		return c.Grapheme
	}
	return code + " "
}

// Sum adds values that must all be in code. It returns zero in code for an
// empty list.
func Sum(code string, values ...Money) (Money, error) {
	total := Zero(code)
	for _, v := range values {
		var err error
		if total, err = total.Add(v); err != nil {
			return Money{}, err
		}
	}
	return total, nil
}
