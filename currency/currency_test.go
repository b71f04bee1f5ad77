package currency

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFractionDigits(t *testing.T) {
	table := NewTable(map[string]int{"xts": 4})

	tests := []struct {
		code string
		want int
	}{
		{"USD", 2},
		{"inr", 2},
		{"JPY", 0},
		{"KWD", 3},
		{"XTS", 4},
		{"ZZZ", DefaultFractionDigits},
		{"", DefaultFractionDigits},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := table.FractionDigits(tt.code); got != tt.want {
				t.Errorf("FractionDigits(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestRoundAndMinimalUnit(t *testing.T) {
	r := Default()

	if got := Round(r, decimal.RequireFromString("10.005"), "USD"); !got.Equal(decimal.RequireFromString("10.01")) {
		t.Errorf("Round USD = %s, want 10.01", got)
	}
	if got := Round(r, decimal.RequireFromString("99.5"), "JPY"); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Round JPY = %s, want 100", got)
	}
	if got := MinimalUnit(r, "USD"); !got.Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("MinimalUnit USD = %s", got)
	}
	if got := MinimalUnit(r, "JPY"); !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("MinimalUnit JPY = %s", got)
	}
}

func TestIsZero(t *testing.T) {
	r := Default()

	tests := []struct {
		amount string
		code   string
		want   bool
	}{
		{"0", "USD", true},
		{"0.009", "USD", true},
		{"-0.009", "USD", true},
		{"0.01", "USD", false},
		{"-0.01", "USD", false},
		{"0.9", "JPY", true},
		{"1", "JPY", false},
	}

	for _, tt := range tests {
		t.Run(tt.amount+tt.code, func(t *testing.T) {
			if got := IsZero(r, decimal.RequireFromString(tt.amount), tt.code); got != tt.want {
				t.Errorf("IsZero(%s %s) = %v, want %v", tt.amount, tt.code, got, tt.want)
			}
		})
	}
}

func TestMinorConversion(t *testing.T) {
	r := Default()

	minor, err := ToMinor(r, decimal.RequireFromString("12.34"), "INR")
	if err != nil {
		t.Fatalf("ToMinor: %v", err)
	}
	if minor != 1234 {
		t.Errorf("ToMinor = %d, want 1234", minor)
	}

	if _, err := ToMinor(r, decimal.RequireFromString("1.234"), "INR"); err == nil {
		t.Error("expected error for excess precision")
	}

	if got := FromMinor(r, 1234, "INR"); !got.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("FromMinor = %s", got)
	}
	if got := FromMinor(r, 500, "JPY"); !got.Equal(decimal.NewFromInt(500)) {
		t.Errorf("FromMinor JPY = %s", got)
	}
}

func TestToMinorRange(t *testing.T) {
	r := Default()

	tests := []struct {
		amount  string
		code    string
		wantErr bool
	}{
		{"92233720368547758.07", "USD", false},
		{"-92233720368547758.08", "USD", false},
		{"92233720368547758.08", "USD", true},
		{"-92233720368547758.09", "USD", true},
		{"1e30", "USD", true},
		{"9223372036854775808", "JPY", true},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			_, err := ToMinor(r, decimal.RequireFromString(tt.amount), tt.code)
			if (err != nil) != tt.wantErr {
				t.Errorf("ToMinor(%s %s) err = %v, wantErr %v", tt.amount, tt.code, err, tt.wantErr)
			}
		})
	}
}

func TestValid(t *testing.T) {
	for code, want := range map[string]bool{
		"USD":  true,
		" inr": true,
		"US":   false,
		"US1":  false,
		"":     false,
		"EURO": false,
	} {
		if got := Valid(code); got != want {
			t.Errorf("Valid(%q) = %v, want %v", code, got, want)
		}
	}
}
