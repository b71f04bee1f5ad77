package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally"
	"github.com/xraph/tally/scope"
)

const sampleBook = `{
  "groups": [{"id": "flat", "members": ["ana", "ben"]}],
  "expenses": [
    {
      "description": "rent",
      "amount": "1000",
      "currency": "EUR",
      "group_id": "flat",
      "splits": [
        {"participant": "ana", "owing": true, "paying": true, "pay_amount": "1000"},
        {"participant": "ben", "owing": true}
      ]
    }
  ]
}`

func TestLoadBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.json")
	if err := os.WriteFile(path, []byte(sampleBook), 0o600); err != nil {
		t.Fatalf("write book: %v", err)
	}

	ctx := context.Background()
	engine, err := loadBook(ctx, path)
	if err != nil {
		t.Fatalf("loadBook: %v", err)
	}

	plan, err := engine.ComputeTransferPlan(ctx, scope.Group("flat"))
	if err != nil {
		t.Fatalf("ComputeTransferPlan: %v", err)
	}
	transfers := plan["EUR"]
	if len(transfers) != 1 {
		t.Fatalf("transfers = %+v, want 1", transfers)
	}
	if tr := transfers[0]; tr.From != "ben" || tr.To != "ana" || !tr.Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("transfer = %+v, want ben→ana 500", tr)
	}
}

func TestLoadBookErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "none.json")},
		{"malformed json", bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadBook(context.Background(), tt.path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadBookReportsEveryRejectedExpense(t *testing.T) {
	const book = `{
  "groups": [{"id": "flat", "members": ["ana", "ben"]}],
  "expenses": [
    {"description": "no splits", "amount": "10", "currency": "EUR", "group_id": "flat", "splits": []},
    {"description": "stranger", "amount": "10", "currency": "EUR", "group_id": "flat",
     "splits": [{"participant": "zoe", "owing": true, "paying": true, "pay_amount": "10"}]}
  ]
}`
	path := filepath.Join(t.TempDir(), "book.json")
	if err := os.WriteFile(path, []byte(book), 0o600); err != nil {
		t.Fatalf("write book: %v", err)
	}

	_, err := loadBook(context.Background(), path)
	var multi tally.MultiError
	if !errors.As(err, &multi) {
		t.Fatalf("err = %v, want MultiError", err)
	}
	if len(multi.Errors) != 2 {
		t.Fatalf("errors = %v, want 2", multi.Errors)
	}
	if !tally.IsValidation(multi.Errors[0]) || !errors.Is(multi.Errors[1], tally.ErrNotAMember) {
		t.Errorf("errors = %v", multi.Errors)
	}
}
