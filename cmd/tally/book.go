package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/xraph/tally"
	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/store/memory"
)

// book is the JSON input of every command: the groups and their expenses.
type book struct {
	Groups   []bookGroup        `json:"groups"`
	Expenses []*expense.Expense `json:"expenses"`
}

type bookGroup struct {
	ID       string   `json:"id"`
	Currency string   `json:"currency,omitempty"`
	Members  []string `json:"members"`
}

// loadBook decodes the book at path and replays it into a fresh in-memory
// engine. Every rejected expense is reported, not just the first.
func loadBook(ctx context.Context, path string, opts ...tally.Option) (*tally.Tally, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read book: %w", err)
	}
	var b book
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode book %s: %w", path, err)
	}

	dir := scope.NewStaticDirectory()
	for _, g := range b.Groups {
		dir.SetGroup(g.ID, g.Currency, g.Members...)
	}

	opts = append([]tally.Option{
		tally.WithDirectory(dir),
		tally.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))),
	}, opts...)
	engine := tally.New(memory.New(), opts...)

	var errs tally.MultiError
	for i, e := range b.Expenses {
		if err := engine.CreateExpense(ctx, e); err != nil {
			errs.Add(fmt.Errorf("expense #%d (%q): %w", i+1, e.Description, err))
		}
	}
	if errs.HasErrors() {
		return nil, errs
	}
	return engine, nil
}
