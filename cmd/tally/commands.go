package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/xraph/tally"
	"github.com/xraph/tally/api"
	"github.com/xraph/tally/scope"
)

var commands = []subcommands.Command{
	&balancesCmd{},
	&planCmd{},
	&serveCmd{},
}

// bookFlags are shared by the commands that read a book.
type bookFlags struct {
	book     string
	scopeKey string
	asJSON   bool
}

func (b *bookFlags) set(f *flag.FlagSet) {
	f.StringVar(&b.book, "book", "book.json", "Path to the JSON book of groups and expenses.")
	f.StringVar(&b.scopeKey, "scope", "", "Scope key, e.g. group:trip or personal:alice:bob.")
	f.BoolVar(&b.asJSON, "json", false, "Print JSON instead of a table.")
}

func (b *bookFlags) scope() (scope.Scope, error) {
	if b.scopeKey == "" {
		return scope.Scope{}, fmt.Errorf("-scope is required")
	}
	return scope.ParseKey(b.scopeKey)
}

type balancesCmd struct {
	bookFlags
	loans bool
}

func (*balancesCmd) Name() string     { return "balances" }
func (*balancesCmd) Synopsis() string { return "print the net balance of every member of a scope" }
func (*balancesCmd) Usage() string {
	return `tally balances -scope <key> [-book <file>] [-loans] [-json]

  Nets every expense of the scope per currency. Positive amounts are owed to
  the member, negative amounts are owed by the member.
`
}

func (c *balancesCmd) SetFlags(f *flag.FlagSet) {
	c.set(f)
	f.BoolVar(&c.loans, "loans", false, "Net loans instead of expenses.")
}

func (c *balancesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.scope()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	engine, err := loadBook(ctx, c.book)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	compute := engine.ComputeScopeBalances
	if c.loans {
		compute = engine.ComputeLoanBalances
	}
	balances, err := compute(ctx, s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if c.asJSON {
		return printJSON(os.Stdout, balances)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "CURRENCY\tMEMBER\tNET\t")
	for _, code := range balances.Currencies() {
		for _, member := range balances.Members(code) {
			fmt.Fprintf(tw, "%s\t%s\t%s\t\n", code, member, balances.Get(code, member).StringFixed(int32(engine.Resolver().FractionDigits(code))))
		}
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type planCmd struct {
	bookFlags
	guard int
}

func (*planCmd) Name() string     { return "plan" }
func (*planCmd) Synopsis() string { return "print the minimal transfers that settle a scope" }
func (*planCmd) Usage() string {
	return `tally plan -scope <key> [-book <file>] [-guard <factor>] [-json]

  Simplifies the scope's balances into a short list of payments per
  currency, largest debtor paying largest creditor first.
`
}

func (c *planCmd) SetFlags(f *flag.FlagSet) {
	c.set(f)
	f.IntVar(&c.guard, "guard", 0, "Simplifier iteration guard factor (0 keeps the default).")
}

func (c *planCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	s, err := c.scope()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	engine, err := loadBook(ctx, c.book,
		tally.WithCanonicalTransfers(true),
		tally.WithSimplifierGuardFactor(c.guard),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	plan, err := engine.ComputeTransferPlan(ctx, s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if c.asJSON {
		return printJSON(os.Stdout, plan)
	}
	if plan.Count() == 0 {
		fmt.Println("nothing to settle")
		return subcommands.ExitSuccess
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CURRENCY\tFROM\tTO\tAMOUNT")
	for _, code := range slices.Sorted(maps.Keys(plan)) {
		for _, tr := range plan[code] {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", code, tr.From, tr.To, tr.Amount.StringFixed(int32(engine.Resolver().FractionDigits(code))))
		}
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type serveCmd struct {
	book string
	addr string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the HTTP API over an in-memory copy of a book" }
func (*serveCmd) Usage() string {
	return `tally serve [-book <file>] [-addr <host:port>]

  Loads the book into memory and serves the JSON API. Changes are not
  written back to the book.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.book, "book", "book.json", "Path to the JSON book of groups and expenses.")
	f.StringVar(&c.addr, "addr", "127.0.0.1:8080", "Listen address.")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	engine, err := loadBook(ctx, c.book)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	slog.Info("tally: serving", "addr", c.addr, "book", c.book)
	if err := http.ListenAndServe(c.addr, api.New(engine).Handler()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printJSON(w io.Writer, v any) subcommands.ExitStatus {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
