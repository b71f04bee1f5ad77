// Package api exposes the Tally engine over HTTP as JSON endpoints.
//
// Scopes are addressed by their key ("group:<id>" or "personal:<a>:<b>"),
// instruments and expenses by their TypeID.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/tally"
)

// API serves the HTTP surface of one engine.
type API struct {
	engine *tally.Tally
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger used for failed requests.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// New creates an API over engine.
func New(engine *tally.Tally, opts ...Option) *API {
	a := &API{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a router with all routes and the standard middleware.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	a.Routes(r)
	return r
}

// Routes mounts all endpoints on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/scopes/{scope}", func(r chi.Router) {
		r.Get("/balances", a.scopeBalances)
		r.Get("/loans", a.scopeLoans)
		r.Get("/plan", a.transferPlan)
		r.Get("/expenses", a.scopeExpenses)
		r.Post("/settled", a.markSettled)
	})
	r.Post("/settlements", a.settle)

	r.Route("/expenses", func(r chi.Router) {
		r.Get("/", a.listExpenses)
		r.Post("/", a.createExpense)
		r.Get("/{expenseID}", a.getExpense)
		r.Put("/{expenseID}", a.updateExpense)
		r.Delete("/{expenseID}", a.deleteExpense)
		r.Get("/{expenseID}/revisions", a.listRevisions)
	})

	r.Get("/owners/{ownerID}/instruments", a.listInstruments)
	r.Route("/instruments", func(r chi.Router) {
		r.Post("/", a.createInstrument)
		r.Get("/{instrumentID}", a.getInstrument)
		r.Put("/{instrumentID}", a.updateInstrument)
		r.Delete("/{instrumentID}", a.deleteInstrument)
		r.Put("/{instrumentID}/default/{flag}", a.setDefault)
		r.Get("/{instrumentID}/balances", a.instrumentBalances)
		r.Post("/{instrumentID}/credit", a.mutate(a.engine.Credit))
		r.Post("/{instrumentID}/debit", a.mutate(a.engine.Debit))
		r.Post("/{instrumentID}/hold", a.mutate(a.engine.Hold))
		r.Post("/{instrumentID}/release", a.mutate(a.engine.Release))
	})
	r.Post("/transfers", a.transfer)
	r.Get("/transactions", a.listTransactions)
}
