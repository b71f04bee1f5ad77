package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/tally/currency"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/settlement"
	"github.com/xraph/tally/types"
)

func scopeParam(r *http.Request) (scope.Scope, error) {
	s, err := scope.ParseKey(chi.URLParam(r, "scope"))
	if err != nil {
		return scope.Scope{}, types.Invalid("scope", "%v", err)
	}
	return s, nil
}

func (a *API) scopeBalances(w http.ResponseWriter, r *http.Request) {
	s, err := scopeParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	balances, err := a.engine.ComputeScopeBalances(r.Context(), s)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":    s.Key(),
		"balances": balances,
	})
}

func (a *API) scopeLoans(w http.ResponseWriter, r *http.Request) {
	s, err := scopeParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	balances, err := a.engine.ComputeLoanBalances(r.Context(), s)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":    s.Key(),
		"balances": balances,
	})
}

func (a *API) transferPlan(w http.ResponseWriter, r *http.Request) {
	s, err := scopeParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	plan, err := a.engine.ComputeTransferPlan(r.Context(), s)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":     s.Key(),
		"transfers": plan,
	})
}

func (a *API) scopeExpenses(w http.ResponseWriter, r *http.Request) {
	s, err := scopeParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items, err := a.engine.ListScopeExpenses(r.Context(), s)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// markSettled runs the settled check for one currency, given as the
// "currency" query parameter.
func (a *API) markSettled(w http.ResponseWriter, r *http.Request) {
	s, err := scopeParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := currency.Normalize(r.URL.Query().Get("currency"))
	if !currency.Valid(code) {
		a.fail(w, r, types.Invalid("currency", "%q is not an ISO 4217 code", code))
		return
	}
	settled, err := a.engine.TryMarkScopeSettled(r.Context(), s, code)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":    s.Key(),
		"currency": code,
		"settled":  settled,
	})
}

func (a *API) settle(w http.ResponseWriter, r *http.Request) {
	var wire settlement.WireRequest
	if err := decode(r, &wire); err != nil {
		a.fail(w, r, err)
		return
	}
	req, err := wire.Request()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.engine.Settle(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
