package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/tally/currency"
	"github.com/xraph/tally/expense"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/scope"
	"github.com/xraph/tally/types"
)

func expenseParam(r *http.Request) (id.ExpenseID, error) {
	eid, err := id.ParseExpenseID(chi.URLParam(r, "expenseID"))
	if err != nil {
		return id.Nil, types.Invalid("expense_id", "%v", err)
	}
	return eid, nil
}

func (a *API) createExpense(w http.ResponseWriter, r *http.Request) {
	var e expense.Expense
	if err := decode(r, &e); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.engine.CreateExpense(r.Context(), &e); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &e)
}

// listExpenses filters expenses by group_id, pair ("a:b"), currency and
// unsettled. Without a group or pair every expense matches.
func (a *API) listExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := expense.Filter{
		GroupID:  q.Get("group_id"),
		Currency: currency.Normalize(q.Get("currency")),
	}
	if pair := q.Get("pair"); pair != "" {
		if f.GroupID != "" {
			a.fail(w, r, types.Invalid("pair", "cannot be combined with group_id"))
			return
		}
		s, err := scope.ParseKey(string(scope.KindPersonal) + ":" + pair)
		if err != nil {
			a.fail(w, r, types.Invalid("pair", "%v", err))
			return
		}
		f.PairKey = s.PairKey()
	}
	if raw := q.Get("unsettled"); raw != "" {
		unsettled, err := strconv.ParseBool(raw)
		if err != nil {
			a.fail(w, r, types.Invalid("unsettled", "%v", err))
			return
		}
		f.UnsettledOnly = unsettled
	}

	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		a.fail(w, r, types.Invalid("limit", "%v", err))
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		a.fail(w, r, types.Invalid("offset", "%v", err))
		return
	}

	items, err := a.engine.ListExpenses(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*expense.Expense{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) getExpense(w http.ResponseWriter, r *http.Request) {
	eid, err := expenseParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	e, err := a.engine.GetExpense(r.Context(), eid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// updateExpense replaces the expense; the editor is taken from the
// "edited_by" query parameter.
func (a *API) updateExpense(w http.ResponseWriter, r *http.Request) {
	eid, err := expenseParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var e expense.Expense
	if err := decode(r, &e); err != nil {
		a.fail(w, r, err)
		return
	}
	e.ID = eid
	if err := a.engine.UpdateExpense(r.Context(), &e, r.URL.Query().Get("edited_by")); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &e)
}

func (a *API) deleteExpense(w http.ResponseWriter, r *http.Request) {
	eid, err := expenseParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.engine.DeleteExpense(r.Context(), eid, r.URL.Query().Get("deleted_by")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listRevisions(w http.ResponseWriter, r *http.Request) {
	eid, err := expenseParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	revs, err := a.engine.ListRevisions(r.Context(), eid)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": revs})
}
