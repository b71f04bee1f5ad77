package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/instrument"
	"github.com/xraph/tally/types"
)

func instrumentParam(r *http.Request) (id.InstrumentID, error) {
	instID, err := id.ParseInstrumentID(chi.URLParam(r, "instrumentID"))
	if err != nil {
		return id.Nil, types.Invalid("instrument_id", "%v", err)
	}
	return instID, nil
}

// amountView renders minor units with their display form at the engine's
// precision.
type amountView struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Display  string `json:"display"`
}

type balanceView struct {
	Currency  string     `json:"currency"`
	Available amountView `json:"available"`
	Pending   amountView `json:"pending"`
}

func (a *API) amount(minor int64, code string) amountView {
	m := types.New(minor, code)
	return amountView{Amount: m.Amount, Currency: m.Currency, Display: m.Format(a.engine.Resolver())}
}

func (a *API) createInstrument(w http.ResponseWriter, r *http.Request) {
	var inst instrument.Instrument
	if err := decode(r, &inst); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.engine.CreateInstrument(r.Context(), &inst); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &inst)
}

func (a *API) getInstrument(w http.ResponseWriter, r *http.Request) {
	instID, err := instrumentParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	inst, err := a.engine.GetInstrument(r.Context(), instID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (a *API) listInstruments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := instrument.ListOpts{Status: instrument.Status(q.Get("status"))}

	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		a.fail(w, r, types.Invalid("limit", "%v", err))
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		a.fail(w, r, types.Invalid("offset", "%v", err))
		return
	}

	items, err := a.engine.ListInstruments(r.Context(), chi.URLParam(r, "ownerID"), opts)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) updateInstrument(w http.ResponseWriter, r *http.Request) {
	instID, err := instrumentParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var inst instrument.Instrument
	if err := decode(r, &inst); err != nil {
		a.fail(w, r, err)
		return
	}
	inst.ID = instID
	if err := a.engine.UpdateInstrument(r.Context(), &inst); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &inst)
}

func (a *API) deleteInstrument(w http.ResponseWriter, r *http.Request) {
	instID, err := instrumentParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.engine.DeleteInstrument(r.Context(), instID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// setDefault moves the send or receive default of the instrument's owner to
// this instrument.
func (a *API) setDefault(w http.ResponseWriter, r *http.Request) {
	instID, err := instrumentParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	inst, err := a.engine.GetInstrument(r.Context(), instID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	flag := instrument.DefaultFlag(chi.URLParam(r, "flag"))
	if err := a.engine.SetDefaultInstrument(r.Context(), inst.OwnerID, instID, flag); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) instrumentBalances(w http.ResponseWriter, r *http.Request) {
	instID, err := instrumentParam(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	balances, err := a.engine.GetBalances(r.Context(), instID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	views := make([]balanceView, len(balances))
	for i, b := range balances {
		views[i] = balanceView{
			Currency:  b.Currency,
			Available: a.amount(b.Available, b.Currency),
			Pending:   a.amount(b.Pending, b.Currency),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

type ledgerOp func(ctx context.Context, instID id.InstrumentID, op instrument.Op) (*instrument.Transaction, error)

// mutate adapts a single-instrument engine operation to a handler.
func (a *API) mutate(fn ledgerOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		instID, err := instrumentParam(r)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		var op instrument.Op
		if err := decode(r, &op); err != nil {
			a.fail(w, r, err)
			return
		}
		tx, err := fn(r.Context(), instID, op)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func (a *API) transfer(w http.ResponseWriter, r *http.Request) {
	var op instrument.TransferOp
	if err := decode(r, &op); err != nil {
		a.fail(w, r, err)
		return
	}
	out, in, err := a.engine.Transfer(r.Context(), op)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"out": out,
		"in":  in,
	})
}

// listTransactions pages the journal; "before" is the next_cursor of the
// previous page.
func (a *API) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := instrument.TxQuery{
		Currency: q.Get("currency"),
		Kind:     instrument.Kind(q.Get("kind")),
	}

	if raw := q.Get("instrument_id"); raw != "" {
		instID, err := id.ParseInstrumentID(raw)
		if err != nil {
			a.fail(w, r, types.Invalid("instrument_id", "%v", err))
			return
		}
		query.InstrumentID = instID
	}
	if raw := q.Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			a.fail(w, r, types.Invalid("before", "%v", err))
			return
		}
		query.Before = before
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		a.fail(w, r, types.Invalid("limit", "%v", err))
		return
	}
	query.Limit = limit

	page, err := a.engine.ListTransactions(r.Context(), query)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
