package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xraph/tally"
	"github.com/xraph/tally/types"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

// statusOf maps engine errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case tally.IsValidation(err):
		return http.StatusBadRequest
	case tally.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, tally.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case tally.IsConflict(err), errors.Is(err, tally.ErrAlreadyExists):
		return http.StatusConflict
	case tally.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	body := errorBody{Error: err.Error()}

	var verr types.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return types.Invalid("body", "malformed JSON: %v", err)
	}
	return nil
}
