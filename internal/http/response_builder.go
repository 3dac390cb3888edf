// Package http exposes the loan and credit-card portfolio as a JSON API.
//
// This file centralizes response writing so every handler emits the same
// envelope: data on success, {"error": {"field", "message"}} on failure.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"prestiti/internal/core"
)

type errorBody struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeJSON serializes v with the given status. A nil v writes no body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps a domain error to an HTTP status and error envelope.
//
// Validation failures and bad amounts are the client's fault (422),
// missing records are 404, everything else is a 500 with the detail kept
// out of the response body.
func writeError(w http.ResponseWriter, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{
			Error: errorBody{Field: verr.Field, Message: verr.Msg},
		})
	case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrAmountTooLarge):
		writeJSON(w, http.StatusUnprocessableEntity, errorEnvelope{
			Error: errorBody{Message: err.Error()},
		})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorEnvelope{
			Error: errorBody{Message: "not found"},
		})
	default:
		slog.Error("Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{
			Error: errorBody{Message: "internal error"},
		})
	}
}

// writeBadRequest reports a malformed request (unparseable body or path).
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{
		Error: errorBody{Message: msg},
	})
}
