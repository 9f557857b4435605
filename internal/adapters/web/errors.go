package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"distro-backoffice/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONStatus writes a JSON response with an explicit status code.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDomainError maps workflow sentinel errors onto HTTP statuses and
// machine-readable codes. Unknown errors become a 500 with the message
// withheld.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrAllocationNotFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrAlreadyReconciled):
		writeError(w, r, err.Error(), "ALREADY_RECONCILED", http.StatusConflict)
	case errors.Is(err, core.ErrAllAlreadyAllocated):
		writeError(w, r, err.Error(), "ALREADY_ALLOCATED", http.StatusConflict)
	case errors.Is(err, core.ErrExceedsAllocation):
		writeError(w, r, err.Error(), "EXCEEDS_ALLOCATION", http.StatusConflict)
	case errors.Is(err, core.ErrReturnExceedsRemaining):
		writeError(w, r, err.Error(), "RETURN_EXCEEDS_REMAINING", http.StatusUnprocessableEntity)
	case errors.Is(err, core.ErrNoDatesSelected), errors.Is(err, core.ErrNoProductsToAllocate):
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
