package web

import (
	"errors"
	"net/http"

	"distro-backoffice/internal/app"
	"distro-backoffice/internal/core"
)

// apiAssistantInterpret handles POST /api/assistant/interpret.
// Body: { text }
// Returns a proposed allocation; nothing is written until the proposal is
// confirmed via /api/assistant/execute.
func (h *Handler) apiAssistantInterpret(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Text == "" {
		writeError(w, r, "text is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.InterpretAllocation(r.Context(), body.Text)
	if err != nil {
		if errors.Is(err, app.ErrAssistantUnavailable) {
			writeError(w, r, err.Error(), "ASSISTANT_UNAVAILABLE", http.StatusServiceUnavailable)
			return
		}
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result.Proposal)
}

// apiAssistantExecute handles POST /api/assistant/execute.
// Body: the confirmed AllocationProposal, exactly as returned by interpret.
func (h *Handler) apiAssistantExecute(w http.ResponseWriter, r *http.Request) {
	var proposal core.AllocationProposal
	if !decodeJSON(w, r, &proposal) {
		return
	}

	result, err := h.svc.ExecuteAllocationProposal(r.Context(), proposal)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Batch)
}
