package web

import (
	"encoding/json"
	"net/http"
	"time"

	"distro-backoffice/internal/app"
	"distro-backoffice/internal/tracking"
)

// apiPublishLocation handles POST /api/locations — a worker reporting their
// own position. Body: { latitude, longitude, accuracy?, timestamp? }
func (h *Handler) apiPublishLocation(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())

	var body struct {
		Latitude  float64    `json:"latitude"`
		Longitude float64    `json:"longitude"`
		Accuracy  float64    `json:"accuracy"`
		Timestamp *time.Time `json:"timestamp"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	req := app.PublishLocationRequest{
		Latitude:  body.Latitude,
		Longitude: body.Longitude,
		Accuracy:  body.Accuracy,
	}
	if body.Timestamp != nil {
		req.Timestamp = *body.Timestamp
	}

	if err := h.svc.PublishMyLocation(r.Context(), claims.UserID, req); err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiStopLocation handles POST /api/locations/stop — turns sharing off,
// keeping the last-known position.
func (h *Handler) apiStopLocation(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	if err := h.svc.StopMyLocation(r.Context(), claims.UserID); err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiClearLocation handles POST /api/locations/clear — removes the stored
// position entirely.
func (h *Handler) apiClearLocation(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())
	if err := h.svc.ClearMyLocation(r.Context(), claims.UserID); err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiStaffLocations handles GET /api/locations — the dashboard's snapshot of
// tracked staff with freshness and depot distance.
func (h *Handler) apiStaffLocations(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.StaffLocations(r.Context())
	if err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSON(w, snap)
}

// apiDirections handles GET /api/locations/{id}/directions — a map link to
// a worker's last reported position.
func (h *Handler) apiDirections(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid user id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	link, err := h.svc.DirectionsURL(r.Context(), id)
	if err != nil {
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
		return
	}
	type response struct {
		URL string `json:"url"`
	}
	writeJSON(w, response{URL: link})
}

// locationStream handles GET /api/locations/stream — a server-sent event
// stream of dashboard snapshots. Each client gets the current snapshot on
// connect, then every refresh (30-second poll or change event) until it
// disconnects.
func (h *Handler) locationStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, "streaming unsupported", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}

	snaps, cancel := h.svc.SubscribeLocations()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if snap, err := h.svc.StaffLocations(r.Context()); err == nil {
		writeSSE(w, snap)
		flusher.Flush()
	}

	for {
		select {
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			writeSSE(w, &snap)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, snap *tracking.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: snapshot\ndata: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}
