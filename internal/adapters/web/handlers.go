package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"distro-backoffice/internal/app"
	"distro-backoffice/internal/core"

	"github.com/go-chi/chi/v5"
)

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	router    chi.Router
	jwtSecret string
	metrics   http.Handler // nil disables the /metrics endpoint
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins, jwtSecret string, metrics http.Handler) http.Handler {
	h := &Handler{
		svc:       svc,
		jwtSecret: jwtSecret,
		metrics:   metrics,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	// ── Public ────────────────────────────────────────────────────────────────
	r.Get("/api/health", h.health)
	if metrics != nil {
		r.Get("/metrics", metrics.ServeHTTP)
	}
	r.Post("/api/auth/login", h.login)
	r.Post("/api/auth/logout", h.logout)

	// ── Protected API routes (401 JSON if unauthenticated) ───────────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)

		// The location stream stays open long past any body read; it sits
		// outside the body-limit group.
		r.Get("/api/locations/stream", h.locationStream)

		r.Group(func(r chi.Router) {
			r.Use(RequestBodyLimit(1 << 20)) // 1 MB

			// Auth
			r.Get("/api/auth/me", h.me)

			// Catalog
			r.Get("/api/products", h.apiListProducts)
			r.Get("/api/customers", h.apiListCustomers)

			// Orders
			r.Get("/api/orders", h.apiListOrders)
			r.Post("/api/orders", h.apiCreateOrder)
			r.Get("/api/orders/pending-demand", h.apiPendingDemand)
			r.Get("/api/orders/{id}", h.apiGetOrder)

			// Allocations (reads)
			r.Get("/api/allocations", h.apiListAllocations)
			r.Get("/api/allocations/{id}", h.apiGetAllocation)

			// Driver stock and sales
			r.Get("/api/drivers/{id}/stock", h.apiDriverStock)
			r.Get("/api/drivers/{id}/sales", h.apiDriverSales)
			r.With(RequireRole(core.RoleDriver, core.RoleAdmin)).
				Post("/api/sales", h.apiRecordSale)

			// Own-position reporting (tracked field roles plus Admin for ops)
			r.Group(func(r chi.Router) {
				r.Use(RequireRole(core.RoleSales, core.RoleDriver, core.RoleAdmin))
				r.Post("/api/locations", h.apiPublishLocation)
				r.Post("/api/locations/stop", h.apiStopLocation)
				r.Post("/api/locations/clear", h.apiClearLocation)
			})

			// Staff dashboard reads
			r.Get("/api/locations", h.apiStaffLocations)
			r.Get("/api/locations/{id}/directions", h.apiDirections)

			// Back-office writes (office roles only)
			r.Group(func(r chi.Router) {
				r.Use(RequireRole(core.RoleAdmin, core.RoleManager))

				r.Post("/api/products", h.apiCreateProduct)
				r.Post("/api/products/{id}/stock", h.apiAdjustStock)
				r.Post("/api/customers", h.apiCreateCustomer)
				r.Post("/api/orders/{id}/status", h.apiUpdateOrderStatus)

				r.Post("/api/allocations", h.apiAllocate)
				r.Delete("/api/allocations/{id}", h.apiUnallocate)
				r.Post("/api/allocations/{id}/reconcile", h.apiReconcile)

				r.Post("/api/assistant/interpret", h.apiAssistantInterpret)
				r.Post("/api/assistant/execute", h.apiAssistantExecute)
			})
		})
	})

	h.router = r
	return r
}

// health returns service status.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

// idParam extracts the {id} URL parameter as an int.
func idParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
