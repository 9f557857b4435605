package web

import (
	"net/http"
	"strconv"

	"distro-backoffice/internal/app"
	"distro-backoffice/internal/core"

	"github.com/shopspring/decimal"
)

// apiListAllocations handles GET /api/allocations.
// Optional query params: driver_id, from, to, active=true.
func (h *Handler) apiListAllocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	driverID, _ := strconv.Atoi(q.Get("driver_id"))

	result, err := h.svc.ListAllocations(r.Context(), app.AllocationListRequest{
		DriverID:   driverID,
		FromDate:   q.Get("from"),
		ToDate:     q.Get("to"),
		ActiveOnly: q.Get("active") == "true",
	})
	if err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result.Allocations)
}

// apiGetAllocation handles GET /api/allocations/{id}.
func (h *Handler) apiGetAllocation(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid allocation id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.GetAllocation(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result.Allocation)
}

// apiAllocate handles POST /api/allocations.
// Body: { driver_id? | driver_username?, dates: ["YYYY-MM-DD", ...] }
// Dates already under an active allocation come back in skipped_dates.
func (h *Handler) apiAllocate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID       int      `json:"driver_id"`
		DriverUsername string   `json:"driver_username"`
		Dates          []string `json:"dates"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	result, err := h.svc.AllocateDeliveries(r.Context(), app.AllocateRequest{
		DriverID:       body.DriverID,
		DriverUsername: body.DriverUsername,
		Dates:          body.Dates,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Batch)
}

// apiUnallocate handles DELETE /api/allocations/{id}.
func (h *Handler) apiUnallocate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid allocation id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if err := h.svc.UnallocateDelivery(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiReconcile handles POST /api/allocations/{id}/reconcile.
// Body: { returns: [{product_id, quantity}] }
func (h *Handler) apiReconcile(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid allocation id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var body struct {
		Returns []struct {
			ProductID int `json:"product_id"`
			Quantity  int `json:"quantity"`
		} `json:"returns"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	req := app.ReconcileRequest{AllocationID: id}
	for _, ret := range body.Returns {
		req.Returns = append(req.Returns, app.ReturnLineInput{
			ProductID: ret.ProductID,
			Quantity:  ret.Quantity,
		})
	}

	result, err := h.svc.ReconcileDelivery(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, result.Allocation)
}

// apiDriverStock handles GET /api/drivers/{id}/stock. Optional ?as_of= date.
// Drivers may only read their own stock; office roles may read any.
func (h *Handler) apiDriverStock(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid driver id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if !h.canAccessDriver(r, id) {
		writeError(w, r, "insufficient role", "FORBIDDEN", http.StatusForbidden)
		return
	}

	result, err := h.svc.GetDriverStock(r.Context(), id, r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}

// apiDriverSales handles GET /api/drivers/{id}/sales. Optional ?allocation_id=.
func (h *Handler) apiDriverSales(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid driver id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if !h.canAccessDriver(r, id) {
		writeError(w, r, "insufficient role", "FORBIDDEN", http.StatusForbidden)
		return
	}

	var allocationID *int
	if raw := r.URL.Query().Get("allocation_id"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, "invalid allocation_id", "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		allocationID = &v
	}

	result, err := h.svc.ListDriverSales(r.Context(), id, allocationID)
	if err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result.Sales)
}

// apiRecordSale handles POST /api/sales.
// Body: { allocation_id?, idempotency_key?, customer_id?, customer_name?,
//         paid_amount, lines: [{product_id, quantity, unit_price?}] }
// Drivers always sell as themselves; an Admin may pass driver_id.
func (h *Handler) apiRecordSale(w http.ResponseWriter, r *http.Request) {
	claims := authFromContext(r.Context())

	var body struct {
		DriverID       int    `json:"driver_id"`
		AllocationID   int    `json:"allocation_id"`
		IdempotencyKey string `json:"idempotency_key"`
		CustomerID     *int   `json:"customer_id"`
		CustomerName   string `json:"customer_name"`
		PaidAmount     string `json:"paid_amount"`
		Lines          []struct {
			ProductID int    `json:"product_id"`
			Quantity  int    `json:"quantity"`
			UnitPrice string `json:"unit_price"`
		} `json:"lines"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	driverID := body.DriverID
	if claims.Role == core.RoleDriver {
		driverID = claims.UserID
	}
	if driverID == 0 {
		writeError(w, r, "driver_id is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	paid, _ := decimal.NewFromString(body.PaidAmount)
	req := app.RecordSaleRequest{
		DriverID:       driverID,
		AllocationID:   body.AllocationID,
		IdempotencyKey: body.IdempotencyKey,
		CustomerID:     body.CustomerID,
		CustomerName:   body.CustomerName,
		PaidAmount:     paid,
	}
	for _, l := range body.Lines {
		price, _ := decimal.NewFromString(l.UnitPrice)
		req.Lines = append(req.Lines, app.SaleLineInput{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: price,
		})
	}

	result, err := h.svc.RecordDriverSale(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if result.Duplicate {
		// Replayed key: the original sale, not a new write.
		writeJSON(w, result.Sale)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Sale)
}

// canAccessDriver reports whether the caller may read driver-scoped data.
func (h *Handler) canAccessDriver(r *http.Request, driverID int) bool {
	claims := authFromContext(r.Context())
	if claims == nil {
		return false
	}
	if claims.Role == core.RoleAdmin || claims.Role == core.RoleManager {
		return true
	}
	return claims.UserID == driverID
}
