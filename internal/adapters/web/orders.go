package web

import (
	"fmt"
	"net/http"

	"distro-backoffice/internal/app"

	"github.com/shopspring/decimal"
)

// apiListOrders handles GET /api/orders. Optional ?status= filter.
func (h *Handler) apiListOrders(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result.Orders)
}

// apiGetOrder handles GET /api/orders/{id}.
func (h *Handler) apiGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	result, err := h.svc.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
		return
	}
	writeJSON(w, result.Order)
}

// apiCreateOrder handles POST /api/orders.
// Body: { customer_code, order_date?, expected_delivery_date?, notes?,
//         lines: [{product_code, quantity, unit_price?}] }
func (h *Handler) apiCreateOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CustomerCode         string `json:"customer_code"`
		OrderDate            string `json:"order_date"`
		ExpectedDeliveryDate string `json:"expected_delivery_date"`
		Notes                string `json:"notes"`
		Lines                []struct {
			ProductCode string `json:"product_code"`
			Quantity    int    `json:"quantity"`
			UnitPrice   string `json:"unit_price"`
		} `json:"lines"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	if body.CustomerCode == "" {
		writeError(w, r, "customer_code is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	if len(body.Lines) == 0 {
		writeError(w, r, "at least one line is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	req := app.CreateOrderRequest{
		CustomerCode:         body.CustomerCode,
		OrderDate:            body.OrderDate,
		ExpectedDeliveryDate: body.ExpectedDeliveryDate,
		Notes:                body.Notes,
	}
	for i, l := range body.Lines {
		if l.Quantity <= 0 {
			writeError(w, r, fmt.Sprintf("line %d: invalid quantity", i+1), "BAD_REQUEST", http.StatusBadRequest)
			return
		}
		price, _ := decimal.NewFromString(l.UnitPrice)
		req.Lines = append(req.Lines, app.OrderLineInput{
			ProductCode: l.ProductCode,
			Quantity:    l.Quantity,
			UnitPrice:   price,
		})
	}

	result, err := h.svc.CreateOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Order)
}

// apiUpdateOrderStatus handles POST /api/orders/{id}/status.
// Body: { status }
func (h *Handler) apiUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid order id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Status == "" {
		writeError(w, r, "status is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.UpdateOrderStatus(r.Context(), id, body.Status)
	if err != nil {
		writeError(w, r, err.Error(), "CONFLICT", http.StatusConflict)
		return
	}
	writeJSON(w, result.Order)
}

// apiPendingDemand handles GET /api/orders/pending-demand — the allocation
// screen's date-bucketed view of unfulfilled demand.
func (h *Handler) apiPendingDemand(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetPendingDemand(r.Context())
	if err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result)
}
