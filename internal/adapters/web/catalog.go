package web

import (
	"net/http"

	"distro-backoffice/internal/app"

	"github.com/shopspring/decimal"
)

// apiListProducts handles GET /api/products.
func (h *Handler) apiListProducts(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListProducts(r.Context())
	if err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result.Products)
}

// apiCreateProduct handles POST /api/products.
// Body: { code, name, unit?, stock?, cost_price?, unit_price? }
func (h *Handler) apiCreateProduct(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code      string `json:"code"`
		Name      string `json:"name"`
		Unit      string `json:"unit"`
		Stock     int    `json:"stock"`
		CostPrice string `json:"cost_price"`
		UnitPrice string `json:"unit_price"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Code == "" || body.Name == "" {
		writeError(w, r, "code and name are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	costPrice, _ := decimal.NewFromString(body.CostPrice)
	unitPrice, _ := decimal.NewFromString(body.UnitPrice)

	result, err := h.svc.CreateProduct(r.Context(), app.CreateProductRequest{
		Code:      body.Code,
		Name:      body.Name,
		Unit:      body.Unit,
		Stock:     body.Stock,
		CostPrice: costPrice,
		UnitPrice: unitPrice,
	})
	if err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Product)
}

// apiAdjustStock handles POST /api/products/{id}/stock.
// Body: { delta }
func (h *Handler) apiAdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, r, "invalid product id", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	var body struct {
		Delta int `json:"delta"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Delta == 0 {
		writeError(w, r, "delta must be non-zero", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.AdjustStock(r.Context(), id, body.Delta)
	if err != nil {
		writeError(w, r, err.Error(), "CONFLICT", http.StatusConflict)
		return
	}
	writeJSON(w, result.Product)
}

// apiListCustomers handles GET /api/customers.
func (h *Handler) apiListCustomers(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ListCustomers(r.Context())
	if err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSON(w, result.Customers)
}

// apiCreateCustomer handles POST /api/customers.
// Body: { code, name, phone?, address?, route? }
func (h *Handler) apiCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code    string `json:"code"`
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Address string `json:"address"`
		Route   string `json:"route"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Code == "" || body.Name == "" {
		writeError(w, r, "code and name are required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	result, err := h.svc.CreateCustomer(r.Context(), app.CreateCustomerRequest{
		Code:    body.Code,
		Name:    body.Name,
		Phone:   body.Phone,
		Address: body.Address,
		Route:   body.Route,
	})
	if err != nil {
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, http.StatusCreated, result.Customer)
}
