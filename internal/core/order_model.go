package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. Only Pending orders participate in delivery aggregation.
const (
	OrderPending   = "Pending"
	OrderShipped   = "Shipped"
	OrderDelivered = "Delivered"
	OrderCancelled = "Cancelled"
)

// Order is a customer order header. ExpectedDeliveryDate is optional;
// aggregation falls back to OrderDate when it is absent.
type Order struct {
	ID                   int             `json:"id"`
	OrderNumber          string          `json:"order_number"`
	CustomerID           int             `json:"customer_id"`
	CustomerName         string          `json:"customer_name"` // joined from customers
	Status               string          `json:"status"`
	OrderDate            string          `json:"order_date"` // YYYY-MM-DD
	ExpectedDeliveryDate string          `json:"expected_delivery_date,omitempty"`
	Total                decimal.Decimal `json:"total"`
	Notes                string          `json:"notes"`
	Items                []OrderItem     `json:"items"`
	CreatedAt            time.Time       `json:"created_at"`
}

// OrderItem is one requested product line on an order.
type OrderItem struct {
	ID        int             `json:"id"`
	OrderID   int             `json:"order_id"`
	ProductID int             `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderItemInput is used when creating a new order.
// If UnitPrice is zero, the product's default unit_price is used.
type OrderItemInput struct {
	ProductCode string
	Quantity    int
	UnitPrice   decimal.Decimal
}
