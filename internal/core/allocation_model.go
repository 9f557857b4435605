package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Allocation statuses. An allocation is "active" until it is reconciled;
// reconciled allocations are immutable and excluded from uniqueness checks
// and the driver's visible-stock projection.
const (
	AllocationAllocated  = "Allocated"
	AllocationReconciled = "Reconciled"
)

// Allocation assigns aggregated product demand to one driver for one
// delivery date, acting as a temporary stock loan.
type Allocation struct {
	ID           int              `json:"id"`
	DriverID     int              `json:"driver_id"`
	DriverName   string           `json:"driver_name"` // denormalized at allocation time
	DeliveryDate string           `json:"delivery_date"` // YYYY-MM-DD
	Status       string           `json:"status"`
	SalesTotal   decimal.Decimal  `json:"sales_total"`
	Items        []AllocationItem `json:"items"`
	Returns      []ReturnedItem   `json:"returns,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	ReconciledAt *time.Time       `json:"reconciled_at,omitempty"`
}

// AllocationItem pairs a product with its allocated quantity and the
// running sold count. SoldQty never exceeds AllocatedQty.
type AllocationItem struct {
	ID           int    `json:"id"`
	AllocationID int    `json:"allocation_id"`
	ProductID    int    `json:"product_id"`
	ProductCode  string `json:"product_code"` // joined from products
	ProductName  string `json:"product_name"` // joined from products
	AllocatedQty int    `json:"allocated_qty"`
	SoldQty      int    `json:"sold_qty"`
}

// ReturnedItem records unsold stock handed back at reconciliation.
type ReturnedItem struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

// AggregatedItem is per-product demand summed from pending order lines.
type AggregatedItem struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

// AllocationBatch is the outcome of an Allocate call: the allocations that
// were created plus the dates that were skipped because an active
// allocation already covered them.
type AllocationBatch struct {
	Created      []Allocation `json:"created"`
	SkippedDates []string     `json:"skipped_dates,omitempty"`
}

// DriverStock is one row of a driver's visible-stock projection: the summed
// remaining quantity across all of the driver's active allocations up to
// the projection date. It overrides warehouse stock for the Driver role.
type DriverStock struct {
	ProductID   int             `json:"product_id"`
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Remaining   int             `json:"remaining"`
}

// DriverSale is one point-of-sale transaction recorded against an
// allocation. PaidAmount + CreditAmount = Total.
type DriverSale struct {
	ID             int             `json:"id"`
	IdempotencyKey uuid.UUID       `json:"idempotency_key"`
	DriverID       int             `json:"driver_id"`
	AllocationID   int             `json:"allocation_id"`
	CustomerID     *int            `json:"customer_id,omitempty"`
	CustomerName   string          `json:"customer_name,omitempty"`
	Total          decimal.Decimal `json:"total"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	CreditAmount   decimal.Decimal `json:"credit_amount"`
	SoldAt         time.Time       `json:"sold_at"`
	Items          []SaleItem      `json:"items"`
}

// SaleItem is one product line on a driver sale.
type SaleItem struct {
	ID        int             `json:"id"`
	SaleID    int             `json:"sale_id"`
	ProductID int             `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// SaleInput is used when recording a new driver sale.
type SaleInput struct {
	IdempotencyKey uuid.UUID
	CustomerID     *int
	CustomerName   string
	PaidAmount     decimal.Decimal
	Items          []SaleItemInput
}

// SaleItemInput is one product line of a sale being recorded.
// If UnitPrice is zero, the product's default unit_price is used.
type SaleItemInput struct {
	ProductID int
	Quantity  int
	UnitPrice decimal.Decimal
}
