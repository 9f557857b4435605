package app

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateProductRequest is the input for adding a catalog product.
type CreateProductRequest struct {
	Code      string
	Name      string
	Unit      string
	Stock     int
	CostPrice decimal.Decimal
	UnitPrice decimal.Decimal
}

// CreateCustomerRequest is the input for creating a new customer.
type CreateCustomerRequest struct {
	Code    string
	Name    string
	Phone   string
	Address string
	Route   string
}

// CreateOrderRequest is the input for creating a new customer order.
type CreateOrderRequest struct {
	CustomerCode         string
	OrderDate            string // YYYY-MM-DD; empty means today
	ExpectedDeliveryDate string // YYYY-MM-DD; empty means unscheduled
	Notes                string
	Lines                []OrderLineInput
}

// OrderLineInput is a single line within a CreateOrderRequest.
type OrderLineInput struct {
	ProductCode string
	Quantity    int
	UnitPrice   decimal.Decimal // zero means "use product default"
}

// AllocateRequest is the input for allocating pending demand to a driver.
// Either DriverID or DriverUsername identifies the driver.
type AllocateRequest struct {
	DriverID       int
	DriverUsername string
	Dates          []string // delivery-date buckets; may include "unspecified"
}

// AllocationListRequest filters ListAllocations.
type AllocationListRequest struct {
	DriverID   int    // zero means all drivers
	FromDate   string // YYYY-MM-DD inclusive; empty means unbounded
	ToDate     string // YYYY-MM-DD inclusive; empty means unbounded
	ActiveOnly bool
}

// ReconcileRequest is the input for reconciling a completed delivery run.
type ReconcileRequest struct {
	AllocationID int
	Returns      []ReturnLineInput
}

// ReturnLineInput is one returned product line.
type ReturnLineInput struct {
	ProductID int
	Quantity  int
}

// RecordSaleRequest is the input for recording a driver's point-of-sale
// transaction. AllocationID zero means "the driver's current active
// allocation". An empty IdempotencyKey gets a fresh key assigned.
type RecordSaleRequest struct {
	DriverID       int
	AllocationID   int
	IdempotencyKey string // UUID; repeated keys return the original sale
	CustomerID     *int
	CustomerName   string
	PaidAmount     decimal.Decimal
	Lines          []SaleLineInput
}

// SaleLineInput is a single product line of a sale.
type SaleLineInput struct {
	ProductID int
	Quantity  int
	UnitPrice decimal.Decimal // zero means "use product default"
}

// PublishLocationRequest is one captured position from a worker's device.
type PublishLocationRequest struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64 // metres; zero means unknown
	Timestamp time.Time
}
