package app

import "distro-backoffice/internal/core"

// UserSession is returned by AuthenticateUser.
type UserSession struct {
	UserID   int
	Username string
	Role     core.Role
}

// UserResult is returned by GetUser.
type UserResult struct {
	User *core.User
}

// ProductResult is returned by single-product operations.
type ProductResult struct {
	Product *core.Product
}

// ProductListResult is returned by ListProducts.
type ProductListResult struct {
	Products []core.Product
}

// CustomerResult is returned by CreateCustomer.
type CustomerResult struct {
	Customer *core.Customer
}

// CustomerListResult is returned by ListCustomers.
type CustomerListResult struct {
	Customers []core.Customer
}

// OrderResult is returned by order lifecycle operations.
type OrderResult struct {
	Order *core.Order
}

// OrderListResult is returned by ListOrders.
type OrderListResult struct {
	Orders []core.Order
}

// DemandLine is one product's summed pending quantity within a date bucket.
type DemandLine struct {
	ProductID   int    `json:"product_id"`
	ProductCode string `json:"product_code"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// DateDemand is one delivery-date bucket of pending demand. Allocated marks
// dates already covered by an active allocation.
type DateDemand struct {
	Date      string       `json:"date"` // YYYY-MM-DD or "unspecified"
	Allocated bool         `json:"allocated"`
	Lines     []DemandLine `json:"lines"`
}

// PendingDemandResult is returned by GetPendingDemand, buckets sorted by
// date with "unspecified" last.
type PendingDemandResult struct {
	Dates []DateDemand `json:"dates"`
}

// AllocationResult is returned by single-allocation operations.
type AllocationResult struct {
	Allocation *core.Allocation
}

// AllocationListResult is returned by ListAllocations.
type AllocationListResult struct {
	Allocations []core.Allocation
}

// AllocationBatchResult is returned by AllocateDeliveries and
// ExecuteAllocationProposal.
type AllocationBatchResult struct {
	Batch *core.AllocationBatch
}

// DriverStockResult is returned by GetDriverStock.
type DriverStockResult struct {
	DriverID int
	AsOf     string // YYYY-MM-DD
	Stock    []core.DriverStock
}

// SaleResult is returned by RecordDriverSale. Duplicate reports that the
// idempotency key matched an earlier sale, which is returned unchanged.
type SaleResult struct {
	Sale      *core.DriverSale
	Duplicate bool
}

// SaleListResult is returned by ListDriverSales.
type SaleListResult struct {
	Sales []core.DriverSale
}

// AssistantResult is returned by InterpretAllocation.
type AssistantResult struct {
	Proposal *core.AllocationProposal
}
