package app

import (
	"context"

	"distro-backoffice/internal/core"
	"distro-backoffice/internal/tracking"
)

// ApplicationService is the single interface all UI adapters call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
type ApplicationService interface {
	// AuthenticateUser verifies credentials and returns a session on success.
	AuthenticateUser(ctx context.Context, username, password string) (*UserSession, error)

	// GetUser returns a user profile by ID.
	GetUser(ctx context.Context, userID int) (*UserResult, error)

	// ListProducts returns the full product catalog with warehouse stock.
	ListProducts(ctx context.Context) (*ProductListResult, error)

	// CreateProduct adds a product to the catalog.
	CreateProduct(ctx context.Context, req CreateProductRequest) (*ProductResult, error)

	// AdjustStock applies a warehouse stock delta. Negative deltas that would
	// take stock below zero are rejected.
	AdjustStock(ctx context.Context, productID, delta int) (*ProductResult, error)

	// ListCustomers returns all active customers.
	ListCustomers(ctx context.Context) (*CustomerListResult, error)

	// CreateCustomer creates a new customer record.
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*CustomerResult, error)

	// CreateOrder creates a new Pending customer order.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error)

	// GetOrder returns a single order with its lines.
	GetOrder(ctx context.Context, orderID int) (*OrderResult, error)

	// ListOrders returns orders, optionally filtered by status.
	ListOrders(ctx context.Context, status string) (*OrderListResult, error)

	// UpdateOrderStatus moves an order along Pending -> Shipped -> Delivered,
	// or Pending -> Cancelled.
	UpdateOrderStatus(ctx context.Context, orderID int, status string) (*OrderResult, error)

	// GetPendingDemand buckets pending order lines by delivery date and sums
	// quantities per product. Orders without a usable date land in the
	// "unspecified" bucket.
	GetPendingDemand(ctx context.Context) (*PendingDemandResult, error)

	// AllocateDeliveries aggregates pending demand across the selected dates
	// and creates one allocation per date for the chosen driver. Dates already
	// under an active allocation are skipped and reported.
	AllocateDeliveries(ctx context.Context, req AllocateRequest) (*AllocationBatchResult, error)

	// GetAllocation returns one allocation with items and returns.
	GetAllocation(ctx context.Context, allocationID int) (*AllocationResult, error)

	// ListAllocations returns allocations matching the filter, newest first.
	ListAllocations(ctx context.Context, req AllocationListRequest) (*AllocationListResult, error)

	// UnallocateDelivery deletes an allocation that has not been reconciled.
	UnallocateDelivery(ctx context.Context, allocationID int) error

	// ReconcileDelivery records returned quantities and freezes the
	// allocation. Reconciled allocations accept no further sales or edits.
	ReconcileDelivery(ctx context.Context, req ReconcileRequest) (*AllocationResult, error)

	// GetDriverStock returns the driver's visible stock: remaining quantities
	// summed across the driver's active allocations up to asOf (empty means
	// today). This view replaces warehouse stock for drivers.
	GetDriverStock(ctx context.Context, driverID int, asOf string) (*DriverStockResult, error)

	// RecordDriverSale records a point-of-sale transaction against an
	// allocation, enforcing the remaining-quantity ceiling per product.
	RecordDriverSale(ctx context.Context, req RecordSaleRequest) (*SaleResult, error)

	// ListDriverSales returns a driver's sales, optionally scoped to one
	// allocation.
	ListDriverSales(ctx context.Context, driverID int, allocationID *int) (*SaleListResult, error)

	// PublishMyLocation stores a captured position for the calling worker and
	// turns their sharing flag on.
	PublishMyLocation(ctx context.Context, userID int, req PublishLocationRequest) error

	// StopMyLocation turns the worker's sharing flag off, keeping the
	// last-known position on record.
	StopMyLocation(ctx context.Context, userID int) error

	// ClearMyLocation removes the worker's stored position entirely.
	ClearMyLocation(ctx context.Context, userID int) error

	// StaffLocations returns the current dashboard snapshot: tracked staff
	// with freshness and distance from the depot.
	StaffLocations(ctx context.Context) (*tracking.Snapshot, error)

	// SubscribeLocations delivers dashboard snapshots as they refresh. Each
	// subscriber's channel holds only the newest snapshot; the cancel func
	// must be called when the consumer goes away.
	SubscribeLocations() (<-chan tracking.Snapshot, func())

	// DirectionsURL builds a map link for navigating to a worker's last
	// reported position.
	DirectionsURL(ctx context.Context, userID int) (string, error)

	// InterpretAllocation sends a natural language dispatch instruction to
	// the assistant and returns a proposed allocation for confirmation.
	InterpretAllocation(ctx context.Context, text string) (*AssistantResult, error)

	// ExecuteAllocationProposal applies a previously proposed allocation.
	// Must only be called after explicit user approval.
	ExecuteAllocationProposal(ctx context.Context, proposal core.AllocationProposal) (*AllocationBatchResult, error)
}
