package core

import "errors"

// Sentinel errors surfaced by the allocation workflow. Callers distinguish
// them with errors.Is; services wrap them with context via fmt.Errorf("%w").
var (
	// ErrNoDatesSelected: Allocate called with an empty date set.
	ErrNoDatesSelected = errors.New("no delivery dates selected")

	// ErrNoProductsToAllocate: the aggregated demand for the requested
	// dates is empty.
	ErrNoProductsToAllocate = errors.New("no products to allocate")

	// ErrAllAlreadyAllocated: every requested date already has an active
	// allocation; nothing was written.
	ErrAllAlreadyAllocated = errors.New("all selected dates are already allocated")

	// ErrAllocationNotFound: the target allocation does not exist (possibly
	// deleted between read and write).
	ErrAllocationNotFound = errors.New("allocation not found")

	// ErrAlreadyReconciled: the allocation is frozen and cannot be
	// modified, unallocated, or sold against.
	ErrAlreadyReconciled = errors.New("allocation already reconciled")

	// ErrExceedsAllocation: a sale would push a product's sold quantity
	// above its allocated quantity. The sale is rejected, never clamped.
	ErrExceedsAllocation = errors.New("sale exceeds allocated quantity")

	// ErrReturnExceedsRemaining: a reconciliation return claims more of a
	// product than allocated minus sold.
	ErrReturnExceedsRemaining = errors.New("returned quantity exceeds remaining stock")

	// ErrDuplicateSale: the sale's idempotency key matched an earlier sale.
	// RecordSale returns the original sale alongside this error.
	ErrDuplicateSale = errors.New("sale already recorded")
)
