package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// AllocationFilter narrows GetAllocations. Zero values mean "no filter".
type AllocationFilter struct {
	DriverID   int
	FromDate   string // YYYY-MM-DD inclusive
	ToDate     string // YYYY-MM-DD inclusive
	ActiveOnly bool
}

// AllocationService manages the delivery allocation lifecycle: assigning
// aggregated demand to drivers, tracking sell-through, and reconciling
// returned stock. The store-level partial unique index on active delivery
// dates is the authoritative duplicate guard; every code path that creates
// allocations must tolerate losing that race.
type AllocationService interface {
	// Allocate creates one allocation per requested date, all carrying the
	// same combined item list. Dates that already have an active allocation
	// are skipped and reported; if every date is skipped the call returns
	// ErrAllAlreadyAllocated and writes nothing.
	Allocate(ctx context.Context, driverID int, dates []string, items []AggregatedItem) (*AllocationBatch, error)

	// Unallocate hard-deletes an active allocation.
	Unallocate(ctx context.Context, allocationID int) error

	// Reconcile freezes an active allocation, recording returned quantities.
	Reconcile(ctx context.Context, allocationID int, returned []ReturnedItem) error

	// GetAllocation returns one allocation with items and returns loaded.
	GetAllocation(ctx context.Context, allocationID int) (*Allocation, error)

	// GetAllocations returns allocations matching the filter, items loaded.
	GetAllocations(ctx context.Context, filter AllocationFilter) ([]Allocation, error)

	// ActiveDates returns the set of delivery dates in [from, to] that have
	// an active allocation — the "already allocated" marker for date lists.
	ActiveDates(ctx context.Context, from, to string) (map[string]bool, error)

	// VisibleStock computes a driver's sellable stock as of the given date:
	// sum of (allocated − sold) across the driver's active allocations with
	// delivery_date <= asOf, grouped by product, zero rows excluded.
	VisibleStock(ctx context.Context, driverID int, asOf string) ([]DriverStock, error)

	// RecordSale records a point-of-sale transaction against an active
	// allocation. Each line is applied with a conditional update so the
	// sold quantity can never exceed the allocated quantity; an oversell
	// attempt rolls the whole sale back with ErrExceedsAllocation. A repeated
	// idempotency key returns the original sale with ErrDuplicateSale.
	RecordSale(ctx context.Context, driverID, allocationID int, input SaleInput) (*DriverSale, error)

	// GetDriverSales returns a driver's sales, newest first, optionally
	// restricted to one allocation.
	GetDriverSales(ctx context.Context, driverID int, allocationID *int) ([]DriverSale, error)
}

type allocationService struct {
	pool *pgxpool.Pool
}

func NewAllocationService(pool *pgxpool.Pool) AllocationService {
	return &allocationService{pool: pool}
}

// ── Allocation creation ──────────────────────────────────────────────────────

func (s *allocationService) Allocate(ctx context.Context, driverID int, dates []string, items []AggregatedItem) (*AllocationBatch, error) {
	if len(dates) == 0 {
		return nil, ErrNoDatesSelected
	}
	if len(items) == 0 {
		return nil, ErrNoProductsToAllocate
	}

	// Normalize to calendar-date granularity up front so a timestamped date
	// and its plain form can never slip past the duplicate check as two
	// distinct rows.
	normalized := make([]string, 0, len(dates))
	seen := make(map[string]bool, len(dates))
	for _, d := range dates {
		nd := normalizeDate(d)
		if nd == "" {
			return nil, fmt.Errorf("invalid delivery date %q", d)
		}
		if !seen[nd] {
			seen[nd] = true
			normalized = append(normalized, nd)
		}
	}

	for _, it := range items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return nil, fmt.Errorf("invalid allocation item (product %d, qty %d)", it.ProductID, it.Quantity)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var driverName string
	err = tx.QueryRow(ctx,
		"SELECT username FROM users WHERE id = $1 AND role = $2 AND is_active = true",
		driverID, RoleDriver,
	).Scan(&driverName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("driver %d not found", driverID)
		}
		return nil, fmt.Errorf("failed to resolve driver: %w", err)
	}

	batch := &AllocationBatch{}
	for _, date := range normalized {
		// ON CONFLICT against the partial unique index makes the insert the
		// authoritative check: a concurrent allocator that got there first
		// simply turns this date into a skip.
		var alloc Allocation
		err := tx.QueryRow(ctx, `
			INSERT INTO allocations (driver_id, driver_name, delivery_date)
			VALUES ($1, $2, $3)
			ON CONFLICT (delivery_date) WHERE status <> 'Reconciled' DO NOTHING
			RETURNING id, driver_id, driver_name, delivery_date::text, status, sales_total, created_at
		`, driverID, driverName, date).Scan(
			&alloc.ID, &alloc.DriverID, &alloc.DriverName, &alloc.DeliveryDate,
			&alloc.Status, &alloc.SalesTotal, &alloc.CreatedAt,
		)
		if errors.Is(err, pgx.ErrNoRows) {
			batch.SkippedDates = append(batch.SkippedDates, date)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert allocation for %s: %w", date, err)
		}

		// Each date in a merged batch receives the full combined item list.
		for _, it := range items {
			var ai AllocationItem
			err := tx.QueryRow(ctx, `
				INSERT INTO allocation_items (allocation_id, product_id, allocated_qty)
				VALUES ($1, $2, $3)
				RETURNING id, allocation_id, product_id, allocated_qty, sold_qty
			`, alloc.ID, it.ProductID, it.Quantity).Scan(
				&ai.ID, &ai.AllocationID, &ai.ProductID, &ai.AllocatedQty, &ai.SoldQty,
			)
			if err != nil {
				return nil, fmt.Errorf("failed to insert allocation item (product %d): %w", it.ProductID, err)
			}
			alloc.Items = append(alloc.Items, ai)
		}
		batch.Created = append(batch.Created, alloc)
	}

	if len(batch.Created) == 0 {
		return nil, ErrAllAlreadyAllocated
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit allocation batch: %w", err)
	}
	return batch, nil
}

// ── Unallocation ─────────────────────────────────────────────────────────────

func (s *allocationService) Unallocate(ctx context.Context, allocationID int) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM allocations WHERE id = $1 AND status <> $2",
		allocationID, AllocationReconciled,
	)
	if err != nil {
		return fmt.Errorf("failed to delete allocation %d: %w", allocationID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err = s.pool.QueryRow(ctx, "SELECT status FROM allocations WHERE id = $1", allocationID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("allocation %d: %w", allocationID, ErrAllocationNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check allocation %d: %w", allocationID, err)
	}
	return fmt.Errorf("allocation %d: %w", allocationID, ErrAlreadyReconciled)
}

// ── Reconciliation ───────────────────────────────────────────────────────────

func (s *allocationService) Reconcile(ctx context.Context, allocationID int, returned []ReturnedItem) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx,
		"SELECT status FROM allocations WHERE id = $1 FOR UPDATE",
		allocationID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("allocation %d: %w", allocationID, ErrAllocationNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock allocation %d: %w", allocationID, err)
	}
	if status == AllocationReconciled {
		return fmt.Errorf("allocation %d: %w", allocationID, ErrAlreadyReconciled)
	}

	// Returns are free-form manual entry, but an impossible return — more
	// of a product than remains unsold — is rejected.
	remaining := make(map[int]int)
	rows, err := tx.Query(ctx,
		"SELECT product_id, allocated_qty - sold_qty FROM allocation_items WHERE allocation_id = $1",
		allocationID,
	)
	if err != nil {
		return fmt.Errorf("failed to load allocation items: %w", err)
	}
	for rows.Next() {
		var productID, rem int
		if err := rows.Scan(&productID, &rem); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan allocation item: %w", err)
		}
		remaining[productID] = rem
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read allocation items: %w", err)
	}

	for _, r := range returned {
		rem, ok := remaining[r.ProductID]
		if !ok {
			return fmt.Errorf("product %d is not part of allocation %d", r.ProductID, allocationID)
		}
		if r.Quantity < 0 || r.Quantity > rem {
			return fmt.Errorf("product %d: returned %d, remaining %d: %w",
				r.ProductID, r.Quantity, rem, ErrReturnExceedsRemaining)
		}
		if r.Quantity == 0 {
			continue
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO allocation_returns (allocation_id, product_id, quantity) VALUES ($1, $2, $3)",
			allocationID, r.ProductID, r.Quantity,
		); err != nil {
			return fmt.Errorf("failed to record return for product %d: %w", r.ProductID, err)
		}
	}

	if _, err := tx.Exec(ctx,
		"UPDATE allocations SET status = $1, reconciled_at = now() WHERE id = $2",
		AllocationReconciled, allocationID,
	); err != nil {
		return fmt.Errorf("failed to mark allocation %d reconciled: %w", allocationID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit reconciliation: %w", err)
	}
	return nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *allocationService) GetAllocation(ctx context.Context, allocationID int) (*Allocation, error) {
	var a Allocation
	err := s.pool.QueryRow(ctx, `
		SELECT id, driver_id, driver_name, delivery_date::text, status, sales_total, created_at, reconciled_at
		FROM allocations
		WHERE id = $1
	`, allocationID).Scan(
		&a.ID, &a.DriverID, &a.DriverName, &a.DeliveryDate,
		&a.Status, &a.SalesTotal, &a.CreatedAt, &a.ReconciledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("allocation %d: %w", allocationID, ErrAllocationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch allocation %d: %w", allocationID, err)
	}

	if err := s.loadItems(ctx, []*Allocation{&a}); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		"SELECT product_id, quantity FROM allocation_returns WHERE allocation_id = $1 ORDER BY product_id",
		allocationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query returns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r ReturnedItem
		if err := rows.Scan(&r.ProductID, &r.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan return: %w", err)
		}
		a.Returns = append(a.Returns, r)
	}
	return &a, rows.Err()
}

func (s *allocationService) GetAllocations(ctx context.Context, filter AllocationFilter) ([]Allocation, error) {
	query := `
		SELECT id, driver_id, driver_name, delivery_date::text, status, sales_total, created_at, reconciled_at
		FROM allocations
		WHERE 1=1`
	var args []any
	if filter.DriverID > 0 {
		args = append(args, filter.DriverID)
		query += fmt.Sprintf(" AND driver_id = $%d", len(args))
	}
	if filter.FromDate != "" {
		args = append(args, filter.FromDate)
		query += fmt.Sprintf(" AND delivery_date >= $%d", len(args))
	}
	if filter.ToDate != "" {
		args = append(args, filter.ToDate)
		query += fmt.Sprintf(" AND delivery_date <= $%d", len(args))
	}
	if filter.ActiveOnly {
		args = append(args, AllocationReconciled)
		query += fmt.Sprintf(" AND status <> $%d", len(args))
	}
	query += " ORDER BY delivery_date DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocations []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.DriverID, &a.DriverName, &a.DeliveryDate,
			&a.Status, &a.SalesTotal, &a.CreatedAt, &a.ReconciledAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		allocations = append(allocations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read allocations: %w", err)
	}

	ptrs := make([]*Allocation, len(allocations))
	for i := range allocations {
		ptrs[i] = &allocations[i]
	}
	if err := s.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}
	return allocations, nil
}

// loadItems attaches items (with product code/name joined) to each allocation.
func (s *allocationService) loadItems(ctx context.Context, allocations []*Allocation) error {
	if len(allocations) == 0 {
		return nil
	}
	ids := make([]int, len(allocations))
	byID := make(map[int]*Allocation, len(allocations))
	for i, a := range allocations {
		ids[i] = a.ID
		byID[a.ID] = a
	}

	rows, err := s.pool.Query(ctx, `
		SELECT ai.id, ai.allocation_id, ai.product_id, p.code, p.name, ai.allocated_qty, ai.sold_qty
		FROM allocation_items ai
		JOIN products p ON p.id = ai.product_id
		WHERE ai.allocation_id = ANY($1)
		ORDER BY ai.allocation_id, p.code
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query allocation items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it AllocationItem
		if err := rows.Scan(&it.ID, &it.AllocationID, &it.ProductID,
			&it.ProductCode, &it.ProductName, &it.AllocatedQty, &it.SoldQty); err != nil {
			return fmt.Errorf("failed to scan allocation item: %w", err)
		}
		if a := byID[it.AllocationID]; a != nil {
			a.Items = append(a.Items, it)
		}
	}
	return rows.Err()
}

func (s *allocationService) ActiveDates(ctx context.Context, from, to string) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT delivery_date::text
		FROM allocations
		WHERE status <> $1 AND delivery_date >= $2 AND delivery_date <= $3
	`, AllocationReconciled, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query active dates: %w", err)
	}
	defer rows.Close()

	dates := make(map[string]bool)
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates[d] = true
	}
	return dates, rows.Err()
}

// ── Driver visible-stock projection ──────────────────────────────────────────

func (s *allocationService) VisibleStock(ctx context.Context, driverID int, asOf string) ([]DriverStock, error) {
	if asOf == "" {
		asOf = time.Now().Format("2006-01-02")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT ai.product_id, p.code, p.name, p.unit, p.unit_price,
		       SUM(GREATEST(ai.allocated_qty - ai.sold_qty, 0)) AS remaining
		FROM allocation_items ai
		JOIN allocations a ON a.id = ai.allocation_id
		JOIN products p    ON p.id = ai.product_id
		WHERE a.driver_id = $1
		  AND a.delivery_date <= $2
		  AND a.status <> $3
		GROUP BY ai.product_id, p.code, p.name, p.unit, p.unit_price
		HAVING SUM(GREATEST(ai.allocated_qty - ai.sold_qty, 0)) > 0
		ORDER BY p.code
	`, driverID, asOf, AllocationReconciled)
	if err != nil {
		return nil, fmt.Errorf("failed to query visible stock: %w", err)
	}
	defer rows.Close()

	var stock []DriverStock
	for rows.Next() {
		var ds DriverStock
		if err := rows.Scan(&ds.ProductID, &ds.ProductCode, &ds.ProductName,
			&ds.Unit, &ds.UnitPrice, &ds.Remaining); err != nil {
			return nil, fmt.Errorf("failed to scan visible stock: %w", err)
		}
		stock = append(stock, ds)
	}
	return stock, rows.Err()
}

// ── Sale recording ───────────────────────────────────────────────────────────

func (s *allocationService) RecordSale(ctx context.Context, driverID, allocationID int, input SaleInput) (*DriverSale, error) {
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("sale must have at least one item")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	var allocDriverID int
	err = tx.QueryRow(ctx,
		"SELECT status, driver_id FROM allocations WHERE id = $1 FOR UPDATE",
		allocationID,
	).Scan(&status, &allocDriverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("allocation %d: %w", allocationID, ErrAllocationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock allocation %d: %w", allocationID, err)
	}
	if status == AllocationReconciled {
		return nil, fmt.Errorf("allocation %d: %w", allocationID, ErrAlreadyReconciled)
	}
	if allocDriverID != driverID {
		return nil, fmt.Errorf("allocation %d belongs to driver %d, not %d", allocationID, allocDriverID, driverID)
	}

	total := decimal.Zero
	type pricedItem struct {
		productID int
		quantity  int
		unitPrice decimal.Decimal
	}
	var priced []pricedItem
	for _, it := range input.Items {
		if it.ProductID <= 0 || it.Quantity <= 0 {
			return nil, fmt.Errorf("invalid sale item (product %d, qty %d)", it.ProductID, it.Quantity)
		}

		// The conditional update is the oversell guard: zero rows means
		// either the product is not on this allocation or the increment
		// would push sold past allocated.
		tag, err := tx.Exec(ctx, `
			UPDATE allocation_items
			SET sold_qty = sold_qty + $1
			WHERE allocation_id = $2 AND product_id = $3 AND sold_qty + $1 <= allocated_qty
		`, it.Quantity, allocationID, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to update sold quantity for product %d: %w", it.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("product %d on allocation %d: %w", it.ProductID, allocationID, ErrExceedsAllocation)
		}

		price := it.UnitPrice
		if price.IsZero() {
			if err := tx.QueryRow(ctx,
				"SELECT unit_price FROM products WHERE id = $1", it.ProductID,
			).Scan(&price); err != nil {
				return nil, fmt.Errorf("failed to resolve price for product %d: %w", it.ProductID, err)
			}
		}
		priced = append(priced, pricedItem{it.ProductID, it.Quantity, price})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	paid := input.PaidAmount
	if paid.GreaterThan(total) {
		return nil, fmt.Errorf("paid amount %s exceeds sale total %s", paid, total)
	}
	credit := total.Sub(paid)

	sale := &DriverSale{
		IdempotencyKey: input.IdempotencyKey,
		DriverID:       driverID,
		AllocationID:   allocationID,
		CustomerID:     input.CustomerID,
		CustomerName:   input.CustomerName,
		Total:          total,
		PaidAmount:     paid,
		CreditAmount:   credit,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO driver_sales (idempotency_key, driver_id, allocation_id, customer_id, customer_name, total, paid_amount, credit_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, sold_at
	`, input.IdempotencyKey, driverID, allocationID, input.CustomerID, input.CustomerName,
		total, paid, credit,
	).Scan(&sale.ID, &sale.SoldAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Duplicate submission of the same sale; the first write won.
			// The in-progress stock updates are rolled back and the caller
			// gets the original sale back for replay-safe retries.
			existing, lookupErr := s.saleByKey(ctx, input.IdempotencyKey)
			if lookupErr != nil {
				return nil, fmt.Errorf("failed to load original sale %s: %w", input.IdempotencyKey, lookupErr)
			}
			return existing, fmt.Errorf("sale %s: %w", input.IdempotencyKey, ErrDuplicateSale)
		}
		return nil, fmt.Errorf("failed to insert sale: %w", err)
	}

	for _, pi := range priced {
		var si SaleItem
		err := tx.QueryRow(ctx, `
			INSERT INTO driver_sale_items (sale_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
			RETURNING id, sale_id, product_id, quantity, unit_price
		`, sale.ID, pi.productID, pi.quantity, pi.unitPrice).Scan(
			&si.ID, &si.SaleID, &si.ProductID, &si.Quantity, &si.UnitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert sale item: %w", err)
		}
		sale.Items = append(sale.Items, si)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE allocations SET sales_total = sales_total + $1 WHERE id = $2",
		total, allocationID,
	); err != nil {
		return nil, fmt.Errorf("failed to update allocation sales total: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit sale: %w", err)
	}
	return sale, nil
}

func (s *allocationService) GetDriverSales(ctx context.Context, driverID int, allocationID *int) ([]DriverSale, error) {
	query := `
		SELECT id, idempotency_key, driver_id, allocation_id, customer_id, customer_name,
		       total, paid_amount, credit_amount, sold_at
		FROM driver_sales
		WHERE driver_id = $1`
	args := []any{driverID}
	if allocationID != nil {
		args = append(args, *allocationID)
		query += fmt.Sprintf(" AND allocation_id = $%d", len(args))
	}
	query += " ORDER BY sold_at DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var sales []DriverSale
	for rows.Next() {
		var ds DriverSale
		if err := rows.Scan(&ds.ID, &ds.IdempotencyKey, &ds.DriverID, &ds.AllocationID,
			&ds.CustomerID, &ds.CustomerName, &ds.Total, &ds.PaidAmount, &ds.CreditAmount, &ds.SoldAt); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sales: %w", err)
	}

	for i := range sales {
		itemRows, err := s.pool.Query(ctx, `
			SELECT id, sale_id, product_id, quantity, unit_price
			FROM driver_sale_items
			WHERE sale_id = $1
			ORDER BY id
		`, sales[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to query sale items: %w", err)
		}
		for itemRows.Next() {
			var si SaleItem
			if err := itemRows.Scan(&si.ID, &si.SaleID, &si.ProductID, &si.Quantity, &si.UnitPrice); err != nil {
				itemRows.Close()
				return nil, fmt.Errorf("failed to scan sale item: %w", err)
			}
			sales[i].Items = append(sales[i].Items, si)
		}
		itemRows.Close()
		if err := itemRows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read sale items: %w", err)
		}
	}
	return sales, nil
}

// saleByKey loads a sale and its items by idempotency key.
func (s *allocationService) saleByKey(ctx context.Context, key uuid.UUID) (*DriverSale, error) {
	var sale DriverSale
	err := s.pool.QueryRow(ctx, `
		SELECT id, idempotency_key, driver_id, allocation_id, customer_id, customer_name,
		       total, paid_amount, credit_amount, sold_at
		FROM driver_sales
		WHERE idempotency_key = $1
	`, key).Scan(&sale.ID, &sale.IdempotencyKey, &sale.DriverID, &sale.AllocationID,
		&sale.CustomerID, &sale.CustomerName, &sale.Total, &sale.PaidAmount, &sale.CreditAmount, &sale.SoldAt)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price
		FROM driver_sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var si SaleItem
		if err := rows.Scan(&si.ID, &si.SaleID, &si.ProductID, &si.Quantity, &si.UnitPrice); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, si)
	}
	return &sale, rows.Err()
}
