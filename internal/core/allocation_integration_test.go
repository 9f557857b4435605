package core_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"distro-backoffice/internal/core"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE driver_sale_items, driver_sales, allocation_returns, allocation_items,
			allocations, order_items, orders, products, customers, users
			RESTART IDENTITY CASCADE;

		INSERT INTO users (id, username, email, password_hash, role) VALUES
		(1, 'admin',  'admin@test',  'x', 'Admin'),
		(2, 'kumar',  'kumar@test',  'x', 'Driver'),
		(3, 'silva',  'silva@test',  'x', 'Driver'),
		(4, 'nimal',  'nimal@test',  'x', 'Sales');
		SELECT setval('users_id_seq', 10);

		INSERT INTO products (id, code, name, unit, stock, cost_price, unit_price) VALUES
		(1, 'P001', 'Rice 5kg',   'bag',    500, 900.00,  1200.00),
		(2, 'P002', 'Flour 1kg',  'packet', 300, 150.00,  220.00),
		(3, 'P003', 'Sugar 1kg',  'packet', 400, 180.00,  260.00);
		SELECT setval('products_id_seq', 10);

		INSERT INTO customers (id, code, name) VALUES
		(1, 'C001', 'City Mart'),
		(2, 'C002', 'Lake Stores');
		SELECT setval('customers_id_seq', 10);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

func TestAllocationService_AllocateAndVisibleStock(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewAllocationService(pool)
	ctx := context.Background()

	// Allocate {P1:12, P2:8} to driver kumar for 2025-06-01.
	batch, err := svc.Allocate(ctx, 2, []string{"2025-06-01"}, []core.AggregatedItem{
		{ProductID: 1, Quantity: 12},
		{ProductID: 2, Quantity: 8},
	})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(batch.Created) != 1 || len(batch.SkippedDates) != 0 {
		t.Fatalf("expected 1 created / 0 skipped, got %d / %d", len(batch.Created), len(batch.SkippedDates))
	}
	alloc := batch.Created[0]
	if alloc.Status != core.AllocationAllocated {
		t.Errorf("expected status Allocated, got %s", alloc.Status)
	}
	if alloc.DriverName != "kumar" {
		t.Errorf("expected denormalized driver name kumar, got %q", alloc.DriverName)
	}
	if len(alloc.Items) != 2 {
		t.Fatalf("expected 2 allocation items, got %d", len(alloc.Items))
	}

	// Same date for a different driver is rejected: the date is taken.
	_, err = svc.Allocate(ctx, 3, []string{"2025-06-01"}, []core.AggregatedItem{{ProductID: 1, Quantity: 5}})
	if !errors.Is(err, core.ErrAllAlreadyAllocated) {
		t.Errorf("expected ErrAllAlreadyAllocated for duplicate date, got %v", err)
	}

	// Visible stock before any sale.
	stock, err := svc.VisibleStock(ctx, 2, "2025-06-01")
	if err != nil {
		t.Fatalf("VisibleStock failed: %v", err)
	}
	if len(stock) != 2 || stock[0].Remaining != 12 || stock[1].Remaining != 8 {
		t.Fatalf("unexpected visible stock: %+v", stock)
	}

	// After kumar sells P1:4, visible stock for P1 is 8.
	_, err = svc.RecordSale(ctx, 2, alloc.ID, core.SaleInput{
		IdempotencyKey: uuid.New(),
		CustomerName:   "City Mart",
		PaidAmount:     decimal.NewFromInt(4800),
		Items:          []core.SaleItemInput{{ProductID: 1, Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}
	stock, err = svc.VisibleStock(ctx, 2, "2025-06-01")
	if err != nil {
		t.Fatalf("VisibleStock failed: %v", err)
	}
	if stock[0].ProductCode != "P001" || stock[0].Remaining != 8 {
		t.Errorf("expected P001 remaining 8 after selling 4, got %+v", stock[0])
	}
}

func TestAllocationService_Allocate_Validation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewAllocationService(pool)
	ctx := context.Background()

	if _, err := svc.Allocate(ctx, 2, nil, []core.AggregatedItem{{ProductID: 1, Quantity: 1}}); !errors.Is(err, core.ErrNoDatesSelected) {
		t.Errorf("expected ErrNoDatesSelected, got %v", err)
	}
	if _, err := svc.Allocate(ctx, 2, []string{"2025-06-01"}, nil); !errors.Is(err, core.ErrNoProductsToAllocate) {
		t.Errorf("expected ErrNoProductsToAllocate, got %v", err)
	}
	if _, err := svc.Allocate(ctx, 4, []string{"2025-06-01"}, []core.AggregatedItem{{ProductID: 1, Quantity: 1}}); err == nil {
		t.Error("expected error allocating to a non-driver user")
	}
}

func TestAllocationService_PartialBatchSkipsAllocatedDates(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewAllocationService(pool)
	ctx := context.Background()
	items := []core.AggregatedItem{{ProductID: 1, Quantity: 10}}

	if _, err := svc.Allocate(ctx, 2, []string{"2025-06-01"}, items); err != nil {
		t.Fatalf("seed Allocate failed: %v", err)
	}

	// Batch over a taken date plus two free ones: taken date is skipped,
	// the rest are created, each carrying the full combined item list.
	batch, err := svc.Allocate(ctx, 3, []string{"2025-06-01", "2025-06-02", "2025-06-03"}, items)
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if len(batch.Created) != 2 {
		t.Errorf("expected 2 created, got %d", len(batch.Created))
	}
	if len(batch.SkippedDates) != 1 || batch.SkippedDates[0] != "2025-06-01" {
		t.Errorf("expected skipped [2025-06-01], got %v", batch.SkippedDates)
	}
	for _, a := range batch.Created {
		if len(a.Items) != 1 || a.Items[0].AllocatedQty != 10 {
			t.Errorf("allocation %s missing the combined item list: %+v", a.DeliveryDate, a.Items)
		}
	}

	// Timestamped variant of a taken date normalizes to the same calendar
	// date and is rejected rather than duplicated.
	_, err = svc.Allocate(ctx, 3, []string{"2025-06-02T08:00:00Z"}, items)
	if !errors.Is(err, core.ErrAllAlreadyAllocated) {
		t.Errorf("expected ErrAllAlreadyAllocated for timestamped duplicate, got %v", err)
	}
}

func TestAllocationService_ConcurrentAllocateSingleWinner(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewAllocationService(pool)
	ctx := context.Background()
	items := []core.AggregatedItem{{ProductID: 1, Quantity: 5}}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Allocate(ctx, 2, []string{"2025-07-01"}, items)
		}(i)
	}
	wg.Wait()

	winners, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, core.ErrAllAlreadyAllocated):
			conflicts++
		default:
			t.Errorf("unexpected error from concurrent Allocate: %v", err)
		}
	}
	if winners != 1 || conflicts != attempts-1 {
		t.Errorf("expected exactly 1 winner and %d conflicts, got %d / %d", attempts-1, winners, conflicts)
	}

	active, err := svc.ActiveDates(ctx, "2025-07-01", "2025-07-01")
	if err != nil {
		t.Fatalf("ActiveDates failed: %v", err)
	}
	if !active["2025-07-01"] {
		t.Error("expected 2025-07-01 to be marked active")
	}
}

func TestAllocationService_OversellRejected(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewAllocationService(pool)
	ctx := context.Background()

	batch, err := svc.Allocate(ctx, 2, []string{"2025-06-01"}, []core.AggregatedItem{{ProductID: 1, Quantity: 10}})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	allocID := batch.Created[0].ID

	// Sell 7 of 10.
	if _, err := svc.RecordSale(ctx, 2, allocID, core.SaleInput{
		IdempotencyKey: uuid.New(),
		Items:          []core.SaleItemInput{{ProductID: 1, Quantity: 7}},
	}); err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	// 4 more would exceed the allocation: rejected, not clamped.
	_, err = svc.RecordSale(ctx, 2, allocID, core.SaleInput{
		IdempotencyKey: uuid.New(),
		Items:          []core.SaleItemInput{{ProductID: 1, Quantity: 4}},
	})
	if !errors.Is(err, core.ErrExceedsAllocation) {
		t.Fatalf("expected ErrExceedsAllocation, got %v", err)
	}

	// The rejected sale must not have moved sold_qty.
	alloc, err := svc.GetAllocation(ctx, allocID)
	if err != nil {
		t.Fatalf("GetAllocation failed: %v", err)
	}
	if alloc.Items[0].SoldQty != 7 {
		t.Errorf("expected sold_qty 7 after rejected oversell, got %d", alloc.Items[0].SoldQty)
	}

	// The remaining 3 still sell fine.
	if _, err := svc.RecordSale(ctx, 2, allocID, core.SaleInput{
		IdempotencyKey: uuid.New(),
		Items:          []core.SaleItemInput{{ProductID: 1, Quantity: 3}},
	}); err != nil {
		t.Fatalf("RecordSale of remaining stock failed: %v", err)
	}

	// Fully sold product disappears from visible stock.
	stock, err := svc.VisibleStock(ctx, 2, "2025-06-01")
	if err != nil {
		t.Fatalf("VisibleStock failed: %v", err)
	}
	if len(stock) != 0 {
		t.Errorf("expected empty visible stock after selling out, got %+v", stock)
	}
}

func TestAllocationService_SaleRecordsPaymentSplit(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewAllocationService(pool)
	ctx := context.Background()

	batch, err := svc.Allocate(ctx, 2, []string{"2025-06-01"}, []core.AggregatedItem{{ProductID: 2, Quantity: 20}})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	allocID := batch.Created[0].ID

	customerID := 1
	// 10 × 220.00 = 2200.00, of which 1500 paid now and 700 on credit.
	sale, err := svc.RecordSale(ctx, 2, allocID, core.SaleInput{
		IdempotencyKey: uuid.New(),
		CustomerID:     &customerID,
		CustomerName:   "City Mart",
		PaidAmount:     decimal.NewFromInt(1500),
		Items:          []core.SaleItemInput{{ProductID: 2, Quantity: 10}},
	})
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}
	if !sale.Total.Equal(decimal.NewFromInt(2200)) {
		t.Errorf("expected total 2200, got %s", sale.Total)
	}
	if !sale.CreditAmount.Equal(decimal.NewFromInt(700)) {
		t.Errorf("expected credit 700, got %s", sale.CreditAmount)
	}

	// Paying more than the total is rejected.
	_, err = svc.RecordSale(ctx, 2, allocID, core.SaleInput{
		IdempotencyKey: uuid.New(),
		PaidAmount:     decimal.NewFromInt(99999),
		Items:          []core.SaleItemInput{{ProductID: 2, Quantity: 1}},
	})
	if err == nil {
		t.Error("expected error when paid amount exceeds total")
	}

	// Cumulative sales total lands on the allocation header.
	alloc, err := svc.GetAllocation(ctx, allocID)
	if err != nil {
		t.Fatalf("GetAllocation failed: %v", err)
	}
	if !alloc.SalesTotal.Equal(decimal.NewFromInt(2200)) {
		t.Errorf("expected allocation sales_total 2200, got %s", alloc.SalesTotal)
	}

	sales, err := svc.GetDriverSales(ctx, 2, &allocID)
	if err != nil {
		t.Fatalf("GetDriverSales failed: %v", err)
	}
	if len(sales) != 1 || len(sales[0].Items) != 1 {
		t.Fatalf("expected 1 sale with 1 item, got %+v", sales)
	}
}

func TestAllocationService_VisibleStockSumsAcrossDates(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewAllocationService(pool)
	ctx := context.Background()

	// A1(d1, P1 allocated=10) and A2(d2, P1 allocated=5), both active.
	b1, err := svc.Allocate(ctx, 2, []string{"2025-06-01"}, []core.AggregatedItem{{ProductID: 1, Quantity: 10}})
	if err != nil {
		t.Fatalf("Allocate d1 failed: %v", err)
	}
	if _, err := svc.Allocate(ctx, 2, []string{"2025-06-02"}, []core.AggregatedItem{{ProductID: 1, Quantity: 5}}); err != nil {
		t.Fatalf("Allocate d2 failed: %v", err)
	}

	// Sell 3 against A1 → visible = (10−3)+(5−0) = 12.
	if _, err := svc.RecordSale(ctx, 2, b1.Created[0].ID, core.SaleInput{
		IdempotencyKey: uuid.New(),
		Items:          []core.SaleItemInput{{ProductID: 1, Quantity: 3}},
	}); err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	stock, err := svc.VisibleStock(ctx, 2, "2025-06-02")
	if err != nil {
		t.Fatalf("VisibleStock failed: %v", err)
	}
	if len(stock) != 1 || stock[0].Remaining != 12 {
		t.Fatalf("expected remaining 12 across both allocations, got %+v", stock)
	}

	// As of d1, the d2 allocation does not count yet.
	stock, err = svc.VisibleStock(ctx, 2, "2025-06-01")
	if err != nil {
		t.Fatalf("VisibleStock failed: %v", err)
	}
	if len(stock) != 1 || stock[0].Remaining != 7 {
		t.Fatalf("expected remaining 7 as of d1, got %+v", stock)
	}
}

func TestAllocationService_ReconcileFreezesAndExcludes(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewAllocationService(pool)
	ctx := context.Background()

	batch, err := svc.Allocate(ctx, 2, []string{"2025-06-01"}, []core.AggregatedItem{{ProductID: 1, Quantity: 10}})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	allocID := batch.Created[0].ID

	if _, err := svc.RecordSale(ctx, 2, allocID, core.SaleInput{
		IdempotencyKey: uuid.New(),
		Items:          []core.SaleItemInput{{ProductID: 1, Quantity: 6}},
	}); err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	// Returning more than the 4 remaining is rejected.
	err = svc.Reconcile(ctx, allocID, []core.ReturnedItem{{ProductID: 1, Quantity: 5}})
	if !errors.Is(err, core.ErrReturnExceedsRemaining) {
		t.Errorf("expected ErrReturnExceedsRemaining, got %v", err)
	}

	if err := svc.Reconcile(ctx, allocID, []core.ReturnedItem{{ProductID: 1, Quantity: 4}}); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	alloc, err := svc.GetAllocation(ctx, allocID)
	if err != nil {
		t.Fatalf("GetAllocation failed: %v", err)
	}
	if alloc.Status != core.AllocationReconciled || alloc.ReconciledAt == nil {
		t.Errorf("expected Reconciled with timestamp, got %+v", alloc)
	}
	if len(alloc.Returns) != 1 || alloc.Returns[0].Quantity != 4 {
		t.Errorf("expected returned P1:4, got %+v", alloc.Returns)
	}

	// Frozen: no more sales, no second reconcile, no unallocate.
	if _, err := svc.RecordSale(ctx, 2, allocID, core.SaleInput{
		IdempotencyKey: uuid.New(),
		Items:          []core.SaleItemInput{{ProductID: 1, Quantity: 1}},
	}); !errors.Is(err, core.ErrAlreadyReconciled) {
		t.Errorf("expected ErrAlreadyReconciled on sale, got %v", err)
	}
	if err := svc.Reconcile(ctx, allocID, nil); !errors.Is(err, core.ErrAlreadyReconciled) {
		t.Errorf("expected ErrAlreadyReconciled on re-reconcile, got %v", err)
	}
	if err := svc.Unallocate(ctx, allocID); !errors.Is(err, core.ErrAlreadyReconciled) {
		t.Errorf("expected ErrAlreadyReconciled on unallocate, got %v", err)
	}

	// Excluded from visible stock and from the active-date marker.
	stock, err := svc.VisibleStock(ctx, 2, "2025-06-01")
	if err != nil {
		t.Fatalf("VisibleStock failed: %v", err)
	}
	if len(stock) != 0 {
		t.Errorf("reconciled allocation leaked into visible stock: %+v", stock)
	}
	active, err := svc.ActiveDates(ctx, "2025-06-01", "2025-06-01")
	if err != nil {
		t.Fatalf("ActiveDates failed: %v", err)
	}
	if active["2025-06-01"] {
		t.Error("reconciled allocation still marks its date active")
	}

	// The date is free again for a fresh allocation.
	if _, err := svc.Allocate(ctx, 3, []string{"2025-06-01"}, []core.AggregatedItem{{ProductID: 2, Quantity: 5}}); err != nil {
		t.Errorf("expected date to be reallocatable after reconciliation, got %v", err)
	}
}

func TestAllocationService_Unallocate(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	svc := core.NewAllocationService(pool)
	ctx := context.Background()

	batch, err := svc.Allocate(ctx, 2, []string{"2025-06-01"}, []core.AggregatedItem{{ProductID: 1, Quantity: 10}})
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	allocID := batch.Created[0].ID

	if err := svc.Unallocate(ctx, allocID); err != nil {
		t.Fatalf("Unallocate failed: %v", err)
	}
	if _, err := svc.GetAllocation(ctx, allocID); !errors.Is(err, core.ErrAllocationNotFound) {
		t.Errorf("expected ErrAllocationNotFound after unallocate, got %v", err)
	}
	if err := svc.Unallocate(ctx, allocID); !errors.Is(err, core.ErrAllocationNotFound) {
		t.Errorf("expected ErrAllocationNotFound on double unallocate, got %v", err)
	}

	// Visible stock for the driver is empty again.
	stock, err := svc.VisibleStock(ctx, 2, "2025-06-01")
	if err != nil {
		t.Fatalf("VisibleStock failed: %v", err)
	}
	if len(stock) != 0 {
		t.Errorf("expected empty visible stock after unallocate, got %+v", stock)
	}
}
