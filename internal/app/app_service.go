package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"distro-backoffice/internal/ai"
	"distro-backoffice/internal/core"
	"distro-backoffice/internal/tracking"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAssistantUnavailable: the AI assistant is not configured (no API key).
var ErrAssistantUnavailable = errors.New("assistant not configured")

type appService struct {
	pool        *pgxpool.Pool
	users       core.UserService
	products    core.ProductService
	orders      core.OrderService
	allocations core.AllocationService
	locations   core.LocationService
	watcher     *tracking.Watcher
	agent       ai.AgentService // nil when no API key is configured
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	pool *pgxpool.Pool,
	users core.UserService,
	products core.ProductService,
	orders core.OrderService,
	allocations core.AllocationService,
	locations core.LocationService,
	watcher *tracking.Watcher,
	agent ai.AgentService,
) ApplicationService {
	return &appService{
		pool:        pool,
		users:       users,
		products:    products,
		orders:      orders,
		allocations: allocations,
		locations:   locations,
		watcher:     watcher,
		agent:       agent,
	}
}

// ── Auth ─────────────────────────────────────────────────────────────────────

func (s *appService) AuthenticateUser(ctx context.Context, username, password string) (*UserSession, error) {
	user, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return &UserSession{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, nil
}

func (s *appService) GetUser(ctx context.Context, userID int) (*UserResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserResult{User: user}, nil
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (s *appService) ListProducts(ctx context.Context) (*ProductListResult, error) {
	products, err := s.products.GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	return &ProductListResult{Products: products}, nil
}

func (s *appService) CreateProduct(ctx context.Context, req CreateProductRequest) (*ProductResult, error) {
	product, err := s.products.CreateProduct(ctx, req.Code, req.Name, req.Unit, req.Stock, req.CostPrice, req.UnitPrice)
	if err != nil {
		return nil, err
	}
	return &ProductResult{Product: product}, nil
}

func (s *appService) AdjustStock(ctx context.Context, productID, delta int) (*ProductResult, error) {
	product, err := s.products.AdjustStock(ctx, productID, delta)
	if err != nil {
		return nil, err
	}
	return &ProductResult{Product: product}, nil
}

func (s *appService) ListCustomers(ctx context.Context) (*CustomerListResult, error) {
	customers, err := s.orders.GetCustomers(ctx)
	if err != nil {
		return nil, err
	}
	return &CustomerListResult{Customers: customers}, nil
}

func (s *appService) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*CustomerResult, error) {
	customer, err := s.orders.CreateCustomer(ctx, req.Code, req.Name, req.Phone, req.Address, req.Route)
	if err != nil {
		return nil, err
	}
	return &CustomerResult{Customer: customer}, nil
}

// ── Orders ───────────────────────────────────────────────────────────────────

func (s *appService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	items := make([]core.OrderItemInput, len(req.Lines))
	for i, l := range req.Lines {
		items[i] = core.OrderItemInput{
			ProductCode: l.ProductCode,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		}
	}

	orderDate := req.OrderDate
	if orderDate == "" {
		orderDate = time.Now().Format("2006-01-02")
	}

	order, err := s.orders.CreateOrder(ctx, req.CustomerCode, orderDate, req.ExpectedDeliveryDate, items, req.Notes)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

func (s *appService) GetOrder(ctx context.Context, orderID int) (*OrderResult, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

func (s *appService) ListOrders(ctx context.Context, status string) (*OrderListResult, error) {
	orders, err := s.orders.GetOrders(ctx, status)
	if err != nil {
		return nil, err
	}
	return &OrderListResult{Orders: orders}, nil
}

func (s *appService) UpdateOrderStatus(ctx context.Context, orderID int, status string) (*OrderResult, error) {
	order, err := s.orders.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

func (s *appService) GetPendingDemand(ctx context.Context) (*PendingDemandResult, error) {
	orders, err := s.orders.GetPendingOrders(ctx)
	if err != nil {
		return nil, err
	}
	buckets := core.AggregateByDate(orders)

	products, err := s.products.GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]core.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	// Calendar dates ascending, the "unspecified" bucket last.
	sort.Slice(dates, func(i, j int) bool {
		if dates[i] == core.UnspecifiedDateBucket {
			return false
		}
		if dates[j] == core.UnspecifiedDateBucket {
			return true
		}
		return dates[i] < dates[j]
	})

	active := map[string]bool{}
	if len(dates) > 0 {
		first, last := dates[0], dates[len(dates)-1]
		if first != core.UnspecifiedDateBucket {
			if last == core.UnspecifiedDateBucket && len(dates) > 1 {
				last = dates[len(dates)-2]
			}
			active, err = s.allocations.ActiveDates(ctx, first, last)
			if err != nil {
				return nil, err
			}
		}
	}

	result := &PendingDemandResult{}
	for _, d := range dates {
		bucket := DateDemand{Date: d, Allocated: active[d]}
		productIDs := make([]int, 0, len(buckets[d]))
		for id := range buckets[d] {
			productIDs = append(productIDs, id)
		}
		sort.Ints(productIDs)
		for _, id := range productIDs {
			line := DemandLine{ProductID: id, Quantity: buckets[d][id]}
			if p, ok := byID[id]; ok {
				line.ProductCode = p.Code
				line.ProductName = p.Name
			}
			bucket.Lines = append(bucket.Lines, line)
		}
		result.Dates = append(result.Dates, bucket)
	}
	return result, nil
}

// ── Allocations ──────────────────────────────────────────────────────────────

func (s *appService) AllocateDeliveries(ctx context.Context, req AllocateRequest) (*AllocationBatchResult, error) {
	driverID, err := s.resolveDriver(ctx, req.DriverID, req.DriverUsername)
	if err != nil {
		return nil, err
	}

	// The "unspecified" bucket can contribute demand to a batch, but an
	// allocation row always belongs to a calendar date.
	realDates := make([]string, 0, len(req.Dates))
	for _, d := range req.Dates {
		if d != core.UnspecifiedDateBucket {
			realDates = append(realDates, d)
		}
	}
	if len(realDates) == 0 {
		return nil, core.ErrNoDatesSelected
	}

	orders, err := s.orders.GetPendingOrders(ctx)
	if err != nil {
		return nil, err
	}
	items := core.AggregateAcrossDates(orders, req.Dates)
	if len(items) == 0 {
		return nil, core.ErrNoProductsToAllocate
	}

	batch, err := s.allocations.Allocate(ctx, driverID, realDates, items)
	if err != nil {
		return nil, err
	}
	return &AllocationBatchResult{Batch: batch}, nil
}

func (s *appService) GetAllocation(ctx context.Context, allocationID int) (*AllocationResult, error) {
	alloc, err := s.allocations.GetAllocation(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	return &AllocationResult{Allocation: alloc}, nil
}

func (s *appService) ListAllocations(ctx context.Context, req AllocationListRequest) (*AllocationListResult, error) {
	allocations, err := s.allocations.GetAllocations(ctx, core.AllocationFilter{
		DriverID:   req.DriverID,
		FromDate:   req.FromDate,
		ToDate:     req.ToDate,
		ActiveOnly: req.ActiveOnly,
	})
	if err != nil {
		return nil, err
	}
	return &AllocationListResult{Allocations: allocations}, nil
}

func (s *appService) UnallocateDelivery(ctx context.Context, allocationID int) error {
	return s.allocations.Unallocate(ctx, allocationID)
}

func (s *appService) ReconcileDelivery(ctx context.Context, req ReconcileRequest) (*AllocationResult, error) {
	returned := make([]core.ReturnedItem, len(req.Returns))
	for i, r := range req.Returns {
		returned[i] = core.ReturnedItem{ProductID: r.ProductID, Quantity: r.Quantity}
	}
	if err := s.allocations.Reconcile(ctx, req.AllocationID, returned); err != nil {
		return nil, err
	}
	return s.GetAllocation(ctx, req.AllocationID)
}

// ── Driver stock and sales ───────────────────────────────────────────────────

func (s *appService) GetDriverStock(ctx context.Context, driverID int, asOf string) (*DriverStockResult, error) {
	if asOf == "" {
		asOf = time.Now().Format("2006-01-02")
	}
	stock, err := s.allocations.VisibleStock(ctx, driverID, asOf)
	if err != nil {
		return nil, err
	}
	return &DriverStockResult{DriverID: driverID, AsOf: asOf, Stock: stock}, nil
}

func (s *appService) RecordDriverSale(ctx context.Context, req RecordSaleRequest) (*SaleResult, error) {
	key := uuid.New()
	if req.IdempotencyKey != "" {
		parsed, err := uuid.Parse(req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("invalid idempotency key %q: %w", req.IdempotencyKey, err)
		}
		key = parsed
	}

	allocationID := req.AllocationID
	if allocationID == 0 {
		id, err := s.currentAllocationID(ctx, req.DriverID)
		if err != nil {
			return nil, err
		}
		allocationID = id
	}

	items := make([]core.SaleItemInput, len(req.Lines))
	for i, l := range req.Lines {
		items[i] = core.SaleItemInput{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		}
	}

	sale, err := s.allocations.RecordSale(ctx, req.DriverID, allocationID, core.SaleInput{
		IdempotencyKey: key,
		CustomerID:     req.CustomerID,
		CustomerName:   req.CustomerName,
		PaidAmount:     req.PaidAmount,
		Items:          items,
	})
	if errors.Is(err, core.ErrDuplicateSale) {
		return &SaleResult{Sale: sale, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &SaleResult{Sale: sale}, nil
}

func (s *appService) ListDriverSales(ctx context.Context, driverID int, allocationID *int) (*SaleListResult, error) {
	sales, err := s.allocations.GetDriverSales(ctx, driverID, allocationID)
	if err != nil {
		return nil, err
	}
	return &SaleListResult{Sales: sales}, nil
}

// ── Locations ────────────────────────────────────────────────────────────────

func (s *appService) PublishMyLocation(ctx context.Context, userID int, req PublishLocationRequest) error {
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return s.locations.PublishLocation(ctx, userID, core.Location{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		Timestamp: ts,
	})
}

func (s *appService) StopMyLocation(ctx context.Context, userID int) error {
	return s.locations.StopSharing(ctx, userID)
}

func (s *appService) ClearMyLocation(ctx context.Context, userID int) error {
	return s.locations.ClearLocation(ctx, userID)
}

func (s *appService) StaffLocations(ctx context.Context) (*tracking.Snapshot, error) {
	return s.watcher.Refresh(ctx)
}

func (s *appService) SubscribeLocations() (<-chan tracking.Snapshot, func()) {
	return s.watcher.Subscribe()
}

// DirectionsURL builds a Google Maps directions link to a worker's last
// reported position.
func (s *appService) DirectionsURL(ctx context.Context, userID int) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.Location == nil {
		return "", fmt.Errorf("user %s has no reported location", user.Username)
	}
	q := url.Values{}
	q.Set("api", "1")
	q.Set("destination", fmt.Sprintf("%f,%f", user.Location.Latitude, user.Location.Longitude))
	return "https://www.google.com/maps/dir/?" + q.Encode(), nil
}

// ── Assistant ────────────────────────────────────────────────────────────────

func (s *appService) InterpretAllocation(ctx context.Context, text string) (*AssistantResult, error) {
	if s.agent == nil {
		return nil, ErrAssistantUnavailable
	}

	drivers, err := s.fetchDrivers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch drivers: %w", err)
	}
	demand, err := s.fetchDemandSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending demand: %w", err)
	}

	proposal, err := s.agent.InterpretAllocation(ctx, text, drivers, demand)
	if err != nil {
		return nil, err
	}
	return &AssistantResult{Proposal: proposal}, nil
}

func (s *appService) ExecuteAllocationProposal(ctx context.Context, proposal core.AllocationProposal) (*AllocationBatchResult, error) {
	proposal.Normalize()
	if err := proposal.Validate(); err != nil {
		return nil, err
	}

	driverID, err := s.resolveDriver(ctx, 0, proposal.DriverUsername)
	if err != nil {
		return nil, err
	}

	items := make([]core.AggregatedItem, 0, len(proposal.Items))
	for _, it := range proposal.Items {
		product, err := s.products.GetProductByCode(ctx, it.ProductCode)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", it.ProductCode, err)
		}
		items = append(items, core.AggregatedItem{ProductID: product.ID, Quantity: it.Quantity})
	}

	realDates := make([]string, 0, len(proposal.Dates))
	for _, d := range proposal.Dates {
		if d != core.UnspecifiedDateBucket {
			realDates = append(realDates, d)
		}
	}
	if len(realDates) == 0 {
		return nil, core.ErrNoDatesSelected
	}

	batch, err := s.allocations.Allocate(ctx, driverID, realDates, items)
	if err != nil {
		return nil, err
	}
	return &AllocationBatchResult{Batch: batch}, nil
}

// ── private helpers ──────────────────────────────────────────────────────────

// resolveDriver turns an id or username into a verified driver id.
func (s *appService) resolveDriver(ctx context.Context, id int, username string) (int, error) {
	if id > 0 {
		return id, nil
	}
	if username == "" {
		return 0, fmt.Errorf("no driver specified")
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	if user.Role != core.RoleDriver {
		return 0, fmt.Errorf("user %s is not a driver", username)
	}
	return user.ID, nil
}

// currentAllocationID finds the driver's newest active allocation dated
// today or earlier.
func (s *appService) currentAllocationID(ctx context.Context, driverID int) (int, error) {
	today := time.Now().Format("2006-01-02")
	allocations, err := s.allocations.GetAllocations(ctx, core.AllocationFilter{
		DriverID:   driverID,
		ToDate:     today,
		ActiveOnly: true,
	})
	if err != nil {
		return 0, err
	}
	if len(allocations) == 0 {
		return 0, fmt.Errorf("driver %d has no active allocation: %w", driverID, core.ErrAllocationNotFound)
	}
	// GetAllocations orders by delivery date descending.
	return allocations[0].ID, nil
}

// fetchDrivers returns active drivers as a formatted string for the AI prompt.
func (s *appService) fetchDrivers(ctx context.Context) (string, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT username FROM users WHERE role = $1 AND is_active = true ORDER BY username",
		core.RoleDriver,
	)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return "", err
		}
		lines = append(lines, "- "+username)
	}
	return strings.Join(lines, "\n"), rows.Err()
}

// fetchDemandSummary returns pending demand as a formatted string for the AI
// prompt: one line per date bucket and product.
func (s *appService) fetchDemandSummary(ctx context.Context) (string, error) {
	demand, err := s.GetPendingDemand(ctx)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, bucket := range demand.Dates {
		note := ""
		if bucket.Allocated {
			note = " (already allocated)"
		}
		lines = append(lines, fmt.Sprintf("%s%s:", bucket.Date, note))
		for _, l := range bucket.Lines {
			lines = append(lines, fmt.Sprintf("  - %s %s x%d", l.ProductCode, l.ProductName, l.Quantity))
		}
	}
	if len(lines) == 0 {
		return "(no pending orders)", nil
	}
	return strings.Join(lines, "\n"), nil
}
