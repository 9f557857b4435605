package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// OrderService manages customer orders. The allocation engine consumes
// orders read-only through GetPendingOrders; status transitions happen in
// the order-entry and delivery flows.
type OrderService interface {
	// Master data
	CreateCustomer(ctx context.Context, code, name, phone, address, route string) (*Customer, error)
	GetCustomers(ctx context.Context) ([]Customer, error)

	// Order lifecycle
	CreateOrder(ctx context.Context, customerCode, orderDate, expectedDeliveryDate string, items []OrderItemInput, notes string) (*Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int, status string) (*Order, error)

	// Queries
	GetOrder(ctx context.Context, orderID int) (*Order, error)
	GetOrders(ctx context.Context, status string) ([]Order, error)
	// GetPendingOrders returns all Pending orders with items loaded — the
	// input to delivery aggregation.
	GetPendingOrders(ctx context.Context) ([]Order, error)
}

type orderService struct {
	pool *pgxpool.Pool
}

func NewOrderService(pool *pgxpool.Pool) OrderService {
	return &orderService{pool: pool}
}

// ── Master data ──────────────────────────────────────────────────────────────

func (s *orderService) CreateCustomer(ctx context.Context, code, name, phone, address, route string) (*Customer, error) {
	var c Customer
	err := s.pool.QueryRow(ctx, `
		INSERT INTO customers (code, name, phone, address, route)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, code, name, phone, address, route, created_at
	`, code, name, phone, address, route).Scan(
		&c.ID, &c.Code, &c.Name, &c.Phone, &c.Address, &c.Route, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return &c, nil
}

func (s *orderService) GetCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, phone, address, route, created_at
		FROM customers
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Phone, &c.Address, &c.Route, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// ── Order lifecycle ──────────────────────────────────────────────────────────

func (s *orderService) CreateOrder(ctx context.Context, customerCode, orderDate, expectedDeliveryDate string, items []OrderItemInput, notes string) (*Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("order must have at least one item")
	}
	if orderDate == "" {
		return nil, fmt.Errorf("order date is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var customerID int
	var customerName string
	err = tx.QueryRow(ctx,
		"SELECT id, name FROM customers WHERE code = $1", customerCode,
	).Scan(&customerID, &customerName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer code %s not found", customerCode)
		}
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	type resolvedItem struct {
		productID int
		quantity  int
		unitPrice decimal.Decimal
	}
	var resolved []resolvedItem
	total := decimal.Zero
	for i, input := range items {
		if input.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: quantity must be positive", i+1)
		}
		var productID int
		var defaultPrice decimal.Decimal
		err = tx.QueryRow(ctx,
			"SELECT id, unit_price FROM products WHERE code = $1 AND is_active = true",
			input.ProductCode,
		).Scan(&productID, &defaultPrice)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("product code %s not found", input.ProductCode)
			}
			return nil, fmt.Errorf("failed to resolve product %s: %w", input.ProductCode, err)
		}
		price := input.UnitPrice
		if price.IsZero() {
			price = defaultPrice
		}
		resolved = append(resolved, resolvedItem{productID, input.Quantity, price})
		total = total.Add(price.Mul(decimal.NewFromInt(int64(input.Quantity))))
	}

	var expected *string
	if expectedDeliveryDate != "" {
		nd := normalizeDate(expectedDeliveryDate)
		if nd == "" {
			return nil, fmt.Errorf("invalid expected delivery date %q", expectedDeliveryDate)
		}
		expected = &nd
	}

	order := &Order{CustomerID: customerID, CustomerName: customerName}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (customer_id, order_date, expected_delivery_date, total, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, order_number, status, order_date::text, COALESCE(expected_delivery_date::text, ''), total, notes, created_at
	`, customerID, orderDate, expected, total, notes).Scan(
		&order.ID, &order.OrderNumber, &order.Status, &order.OrderDate,
		&order.ExpectedDeliveryDate, &order.Total, &order.Notes, &order.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	for _, ri := range resolved {
		var item OrderItem
		err := tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)
			RETURNING id, order_id, product_id, quantity, unit_price
		`, order.ID, ri.productID, ri.quantity, ri.unitPrice).Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return order, nil
}

// validOrderTransitions: Pending may ship or cancel; Shipped may deliver.
var validOrderTransitions = map[string][]string{
	OrderPending: {OrderShipped, OrderCancelled},
	OrderShipped: {OrderDelivered},
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, orderID int, status string) (*Order, error) {
	current, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range validOrderTransitions[current.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("cannot transition order %d from %s to %s", orderID, current.Status, status)
	}

	if _, err := s.pool.Exec(ctx,
		"UPDATE orders SET status = $1 WHERE id = $2", status, orderID,
	); err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	return s.GetOrder(ctx, orderID)
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *orderService) GetOrder(ctx context.Context, orderID int) (*Order, error) {
	var o Order
	err := s.pool.QueryRow(ctx, `
		SELECT o.id, o.order_number, o.customer_id, c.name, o.status,
		       o.order_date::text, COALESCE(o.expected_delivery_date::text, ''),
		       o.total, o.notes, o.created_at
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1
	`, orderID).Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName, &o.Status,
		&o.OrderDate, &o.ExpectedDeliveryDate, &o.Total, &o.Notes, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %d not found", orderID)
		}
		return nil, fmt.Errorf("failed to fetch order %d: %w", orderID, err)
	}

	if err := s.loadOrderItems(ctx, []*Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *orderService) GetOrders(ctx context.Context, status string) ([]Order, error) {
	query := `
		SELECT o.id, o.order_number, o.customer_id, c.name, o.status,
		       o.order_date::text, COALESCE(o.expected_delivery_date::text, ''),
		       o.total, o.notes, o.created_at
		FROM orders o
		JOIN customers c ON c.id = o.customer_id`
	var args []any
	if status != "" {
		args = append(args, status)
		query += " WHERE o.status = $1"
	}
	query += " ORDER BY o.created_at DESC, o.id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerName, &o.Status,
			&o.OrderDate, &o.ExpectedDeliveryDate, &o.Total, &o.Notes, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	ptrs := make([]*Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := s.loadOrderItems(ctx, ptrs); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *orderService) GetPendingOrders(ctx context.Context) ([]Order, error) {
	return s.GetOrders(ctx, OrderPending)
}

func (s *orderService) loadOrderItems(ctx context.Context, orders []*Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int, len(orders))
	byID := make(map[int]*Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o := byID[it.OrderID]; o != nil {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}
