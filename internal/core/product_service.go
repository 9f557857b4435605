package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ProductService manages the product catalog and warehouse stock. Warehouse
// stock is the non-driver view; drivers see allocation-derived stock via
// AllocationService.VisibleStock.
type ProductService interface {
	CreateProduct(ctx context.Context, code, name, unit string, stock int, costPrice, unitPrice decimal.Decimal) (*Product, error)
	GetProducts(ctx context.Context) ([]Product, error)
	GetProductByCode(ctx context.Context, code string) (*Product, error)
	// AdjustStock applies a signed delta to warehouse stock, rejecting
	// adjustments that would take stock negative.
	AdjustStock(ctx context.Context, productID, delta int) (*Product, error)
}

type productService struct {
	pool *pgxpool.Pool
}

func NewProductService(pool *pgxpool.Pool) ProductService {
	return &productService{pool: pool}
}

func (s *productService) CreateProduct(ctx context.Context, code, name, unit string, stock int, costPrice, unitPrice decimal.Decimal) (*Product, error) {
	if stock < 0 {
		return nil, fmt.Errorf("initial stock cannot be negative")
	}
	var p Product
	err := s.pool.QueryRow(ctx, `
		INSERT INTO products (code, name, unit, stock, cost_price, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, code, name, unit, stock, cost_price, unit_price, is_active, created_at
	`, code, name, unit, stock, costPrice, unitPrice).Scan(
		&p.ID, &p.Code, &p.Name, &p.Unit, &p.Stock, &p.CostPrice, &p.UnitPrice, &p.IsActive, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return &p, nil
}

func (s *productService) GetProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, unit, stock, cost_price, unit_price, is_active, created_at
		FROM products
		WHERE is_active = true
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.Stock,
			&p.CostPrice, &p.UnitPrice, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *productService) GetProductByCode(ctx context.Context, code string) (*Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, unit, stock, cost_price, unit_price, is_active, created_at
		FROM products
		WHERE code = $1
	`, code).Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.Stock,
		&p.CostPrice, &p.UnitPrice, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product code %s not found", code)
		}
		return nil, fmt.Errorf("failed to fetch product %s: %w", code, err)
	}
	return &p, nil
}

func (s *productService) AdjustStock(ctx context.Context, productID, delta int) (*Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $1
		WHERE id = $2 AND stock + $1 >= 0
		RETURNING id, code, name, unit, stock, cost_price, unit_price, is_active, created_at
	`, delta, productID).Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.Stock,
		&p.CostPrice, &p.UnitPrice, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("stock adjustment of %d rejected for product %d", delta, productID)
		}
		return nil, fmt.Errorf("failed to adjust stock: %w", err)
	}
	return &p, nil
}
