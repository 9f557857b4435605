// seed-demo is a one-shot tool that loads a small demo dataset: users for
// every role, a product catalog, customers on two routes, and a handful of
// pending orders spread across delivery dates.
//
// Usage: go run ./cmd/seed-demo
package main

import (
	"context"
	"log"
	"os"

	"distro-backoffice/internal/core"
	"distro-backoffice/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	log.Println("Seeding users...")
	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "changeme"
	}
	hash := core.HashPassword(password)
	_, err = tx.Exec(ctx, `
		INSERT INTO users (username, email, password_hash, role)
		VALUES
		  ('admin',  'admin@example.test',  $1, 'Admin'),
		  ('perera', 'perera@example.test', $1, 'Manager'),
		  ('kumar',  'kumar@example.test',  $1, 'Driver'),
		  ('silva',  'silva@example.test',  $1, 'Driver'),
		  ('nimal',  'nimal@example.test',  $1, 'Sales')
		ON CONFLICT (username) DO UPDATE
		  SET email = EXCLUDED.email,
		      role  = EXCLUDED.role;
	`, hash)
	if err != nil {
		log.Fatalf("Failed to seed users: %v", err)
	}

	log.Println("Seeding product catalog...")
	_, err = tx.Exec(ctx, `
		INSERT INTO products (code, name, unit, stock, cost_price, unit_price)
		VALUES
		  ('P001', 'Rice 5kg',           'bag',    500, 950.00, 1200.00),
		  ('P002', 'Wheat Flour 1kg',    'packet', 800, 180.00,  240.00),
		  ('P003', 'Sunflower Oil 1L',   'bottle', 300, 520.00,  690.00),
		  ('P004', 'Sugar 1kg',          'packet', 600, 210.00,  280.00),
		  ('P005', 'Full Cream Milk 1L', 'carton', 400, 340.00,  450.00)
		ON CONFLICT (code) DO UPDATE
		  SET name       = EXCLUDED.name,
		      unit       = EXCLUDED.unit,
		      cost_price = EXCLUDED.cost_price,
		      unit_price = EXCLUDED.unit_price;
	`)
	if err != nil {
		log.Fatalf("Failed to seed products: %v", err)
	}

	log.Println("Seeding customers...")
	_, err = tx.Exec(ctx, `
		INSERT INTO customers (code, name, phone, address, route)
		VALUES
		  ('C001', 'Jaffna Central Stores', '021-2221111', '12 Hospital Rd, Jaffna',     'north'),
		  ('C002', 'Nallur Mini Market',    '021-2223344', '8 Temple Rd, Nallur',        'north'),
		  ('C003', 'Chavakachcheri Foods',  '021-2227788', '45 Kandy Rd, Chavakachcheri','east'),
		  ('C004', 'Point Pedro Traders',   '021-2229900', '3 Beach Rd, Point Pedro',    'east')
		ON CONFLICT (code) DO UPDATE
		  SET name    = EXCLUDED.name,
		      phone   = EXCLUDED.phone,
		      address = EXCLUDED.address,
		      route   = EXCLUDED.route;
	`)
	if err != nil {
		log.Fatalf("Failed to seed customers: %v", err)
	}

	log.Println("Seeding pending orders...")
	// Tomorrow and the day after get scheduled demand; one order has no
	// expected date and lands in the "unspecified" bucket.
	_, err = tx.Exec(ctx, `
		WITH new_orders AS (
			INSERT INTO orders (customer_id, status, order_date, expected_delivery_date, notes)
			SELECT c.id, 'Pending', current_date, d.expected, d.note
			FROM (VALUES
				('C001', current_date + 1, 'morning drop'),
				('C002', current_date + 1, ''),
				('C003', current_date + 2, ''),
				('C004', NULL::date,       'call before delivery')
			) AS d(code, expected, note)
			JOIN customers c ON c.code = d.code
			WHERE NOT EXISTS (
				SELECT 1 FROM orders o WHERE o.customer_id = c.id AND o.status = 'Pending'
			)
			RETURNING id
		)
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		SELECT o.id, p.id, i.qty, p.unit_price
		FROM new_orders o
		CROSS JOIN (VALUES ('P001', 10), ('P002', 24), ('P003', 6)) AS i(code, qty)
		JOIN products p ON p.code = i.code;
	`)
	if err != nil {
		log.Fatalf("Failed to seed orders: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	log.Println("Demo data seeded successfully.")
}
