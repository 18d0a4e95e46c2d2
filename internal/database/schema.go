package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Constraint names referenced by repositories when classifying unique
// violations.
const (
	OrdersOrderNumberKey = "orders_order_number_key"
	OrdersPaymentIDKey   = "orders_payment_id_key"
	CartUserProductKey   = "unique_user_product"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		price NUMERIC(10, 2) NOT NULL CHECK (price >= 0),
		category VARCHAR(100),
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		image VARCHAR(500),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL,
		order_number VARCHAR(50) NOT NULL,
		total_amount NUMERIC(10, 2) NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'pending',
		shipping_address TEXT NOT NULL,
		payment_method VARCHAR(50),
		payment_id VARCHAR(255),
		provider_order_id VARCHAR(255),
		payment_status VARCHAR(50) NOT NULL DEFAULT 'pending',
		delivery_date TIMESTAMPTZ,
		delivery_phone VARCHAR(20),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT ` + OrdersOrderNumberKey + ` UNIQUE (order_number),
		CONSTRAINT ` + OrdersPaymentIDKey + ` UNIQUE (payment_id)
	)`,
	`CREATE INDEX IF NOT EXISTS orders_user_id_created_at_idx ON orders (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id SERIAL PRIMARY KEY,
		order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id INTEGER REFERENCES products(id) ON DELETE SET NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		price NUMERIC(10, 2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id SERIAL PRIMARY KEY,
		user_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity INTEGER NOT NULL DEFAULT 1 CHECK (quantity > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT ` + CartUserProductKey + ` UNIQUE (user_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS address (
		"addressID" SERIAL PRIMARY KEY,
		"userID" INT NOT NULL,
		"fullName" TEXT,
		email TEXT,
		phone TEXT,
		"addressLine1" TEXT,
		"addressLine2" TEXT,
		city TEXT,
		state TEXT,
		"postalCode" TEXT,
		country TEXT,
		"createdAt" TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the tables used by the storefront when they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
