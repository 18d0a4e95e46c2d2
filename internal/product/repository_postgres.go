package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wichananm65/storefront-backend/internal/database"
)

type PostgresRepository struct {
	db *sql.DB
}

const (
	productColumns = `id, name, COALESCE(description, ''), price, COALESCE(category, ''), stock, COALESCE(image, ''), created_at, updated_at`

	listProductsQuery   = `SELECT ` + productColumns + ` FROM products ORDER BY id`
	getProductByIDQuery = `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	updateProductQuery  = `
		UPDATE products
		SET price = COALESCE($1, price),
			stock = COALESCE($2, stock),
			updated_at = NOW()
		WHERE id = $3
		RETURNING ` + productColumns
	decreaseStockQuery = `
		UPDATE products
		SET stock = stock - $1,
			updated_at = NOW()
		WHERE id = $2 AND stock >= $1
	`
	productExistsQuery = `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (Product, error) {
	var p Product
	err := s.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Stock, &p.Image, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *PostgresRepository) List(ctx context.Context) ([]Product, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, listProductsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int) (Product, error) {
	p, err := scanProduct(database.Conn(ctx, r.db).QueryRowContext(ctx, getProductByIDQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *PostgresRepository) Update(ctx context.Context, id int, patch Patch) (Product, error) {
	var price sql.NullFloat64
	if patch.Price != nil {
		price = sql.NullFloat64{Float64: *patch.Price, Valid: true}
	}
	var stock sql.NullInt64
	if patch.Stock != nil {
		stock = sql.NullInt64{Int64: int64(*patch.Stock), Valid: true}
	}
	p, err := scanProduct(database.Conn(ctx, r.db).QueryRowContext(ctx, updateProductQuery, price, stock, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// DecreaseStock relies on the guarded UPDATE so concurrent commits can never
// drive stock below zero.
func (r *PostgresRepository) DecreaseStock(ctx context.Context, id int, qty int) error {
	q := database.Conn(ctx, r.db)
	res, err := q.ExecContext(ctx, decreaseStockQuery, qty, id)
	if err != nil {
		return fmt.Errorf("decrease stock of product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, productExistsQuery, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInsufficientStock
}
