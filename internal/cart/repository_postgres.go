package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/wichananm65/storefront-backend/internal/database"
	"github.com/wichananm65/storefront-backend/internal/product"
)

type PostgresRepository struct {
	db *sql.DB
}

const (
	itemColumns = `c.product_id, p.name, p.price, COALESCE(p.category, ''), p.stock, COALESCE(p.image, ''), c.quantity, c.created_at, c.updated_at`

	// The conflict branch only fires when the combined quantity still fits
	// in stock, so the check and the increment are a single statement.
	addItemQuery = `
		INSERT INTO cart_items (user_id, product_id, quantity)
		SELECT $1, p.id, $3::int FROM products p WHERE p.id = $2 AND p.stock >= $3::int
		ON CONFLICT ON CONSTRAINT ` + database.CartUserProductKey + `
		DO UPDATE SET
			quantity = cart_items.quantity + EXCLUDED.quantity,
			updated_at = NOW()
		WHERE cart_items.quantity + EXCLUDED.quantity <= (SELECT stock FROM products WHERE id = cart_items.product_id)
		RETURNING quantity
	`
	setQuantityQuery = `
		UPDATE cart_items c
		SET quantity = $3::int, updated_at = NOW()
		FROM products p
		WHERE c.user_id = $1 AND c.product_id = $2 AND p.id = c.product_id AND p.stock >= $3::int
		RETURNING c.quantity
	`
	stockAndLineQuery = `
		SELECT p.stock, c.quantity
		FROM products p
		LEFT JOIN cart_items c ON c.product_id = p.id AND c.user_id = $1
		WHERE p.id = $2
	`
	getItemQuery        = `SELECT ` + itemColumns + ` FROM cart_items c JOIN products p ON p.id = c.product_id WHERE c.user_id = $1 AND c.product_id = $2`
	listItemsQuery      = `SELECT ` + itemColumns + ` FROM cart_items c JOIN products p ON p.id = c.product_id WHERE c.user_id = $1 ORDER BY c.created_at DESC, c.product_id DESC`
	removeItemQuery     = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = $2`
	clearCartQuery      = `DELETE FROM cart_items WHERE user_id = $1`
	removeProductsQuery = `DELETE FROM cart_items WHERE user_id = $1 AND product_id = ANY($2::int[])`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Add(ctx context.Context, userID, productID, qty int) (Item, error) {
	var got int
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, addItemQuery, userID, productID, qty).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, r.explainRejection(ctx, userID, productID, qty, false)
	}
	if err != nil {
		return Item{}, fmt.Errorf("add cart item: %w", err)
	}
	return r.get(ctx, userID, productID)
}

func (r *PostgresRepository) SetQuantity(ctx context.Context, userID, productID, qty int) (Item, error) {
	var got int
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, setQuantityQuery, userID, productID, qty).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, r.explainRejection(ctx, userID, productID, qty, true)
	}
	if err != nil {
		return Item{}, fmt.Errorf("set cart quantity: %w", err)
	}
	return r.get(ctx, userID, productID)
}

// explainRejection works out why a guarded write touched no rows. An update
// needs an existing line, so a missing one is ErrNotFound rather than a
// stock shortfall.
func (r *PostgresRepository) explainRejection(ctx context.Context, userID, productID, qty int, lineRequired bool) error {
	var (
		stock  int
		inCart sql.NullInt64
	)
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, stockAndLineQuery, userID, productID).Scan(&stock, &inCart)
	if errors.Is(err, sql.ErrNoRows) {
		return product.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read stock for product %d: %w", productID, err)
	}
	if lineRequired && !inCart.Valid {
		return ErrNotFound
	}
	return &InsufficientStockError{Available: stock, Requested: qty, CurrentInCart: int(inCart.Int64)}
}

func (r *PostgresRepository) get(ctx context.Context, userID, productID int) (Item, error) {
	row := database.Conn(ctx, r.db).QueryRowContext(ctx, getItemQuery, userID, productID)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (r *PostgresRepository) Remove(ctx context.Context, userID, productID int) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, removeItemQuery, userID, productID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Clear(ctx context.Context, userID int) error {
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, clearCartQuery, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, userID int) ([]Item, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, listItemsQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) RemoveProducts(ctx context.Context, userID int, productIDs []int) error {
	if len(productIDs) == 0 {
		return nil
	}
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, removeProductsQuery, userID, pq.Array(productIDs)); err != nil {
		return fmt.Errorf("remove purchased cart items: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (Item, error) {
	var it Item
	err := s.Scan(&it.ProductID, &it.Name, &it.Price, &it.Category, &it.Stock, &it.Image, &it.Quantity, &it.CreatedAt, &it.UpdatedAt)
	return it, err
}
