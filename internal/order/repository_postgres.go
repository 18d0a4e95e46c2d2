package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wichananm65/storefront-backend/internal/database"
	"github.com/wichananm65/storefront-backend/internal/logging"
	"go.uber.org/zap"
)

type PostgresRepository struct {
	db *sql.DB
}

const (
	insertOrderQuery = `
		INSERT INTO orders (user_id, order_number, total_amount, status, shipping_address, payment_method,
			payment_id, provider_order_id, payment_status, delivery_date, delivery_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (order_number) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	insertItemQuery = `INSERT INTO order_items (order_id, product_id, quantity, price) VALUES ($1, $2, $3, $4)`

	selectOrdersQuery = `
		SELECT o.id, o.user_id, o.order_number, o.total_amount, o.status, o.shipping_address,
			COALESCE(o.payment_method, ''), COALESCE(o.payment_id, ''), COALESCE(o.provider_order_id, ''),
			o.payment_status, o.delivery_date, o.delivery_phone, o.created_at, o.updated_at,
			COALESCE(
				json_agg(json_build_object(
					'product_id', oi.product_id,
					'product_name', COALESCE(p.name, ''),
					'product_image', COALESCE(p.image, ''),
					'quantity', oi.quantity,
					'price', oi.price
				) ORDER BY oi.id) FILTER (WHERE oi.id IS NOT NULL),
				'[]'
			) AS items
		FROM orders o
		LEFT JOIN order_items oi ON oi.order_id = o.id
		LEFT JOIN products p ON p.id = oi.product_id
	`
	byPaymentIDQuery = selectOrdersQuery + ` WHERE o.payment_id = $1 GROUP BY o.id`
	byUserQuery      = selectOrdersQuery + ` WHERE o.user_id = $1 GROUP BY o.id ORDER BY o.created_at DESC, o.id DESC`
	byIDForUserQuery = selectOrdersQuery + ` WHERE o.id = $1 AND o.user_id = $2 GROUP BY o.id`
	byIDQuery        = selectOrdersQuery + ` WHERE o.id = $1 GROUP BY o.id`

	updateStatusQuery = `UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, o *Order) error {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}

	var deliveryDate sql.NullTime
	if o.DeliveryDate != nil {
		deliveryDate = sql.NullTime{Time: *o.DeliveryDate, Valid: true}
	}
	var deliveryPhone sql.NullString
	if o.DeliveryPhone != nil {
		deliveryPhone = sql.NullString{String: *o.DeliveryPhone, Valid: true}
	}

	err = database.Conn(ctx, r.db).QueryRowContext(ctx, insertOrderQuery,
		o.UserID, o.OrderNumber, o.TotalAmount, o.Status, string(addr), o.PaymentMethod,
		nullIfEmpty(o.PaymentID), nullIfEmpty(o.ProviderOrderID), o.PaymentStatus, deliveryDate, deliveryPhone,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrOrderNumberTaken
	case database.IsUniqueViolation(err, database.OrdersPaymentIDKey):
		return ErrDuplicatePayment
	case err != nil:
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertItem(ctx context.Context, orderID int, it Item) error {
	var productID sql.NullInt64
	if it.ProductID != nil {
		productID = sql.NullInt64{Int64: int64(*it.ProductID), Valid: true}
	}
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, insertItemQuery, orderID, productID, it.Quantity, it.Price); err != nil {
		return fmt.Errorf("insert order item: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByPaymentID(ctx context.Context, paymentID string) (Order, error) {
	return r.one(ctx, byPaymentIDQuery, paymentID)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int) ([]Order, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, byUserQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(ctx, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetForUser(ctx context.Context, id, userID int) (Order, error) {
	return r.one(ctx, byIDForUserQuery, id, userID)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id int, status string) (Order, error) {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx, updateStatusQuery, status, id)
	if err != nil {
		return Order{}, fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Order{}, err
	}
	if n == 0 {
		return Order{}, ErrNotFound
	}
	return r.one(ctx, byIDQuery, id)
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (Order, error) {
	o, err := scanOrder(ctx, database.Conn(ctx, r.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(ctx context.Context, s scanner) (Order, error) {
	var (
		o             Order
		addr          string
		deliveryDate  sql.NullTime
		deliveryPhone sql.NullString
		items         []byte
	)
	err := s.Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.TotalAmount, &o.Status, &addr,
		&o.PaymentMethod, &o.PaymentID, &o.ProviderOrderID, &o.PaymentStatus,
		&deliveryDate, &deliveryPhone, &o.CreatedAt, &o.UpdatedAt, &items)
	if err != nil {
		return Order{}, err
	}
	// rows written before addresses were structured may not decode
	if err := json.Unmarshal([]byte(addr), &o.ShippingAddress); err != nil {
		logging.FromContext(ctx).Debug("undecodable shipping address",
			zap.Int("order_id", o.ID), zap.Error(err))
	}
	if deliveryDate.Valid {
		t := deliveryDate.Time
		o.DeliveryDate = &t
	}
	if deliveryPhone.Valid {
		p := deliveryPhone.String
		o.DeliveryPhone = &p
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return Order{}, fmt.Errorf("decode order items: %w", err)
	}
	return o, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
