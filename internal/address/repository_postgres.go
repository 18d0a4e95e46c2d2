package address

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresRepository stores addresses in the address table. Column names
// are quoted camelCase.
type PostgresRepository struct {
	db *sql.DB
}

const (
	addressColumns = `"addressID", "userID", COALESCE("fullName", ''), COALESCE(email, ''), COALESCE(phone, ''),
		COALESCE("addressLine1", ''), COALESCE("addressLine2", ''), COALESCE(city, ''), COALESCE(state, ''),
		COALESCE("postalCode", ''), COALESCE(country, ''), "createdAt"`

	listAddressesQuery = `SELECT ` + addressColumns + ` FROM address WHERE "userID" = $1 ORDER BY "addressID" DESC`
	getAddressQuery    = `SELECT ` + addressColumns + ` FROM address WHERE "userID" = $1 AND "addressID" = $2`
	insertAddressQuery = `
		INSERT INTO address ("userID", "fullName", email, phone, "addressLine1", "addressLine2", city, state, "postalCode", country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING "addressID", "createdAt"
	`
	deleteAddressQuery = `DELETE FROM address WHERE "userID" = $1 AND "addressID" = $2`
)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context, userID int) ([]Address, error) {
	rows, err := r.db.QueryContext(ctx, listAddressesQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Address, 0)
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, userID, addressID int) (Address, error) {
	a, err := scanAddress(r.db.QueryRowContext(ctx, getAddressQuery, userID, addressID))
	if errors.Is(err, sql.ErrNoRows) {
		return Address{}, ErrNotFound
	}
	return a, err
}

func (r *PostgresRepository) Create(ctx context.Context, a Address) (Address, error) {
	s := a.ShippingAddress
	err := r.db.QueryRowContext(ctx, insertAddressQuery,
		a.UserID, s.FullName, s.Email, s.Phone, s.AddressLine1, s.AddressLine2, s.City, s.State, s.PostalCode, s.Country,
	).Scan(&a.AddressID, &a.CreatedAt)
	if err != nil {
		return Address{}, fmt.Errorf("insert address: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, addressID int) error {
	res, err := r.db.ExecContext(ctx, deleteAddressQuery, userID, addressID)
	if err != nil {
		return err
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

type scanner interface {
	Scan(dest ...any) error
}

func scanAddress(s scanner) (Address, error) {
	var a Address
	sa := &a.ShippingAddress
	err := s.Scan(&a.AddressID, &a.UserID, &sa.FullName, &sa.Email, &sa.Phone,
		&sa.AddressLine1, &sa.AddressLine2, &sa.City, &sa.State, &sa.PostalCode, &sa.Country, &a.CreatedAt)
	return a, err
}
