package product

import "time"

// Product is a sellable item and its stock level. Stock is the inventory
// ledger: it only goes down inside a committed order transaction.
type Product struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	Category    string    `json:"category,omitempty"`
	Stock       int       `json:"stock"`
	Image       string    `json:"image,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Patch carries the admin-editable fields; nil means unchanged.
type Patch struct {
	Price *float64 `json:"price,omitempty"`
	Stock *int     `json:"stock,omitempty"`
}
