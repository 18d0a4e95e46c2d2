package cart

import "time"

// Item is a cart line joined with the product it refers to.
type Item struct {
	ProductID int       `json:"product_id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Category  string    `json:"category"`
	Stock     int       `json:"stock"`
	Image     string    `json:"image"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
