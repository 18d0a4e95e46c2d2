package address

import (
	"time"

	"github.com/wichananm65/storefront-backend/internal/payment"
)

// Address is a saved shipping address. The embedded fields serialize flat.
type Address struct {
	AddressID int `json:"address_id"`
	UserID    int `json:"user_id"`
	payment.ShippingAddress
	CreatedAt time.Time `json:"created_at"`
}
