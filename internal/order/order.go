package order

import (
	"time"

	"github.com/wichananm65/storefront-backend/internal/delivery"
	"github.com/wichananm65/storefront-backend/internal/payment"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"

	PaymentPending = "pending"
	PaymentPaid    = "paid"

	PaymentMethodRazorpay = "razorpay"
)

// Order represents a paid purchase made by a user. The stored delivery
// projection is never serialized directly; View decides what is shown.
type Order struct {
	ID              int                     `json:"id"`
	UserID          int                     `json:"user_id"`
	OrderNumber     string                  `json:"order_number"`
	TotalAmount     float64                 `json:"total_amount"`
	Status          string                  `json:"status"`
	ShippingAddress payment.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                  `json:"payment_method"`
	PaymentID       string                  `json:"payment_id"`
	ProviderOrderID string                  `json:"provider_order_id"`
	PaymentStatus   string                  `json:"payment_status"`
	DeliveryDate    *time.Time              `json:"-"`
	DeliveryPhone   *string                 `json:"-"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
	Items           []Item                  `json:"items"`
}

// Item is a purchased line. Price is the unit price paid, never the
// product's current price. ProductID is nil once the product is deleted.
type Item struct {
	ProductID    *int    `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductImage string  `json:"product_image"`
	Quantity     int     `json:"quantity"`
	Price        float64 `json:"price"`
}

// View is an order as shown to its owner.
type View struct {
	Order
	Delivery delivery.Info `json:"delivery"`
}

func (o Order) View(now time.Time) View {
	return View{
		Order: o,
		Delivery: delivery.Display(delivery.Source{
			OrderID:       o.ID,
			Status:        o.Status,
			CreatedAt:     o.CreatedAt,
			DeliveryDate:  o.DeliveryDate,
			DeliveryPhone: o.DeliveryPhone,
		}, now),
	}
}

// VerifyInput is the provider callback forwarded by the browser.
type VerifyInput struct {
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
}

func validStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}
