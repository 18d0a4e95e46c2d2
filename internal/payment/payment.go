// Package payment talks to the external payment provider: it registers
// payment intents carrying a snapshot of what is being bought and checks
// the signature the provider attaches to a completed payment.
package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
)

const DefaultCurrency = "INR"

var (
	ErrInvalidAmount   = errors.New("amount must be a positive integer in minor currency units")
	ErrInvalidCurrency = errors.New("currency must be a three-letter code")
	ErrEmptySnapshot   = errors.New("cart snapshot is empty")
	ErrInvalidLine     = errors.New("cart snapshot line needs a product id, a positive quantity and a positive price")
	ErrAmountMismatch  = errors.New("amount does not match the cart snapshot total")
	ErrMissingAddress  = errors.New("shipping address is required")
	ErrIntentNotFound  = errors.New("payment intent not found")
)

// CartLine is one purchased product as frozen when the intent was created.
// Price is the unit price charged, in major units.
type CartLine struct {
	ProductID int     `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// ShippingAddress is stored verbatim on the order.
type ShippingAddress struct {
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

func (a ShippingAddress) IsZero() bool {
	return a == ShippingAddress{}
}

// Notes is the metadata attached to an intent on the provider side. It is
// the authoritative record of what a payment was for.
type Notes struct {
	UserID          int
	CartItems       []CartLine
	ShippingAddress ShippingAddress
}

// Intent is a provider-side order.
type Intent struct {
	ProviderOrderID string
	AmountMinor     int64
	Currency        string
	Receipt         string
	Status          string
	Notes           Notes
}

// OrderRequest is what gets registered with the provider.
type OrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       Notes
}

// Provider is the external payment gateway.
type Provider interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Intent, error)
	FetchOrder(ctx context.Context, providerOrderID string) (Intent, error)
}

// ProviderError wraps a failed call to the gateway. Retriable is set for
// transport failures and server-side errors.
type ProviderError struct {
	Op          string
	StatusCode  int
	Code        string
	Reason      string
	Description string
	Retriable   bool
	Err         error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("payment provider %s failed", e.Op)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" with status %d", e.StatusCode)
	}
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

const (
	codeServerError      = "SERVER_ERROR"
	codeBadRequest       = "BAD_REQUEST_ERROR"
	reasonIntlNotAllowed = "international_transaction_not_allowed"
)

// UserMessage is safe to show to a shopper.
func (e *ProviderError) UserMessage() string {
	switch {
	case e.Code == codeServerError:
		return "Razorpay is experiencing technical difficulties. Please try again in a few minutes or contact support."
	case e.Code == codeBadRequest && e.Reason == reasonIntlNotAllowed:
		return "International cards are not supported. Please use an Indian card or enable international payments in your Razorpay dashboard."
	case e.Retriable:
		return "Payment service is temporarily unavailable, please try again"
	case e.Code == codeBadRequest && e.Description != "":
		return e.Description
	}
	return "Payment request failed"
}

// SnapshotTotalMinor sums price*quantity in minor units, rounding each line
// to the nearest minor unit.
func SnapshotTotalMinor(lines []CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += int64(math.Round(l.Price*100)) * int64(l.Quantity)
	}
	return total
}
