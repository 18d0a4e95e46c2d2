package payment

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// AddressResolver looks up a saved address belonging to the user.
type AddressResolver interface {
	ShippingAddress(ctx context.Context, userID, addressID int) (ShippingAddress, error)
}

// IntentRequest describes a checkout attempt. Either ShippingAddress or
// AddressID must be set.
type IntentRequest struct {
	AmountMinor     int64
	Currency        string
	CartItems       []CartLine
	ShippingAddress *ShippingAddress
	AddressID       int
}

// IntentResult is returned to the browser so it can open the checkout.
type IntentResult struct {
	ProviderOrderID string `json:"provider_order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	KeyID           string `json:"key_id"`
}

// Broker registers payment intents with the provider. It keeps no local
// state; the provider holds the snapshot until the payment is verified.
type Broker struct {
	provider  Provider
	addresses AddressResolver
	keyID     string
	now       func() time.Time
}

func NewBroker(provider Provider, addresses AddressResolver, keyID string) *Broker {
	return &Broker{provider: provider, addresses: addresses, keyID: keyID, now: time.Now}
}

func (b *Broker) CreateIntent(ctx context.Context, userID int, req IntentRequest) (IntentResult, error) {
	currency, err := validateIntent(req)
	if err != nil {
		return IntentResult{}, err
	}

	var addr ShippingAddress
	switch {
	case req.ShippingAddress != nil && !req.ShippingAddress.IsZero():
		addr = *req.ShippingAddress
	case req.AddressID > 0 && b.addresses != nil:
		addr, err = b.addresses.ShippingAddress(ctx, userID, req.AddressID)
		if err != nil {
			return IntentResult{}, err
		}
	default:
		return IntentResult{}, ErrMissingAddress
	}

	intent, err := b.provider.CreateOrder(ctx, OrderRequest{
		AmountMinor: req.AmountMinor,
		Currency:    currency,
		Receipt:     fmt.Sprintf("order_%d_%d", b.now().UnixMilli(), userID),
		Notes: Notes{
			UserID:          userID,
			CartItems:       req.CartItems,
			ShippingAddress: addr,
		},
	})
	if err != nil {
		return IntentResult{}, err
	}
	return IntentResult{
		ProviderOrderID: intent.ProviderOrderID,
		Amount:          intent.AmountMinor,
		Currency:        intent.Currency,
		KeyID:           b.keyID,
	}, nil
}

// FetchIntent returns the intent registered under providerOrderID.
func (b *Broker) FetchIntent(ctx context.Context, providerOrderID string) (Intent, error) {
	return b.provider.FetchOrder(ctx, providerOrderID)
}

func validateIntent(req IntentRequest) (string, error) {
	if req.AmountMinor <= 0 {
		return "", ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if len(currency) != 3 || strings.IndexFunc(currency, func(r rune) bool { return !unicode.IsLetter(r) }) >= 0 {
		return "", ErrInvalidCurrency
	}
	if len(req.CartItems) == 0 {
		return "", ErrEmptySnapshot
	}
	for _, l := range req.CartItems {
		if l.ProductID <= 0 || l.Quantity <= 0 || l.Price <= 0 {
			return "", ErrInvalidLine
		}
	}
	if total := SnapshotTotalMinor(req.CartItems); total != req.AmountMinor {
		return "", fmt.Errorf("%w: snapshot totals %d, charged %d", ErrAmountMismatch, total, req.AmountMinor)
	}
	return currency, nil
}
