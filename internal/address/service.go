package address

import (
	"context"
	"errors"
	"strings"

	"github.com/wichananm65/storefront-backend/internal/payment"
)

var ErrIncomplete = errors.New("full_name, phone, address_line1, city and postal_code are required")

// Service orchestrates saved addresses.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, userID int) ([]Address, error) {
	return s.repo.List(ctx, userID)
}

func (s *Service) Add(ctx context.Context, userID int, sa payment.ShippingAddress) (Address, error) {
	if strings.TrimSpace(sa.FullName) == "" || strings.TrimSpace(sa.Phone) == "" ||
		strings.TrimSpace(sa.AddressLine1) == "" || strings.TrimSpace(sa.City) == "" ||
		strings.TrimSpace(sa.PostalCode) == "" {
		return Address{}, ErrIncomplete
	}
	return s.repo.Create(ctx, Address{UserID: userID, ShippingAddress: sa})
}

func (s *Service) Delete(ctx context.Context, userID, addressID int) error {
	if addressID <= 0 {
		return ErrNotFound
	}
	return s.repo.Delete(ctx, userID, addressID)
}

// ShippingAddress resolves a saved address for checkout. Addresses of other
// users are reported as not found.
func (s *Service) ShippingAddress(ctx context.Context, userID, addressID int) (payment.ShippingAddress, error) {
	if addressID <= 0 {
		return payment.ShippingAddress{}, ErrNotFound
	}
	a, err := s.repo.Get(ctx, userID, addressID)
	if err != nil {
		return payment.ShippingAddress{}, err
	}
	return a.ShippingAddress, nil
}
