package cart

import (
	"context"
	"errors"

	"github.com/wichananm65/storefront-backend/internal/metrics"
)

// Service orchestrates cart operations.
type Service struct {
	repo    Repository
	metrics *metrics.Metrics
}

func NewService(repo Repository, m *metrics.Metrics) *Service {
	return &Service{repo: repo, metrics: m}
}

func (s *Service) Add(ctx context.Context, userID, productID, qty int) (Item, error) {
	if productID <= 0 {
		return Item{}, ErrInvalidProduct
	}
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	it, err := s.repo.Add(ctx, userID, productID, qty)
	s.observe(err)
	return it, err
}

// SetQuantity replaces the line's quantity. Zero or less removes the line;
// the returned bool reports whether that happened.
func (s *Service) SetQuantity(ctx context.Context, userID, productID, qty int) (Item, bool, error) {
	if productID <= 0 {
		return Item{}, false, ErrInvalidProduct
	}
	if qty <= 0 {
		return Item{}, true, s.repo.Remove(ctx, userID, productID)
	}
	it, err := s.repo.SetQuantity(ctx, userID, productID, qty)
	s.observe(err)
	return it, false, err
}

func (s *Service) Remove(ctx context.Context, userID, productID int) error {
	if productID <= 0 {
		return ErrInvalidProduct
	}
	return s.repo.Remove(ctx, userID, productID)
}

func (s *Service) Clear(ctx context.Context, userID int) error {
	return s.repo.Clear(ctx, userID)
}

func (s *Service) List(ctx context.Context, userID int) ([]Item, error) {
	return s.repo.List(ctx, userID)
}

// RemovePurchased drops lines that were folded into an order.
func (s *Service) RemovePurchased(ctx context.Context, userID int, productIDs []int) error {
	return s.repo.RemoveProducts(ctx, userID, productIDs)
}

func (s *Service) observe(err error) {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		s.metrics.CartRejected()
	}
}
