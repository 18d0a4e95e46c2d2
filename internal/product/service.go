package product

import (
	"context"
	"errors"
)

var ErrInvalidPatch = errors.New("price must be non-negative and stock must be non-negative")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

func (s *Service) GetByID(ctx context.Context, id int) (Product, error) {
	if id <= 0 {
		return Product{}, ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// Update changes price or stock. Orders already placed keep the price they
// were bought at.
func (s *Service) Update(ctx context.Context, id int, patch Patch) (Product, error) {
	if id <= 0 {
		return Product{}, ErrNotFound
	}
	if (patch.Price != nil && *patch.Price < 0) || (patch.Stock != nil && *patch.Stock < 0) {
		return Product{}, ErrInvalidPatch
	}
	return s.repo.Update(ctx, id, patch)
}
