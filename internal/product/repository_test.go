package product

import (
	"context"
	"errors"
	"testing"

	"github.com/wichananm65/storefront-backend/internal/database"
)

func TestInMemoryDecreaseStock_NeverNegative(t *testing.T) {
	repo := NewInMemoryRepository([]Product{{ID: 1, Name: "Tee", Price: 299, Stock: 2}})
	ctx := context.Background()

	if err := repo.DecreaseStock(ctx, 1, 3); !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if err := repo.DecreaseStock(ctx, 1, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := repo.GetByID(ctx, 1)
	if p.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", p.Stock)
	}
	if err := repo.DecreaseStock(ctx, 99, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInMemoryDecreaseStock_UndoneOnRollback(t *testing.T) {
	repo := NewInMemoryRepository([]Product{{ID: 1, Stock: 5}, {ID: 2, Stock: 1}})
	tx := database.NewMemoryTransactor()

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := repo.DecreaseStock(ctx, 1, 3); err != nil {
			return err
		}
		return repo.DecreaseStock(ctx, 2, 2)
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	p1, _ := repo.GetByID(context.Background(), 1)
	if p1.Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", p1.Stock)
	}
}

func TestServiceUpdate_Validation(t *testing.T) {
	svc := NewService(NewInMemoryRepository([]Product{{ID: 1, Price: 10, Stock: 1}}))
	neg := -1.0
	if _, err := svc.Update(context.Background(), 1, Patch{Price: &neg}); !errors.Is(err, ErrInvalidPatch) {
		t.Fatalf("expected ErrInvalidPatch, got %v", err)
	}
	price := 12.5
	p, err := svc.Update(context.Background(), 1, Patch{Price: &price})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Price != 12.5 || p.Stock != 1 {
		t.Fatalf("unexpected product %+v", p)
	}
}
