package product

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wichananm65/storefront-backend/internal/database"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int) (Product, error)
	Update(ctx context.Context, id int, patch Patch) (Product, error)
	// DecreaseStock removes qty units from the product. It fails with
	// ErrInsufficientStock instead of letting stock go negative and joins
	// the transaction carried by ctx.
	DecreaseStock(ctx context.Context, id int, qty int) error
}

// InMemoryRepository is a simple in-memory implementation useful for tests and
// local runs. Stock changes made inside a database.MemoryTransactor are undone
// when the transaction fails.
type InMemoryRepository struct {
	mu      sync.RWMutex
	storage map[int]Product
}

func NewInMemoryRepository(seed []Product) *InMemoryRepository {
	r := &InMemoryRepository{storage: make(map[int]Product, len(seed))}
	for _, p := range seed {
		r.storage[p.ID] = p
	}
	return r
}

func (r *InMemoryRepository) List(ctx context.Context) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Product, 0, len(r.storage))
	for _, p := range r.storage {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id int) (Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.storage[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (r *InMemoryRepository) Update(ctx context.Context, id int, patch Patch) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.storage[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Stock != nil {
		p.Stock = *patch.Stock
	}
	p.UpdatedAt = time.Now().UTC()
	r.storage[id] = p
	return p, nil
}

func (r *InMemoryRepository) DecreaseStock(ctx context.Context, id int, qty int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.storage[id]
	if !ok {
		return ErrNotFound
	}
	if p.Stock < qty {
		return ErrInsufficientStock
	}
	p.Stock -= qty
	r.storage[id] = p

	database.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		cur := r.storage[id]
		cur.Stock += qty
		r.storage[id] = cur
	})
	return nil
}
