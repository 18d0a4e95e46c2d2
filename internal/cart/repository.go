package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wichananm65/storefront-backend/internal/product"
)

var (
	ErrNotFound        = errors.New("cart item not found")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrInvalidProduct  = errors.New("product ID is required")
)

// InsufficientStockError reports why a cart mutation was refused.
type InsufficientStockError struct {
	Available     int
	Requested     int
	CurrentInCart int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %d, requested %d, in cart %d", e.Available, e.Requested, e.CurrentInCart)
}

// MaxCanAdd is how many more units could still be added.
func (e *InsufficientStockError) MaxCanAdd() int {
	if n := e.Available - e.CurrentInCart; n > 0 {
		return n
	}
	return 0
}

// Repository provides access to cart lines. Add and SetQuantity must check
// stock and write in one atomic step.
type Repository interface {
	// Add increments (or creates) the line by qty provided the result stays
	// within stock.
	Add(ctx context.Context, userID, productID, qty int) (Item, error)
	SetQuantity(ctx context.Context, userID, productID, qty int) (Item, error)
	Remove(ctx context.Context, userID, productID int) error
	Clear(ctx context.Context, userID int) error
	List(ctx context.Context, userID int) ([]Item, error)
	// RemoveProducts deletes the given products from the user's cart.
	RemoveProducts(ctx context.Context, userID int, productIDs []int) error
}

// StockReader is the slice of the inventory ledger the in-memory cart needs.
type StockReader interface {
	GetByID(ctx context.Context, id int) (product.Product, error)
}

type lineKey struct {
	userID    int
	productID int
}

type line struct {
	qty       int
	createdAt time.Time
	updatedAt time.Time
}

// InMemoryRepository is used for tests and local scenarios. A single mutex
// serializes the check and the write, standing in for the database
// constraint.
type InMemoryRepository struct {
	mu       sync.Mutex
	products StockReader
	lines    map[lineKey]line
}

func NewInMemoryRepository(products StockReader) *InMemoryRepository {
	return &InMemoryRepository{products: products, lines: make(map[lineKey]line)}
}

func (r *InMemoryRepository) Add(ctx context.Context, userID, productID, qty int) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.products.GetByID(ctx, productID)
	if err != nil {
		return Item{}, err
	}
	k := lineKey{userID, productID}
	cur := r.lines[k]
	if cur.qty+qty > p.Stock {
		return Item{}, &InsufficientStockError{Available: p.Stock, Requested: qty, CurrentInCart: cur.qty}
	}

	now := time.Now().UTC()
	if cur.qty == 0 {
		cur.createdAt = now
	}
	cur.qty += qty
	cur.updatedAt = now
	r.lines[k] = cur
	return toItem(p, cur), nil
}

func (r *InMemoryRepository) SetQuantity(ctx context.Context, userID, productID, qty int) (Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.products.GetByID(ctx, productID)
	if err != nil {
		return Item{}, err
	}
	k := lineKey{userID, productID}
	cur, ok := r.lines[k]
	if !ok {
		return Item{}, ErrNotFound
	}
	if qty > p.Stock {
		return Item{}, &InsufficientStockError{Available: p.Stock, Requested: qty, CurrentInCart: cur.qty}
	}
	cur.qty = qty
	cur.updatedAt = time.Now().UTC()
	r.lines[k] = cur
	return toItem(p, cur), nil
}

func (r *InMemoryRepository) Remove(ctx context.Context, userID, productID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := lineKey{userID, productID}
	if _, ok := r.lines[k]; !ok {
		return ErrNotFound
	}
	delete(r.lines, k)
	return nil
}

func (r *InMemoryRepository) Clear(ctx context.Context, userID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.lines {
		if k.userID == userID {
			delete(r.lines, k)
		}
	}
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context, userID int) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Item, 0)
	for k, l := range r.lines {
		if k.userID != userID {
			continue
		}
		p, err := r.products.GetByID(ctx, k.productID)
		if err != nil {
			return nil, err
		}
		out = append(out, toItem(p, l))
	}
	// newest first, matching the SQL ordering
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ProductID > out[j].ProductID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *InMemoryRepository) RemoveProducts(ctx context.Context, userID int, productIDs []int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pid := range productIDs {
		delete(r.lines, lineKey{userID, pid})
	}
	return nil
}

func toItem(p product.Product, l line) Item {
	return Item{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Category:  p.Category,
		Stock:     p.Stock,
		Image:     p.Image,
		Quantity:  l.qty,
		CreatedAt: l.createdAt,
		UpdatedAt: l.updatedAt,
	}
}
