package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wichananm65/storefront-backend/internal/database"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrOrderNumberTaken = errors.New("order number already in use")
	ErrDuplicatePayment = errors.New("payment already recorded")
)

// Repository defines persistence operations for orders. Writes join the
// transaction carried by ctx.
type Repository interface {
	// Insert stores o and fills in ID and timestamps. It returns
	// ErrOrderNumberTaken or ErrDuplicatePayment on the matching unique
	// conflict.
	Insert(ctx context.Context, o *Order) error
	InsertItem(ctx context.Context, orderID int, it Item) error
	FindByPaymentID(ctx context.Context, paymentID string) (Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID int) ([]Order, error)
	GetForUser(ctx context.Context, id, userID int) (Order, error)
	UpdateStatus(ctx context.Context, id int, status string) (Order, error)
}

// ProductNamer fills in product details on in-memory order items.
type ProductNamer func(ctx context.Context, productID int) (name, image string)

// InMemoryRepository keeps orders in process. Writes made inside a
// database.MemoryTransactor are undone if the transaction fails.
type InMemoryRepository struct {
	mu        sync.RWMutex
	nextID    int
	orders    map[int]Order
	byNumber  map[string]int
	byPayment map[string]int
	names     ProductNamer
}

func NewInMemoryRepository(names ProductNamer) *InMemoryRepository {
	return &InMemoryRepository{
		orders:    make(map[int]Order),
		byNumber:  make(map[string]int),
		byPayment: make(map[string]int),
		names:     names,
	}
}

func (r *InMemoryRepository) Insert(ctx context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byNumber[o.OrderNumber]; ok {
		return ErrOrderNumberTaken
	}
	if o.PaymentID != "" {
		if _, ok := r.byPayment[o.PaymentID]; ok {
			return ErrDuplicatePayment
		}
	}

	r.nextID++
	o.ID = r.nextID
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	o.Items = nil

	r.orders[o.ID] = *o
	r.byNumber[o.OrderNumber] = o.ID
	if o.PaymentID != "" {
		r.byPayment[o.PaymentID] = o.ID
	}

	id, number, paymentID := o.ID, o.OrderNumber, o.PaymentID
	database.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.orders, id)
		delete(r.byNumber, number)
		if paymentID != "" {
			delete(r.byPayment, paymentID)
		}
	})
	return nil
}

func (r *InMemoryRepository) InsertItem(ctx context.Context, orderID int, it Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Items = append(o.Items, it)
	r.orders[orderID] = o

	database.OnRollback(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.orders[orderID]; ok && len(cur.Items) > 0 {
			cur.Items = cur.Items[:len(cur.Items)-1]
			r.orders[orderID] = cur
		}
	})
	return nil
}

func (r *InMemoryRepository) FindByPaymentID(ctx context.Context, paymentID string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPayment[paymentID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return r.decorate(ctx, r.orders[id]), nil
}

func (r *InMemoryRepository) ListByUser(ctx context.Context, userID int) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Order, 0)
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, r.decorate(ctx, o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *InMemoryRepository) GetForUser(ctx context.Context, id, userID int) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok || o.UserID != userID {
		return Order{}, ErrNotFound
	}
	return r.decorate(ctx, o), nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id int, status string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	r.orders[id] = o
	return r.decorate(ctx, o), nil
}

func (r *InMemoryRepository) decorate(ctx context.Context, o Order) Order {
	items := make([]Item, len(o.Items))
	copy(items, o.Items)
	if r.names != nil {
		for i := range items {
			if items[i].ProductID != nil {
				items[i].ProductName, items[i].ProductImage = r.names(ctx, *items[i].ProductID)
			}
		}
	}
	o.Items = items
	return o
}
