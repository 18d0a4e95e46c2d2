package address

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("address not found")
)

type Repository interface {
	List(ctx context.Context, userID int) ([]Address, error)
	Get(ctx context.Context, userID, addressID int) (Address, error)
	Create(ctx context.Context, a Address) (Address, error)
	Delete(ctx context.Context, userID, addressID int) error
}

// InMemoryRepository for tests
type InMemoryRepository struct {
	mu     sync.RWMutex
	nextID int
	data   map[int]Address // keyed by addressID
}

func NewInMemoryRepository(seed []Address) *InMemoryRepository {
	r := &InMemoryRepository{data: make(map[int]Address, len(seed))}
	for _, a := range seed {
		r.data[a.AddressID] = a
		if a.AddressID > r.nextID {
			r.nextID = a.AddressID
		}
	}
	return r
}

func (r *InMemoryRepository) List(ctx context.Context, userID int) ([]Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Address, 0)
	for _, a := range r.data {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddressID > out[j].AddressID })
	return out, nil
}

func (r *InMemoryRepository) Get(ctx context.Context, userID, addressID int) (Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.data[addressID]
	if !ok || a.UserID != userID {
		return Address{}, ErrNotFound
	}
	return a, nil
}

func (r *InMemoryRepository) Create(ctx context.Context, a Address) (Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.AddressID = r.nextID
	a.CreatedAt = time.Now().UTC()
	r.data[a.AddressID] = a
	return a, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, userID, addressID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.data[addressID]
	if !ok || a.UserID != userID {
		return ErrNotFound
	}
	delete(r.data, addressID)
	return nil
}
