package payment

import (
	"context"
	"fmt"
	"sync"
)

// MemoryProvider keeps intents in process. It stands in for the gateway in
// tests and local runs.
type MemoryProvider struct {
	mu      sync.Mutex
	seq     int
	intents map[string]Intent

	// CreateErr and FetchErr, when set, are returned instead of doing work.
	CreateErr error
	FetchErr  error
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{intents: make(map[string]Intent)}
}

func (p *MemoryProvider) CreateOrder(ctx context.Context, req OrderRequest) (Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return Intent{}, p.CreateErr
	}
	p.seq++
	in := Intent{
		ProviderOrderID: fmt.Sprintf("order_mem%06d", p.seq),
		AmountMinor:     req.AmountMinor,
		Currency:        req.Currency,
		Receipt:         req.Receipt,
		Status:          "created",
		Notes:           req.Notes,
	}
	in.Notes.CartItems = append([]CartLine(nil), req.Notes.CartItems...)
	p.intents[in.ProviderOrderID] = in
	return in, nil
}

func (p *MemoryProvider) FetchOrder(ctx context.Context, providerOrderID string) (Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FetchErr != nil {
		return Intent{}, p.FetchErr
	}
	in, ok := p.intents[providerOrderID]
	if !ok {
		return Intent{}, fmt.Errorf("%w: %s", ErrIntentNotFound, providerOrderID)
	}
	return in, nil
}
