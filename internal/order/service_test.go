package order

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wichananm65/storefront-backend/internal/cart"
	"github.com/wichananm65/storefront-backend/internal/database"
	"github.com/wichananm65/storefront-backend/internal/payment"
	"github.com/wichananm65/storefront-backend/internal/product"
)

const testSecret = "rzp_test_secret"

var testAddress = payment.ShippingAddress{FullName: "Asha Rao", Phone: "9999999999", AddressLine1: "12 MG Road", City: "Pune", PostalCode: "411001", Country: "India"}

type fixture struct {
	svc      *Service
	orders   *InMemoryRepository
	products *product.InMemoryRepository
	carts    *cart.Service
	provider *payment.MemoryProvider
	broker   *payment.Broker
	verifier *payment.Verifier
}

func newFixture(t *testing.T, seed ...product.Product) *fixture {
	t.Helper()
	f := &fixture{
		products: product.NewInMemoryRepository(seed),
		provider: payment.NewMemoryProvider(),
		verifier: payment.NewVerifier(testSecret),
	}
	f.orders = NewInMemoryRepository(func(ctx context.Context, id int) (string, string) {
		p, err := f.products.GetByID(ctx, id)
		if err != nil {
			return "", ""
		}
		return p.Name, p.Image
	})
	f.carts = cart.NewService(cart.NewInMemoryRepository(f.products), nil)
	f.broker = payment.NewBroker(f.provider, nil, "rzp_test_key")
	f.svc = f.newService(f.orders)
	return f
}

func (f *fixture) newService(repo Repository) *Service {
	return NewService(Deps{
		Repo:       repo,
		Transactor: database.NewMemoryTransactor(),
		Verifier:   f.verifier,
		Intents:    f.broker,
		Stock:      f.products,
		Cart:       f.carts,
	})
}

// checkout registers an intent for lines and returns a correctly signed
// callback for it.
func (f *fixture) checkout(t *testing.T, userID int, paymentID string, lines ...payment.CartLine) VerifyInput {
	t.Helper()
	res, err := f.broker.CreateIntent(context.Background(), userID, payment.IntentRequest{
		AmountMinor:     payment.SnapshotTotalMinor(lines),
		CartItems:       lines,
		ShippingAddress: &testAddress,
	})
	require.NoError(t, err)
	return VerifyInput{
		ProviderOrderID:   res.ProviderOrderID,
		ProviderPaymentID: paymentID,
		Signature:         f.verifier.Sign(res.ProviderOrderID, paymentID),
	}
}

func (f *fixture) stock(t *testing.T, id int) int {
	t.Helper()
	p, err := f.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func (f *fixture) orderCount(t *testing.T, userID int) int {
	t.Helper()
	orders, err := f.svc.List(context.Background(), userID)
	require.NoError(t, err)
	return len(orders)
}

func TestCommit_CartToOrderScenario(t *testing.T) {
	f := newFixture(t, product.Product{ID: 1, Name: "Canvas Tote", Price: 450, Stock: 5})
	ctx := context.Background()

	_, err := f.carts.Add(ctx, 42, 1, 3)
	require.NoError(t, err)
	_, err = f.carts.Add(ctx, 42, 1, 3)
	var stockErr *cart.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	in := f.checkout(t, 42, "pay_001", payment.CartLine{ProductID: 1, Quantity: 3, Price: 450})
	o, replayed, err := f.svc.Commit(ctx, 42, in)
	require.NoError(t, err)
	assert.False(t, replayed)

	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.Equal(t, "pay_001", o.PaymentID)
	assert.Equal(t, 1350.0, o.TotalAmount)
	assert.Equal(t, testAddress, o.ShippingAddress)
	assert.Regexp(t, `^ORD-\d+-[0-9A-Z]{6}$`, o.OrderNumber)
	require.NotNil(t, o.DeliveryDate)
	require.NotNil(t, o.DeliveryPhone)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 1, *o.Items[0].ProductID)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, 450.0, o.Items[0].Price)
	assert.Equal(t, "Canvas Tote", o.Items[0].ProductName)

	assert.Equal(t, 2, f.stock(t, 1))
	items, err := f.carts.List(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCommit_InvalidSignatureWritesNothing(t *testing.T) {
	f := newFixture(t, product.Product{ID: 1, Price: 100, Stock: 4})
	in := f.checkout(t, 42, "pay_002", payment.CartLine{ProductID: 1, Quantity: 2, Price: 100})

	in.Signature = f.verifier.Sign(in.ProviderOrderID, "pay_other")
	_, _, err := f.svc.Commit(context.Background(), 42, in)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	in.Signature = ""
	_, _, err = f.svc.Commit(context.Background(), 42, in)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	assert.Equal(t, 4, f.stock(t, 1))
	assert.Zero(t, f.orderCount(t, 42))
}

func TestCommit_ReplayReturnsExistingOrder(t *testing.T) {
	f := newFixture(t, product.Product{ID: 1, Price: 100, Stock: 10})
	in := f.checkout(t, 42, "pay_003", payment.CartLine{ProductID: 1, Quantity: 2, Price: 100})

	first, replayed, err := f.svc.Commit(context.Background(), 42, in)
	require.NoError(t, err)
	require.False(t, replayed)

	second, replayed, err := f.svc.Commit(context.Background(), 42, in)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)

	assert.Equal(t, 8, f.stock(t, 1))
	assert.Equal(t, 1, f.orderCount(t, 42))
}

func TestCommit_ConcurrentReplaysCreateOneOrder(t *testing.T) {
	f := newFixture(t, product.Product{ID: 1, Price: 100, Stock: 10})
	in := f.checkout(t, 42, "pay_004", payment.CartLine{ProductID: 1, Quantity: 1, Price: 100})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, replayed, err := f.svc.Commit(context.Background(), 42, in)
			if assert.NoError(t, err) && !replayed {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 9, f.stock(t, 1))
	assert.Equal(t, 1, f.orderCount(t, 42))
}

func TestCommit_RollsBackWhenStockRunsOut(t *testing.T) {
	f := newFixture(t,
		product.Product{ID: 1, Price: 100, Stock: 5},
		product.Product{ID: 2, Price: 50, Stock: 5},
	)
	ctx := context.Background()
	_, err := f.carts.Add(ctx, 42, 1, 2)
	require.NoError(t, err)

	in := f.checkout(t, 42, "pay_005",
		payment.CartLine{ProductID: 1, Quantity: 2, Price: 100},
		payment.CartLine{ProductID: 2, Quantity: 3, Price: 50},
	)
	// someone else bought product 2 between intent and callback
	require.NoError(t, f.products.DecreaseStock(ctx, 2, 4))

	_, _, err = f.svc.Commit(ctx, 42, in)
	assert.ErrorIs(t, err, product.ErrInsufficientStock)

	assert.Equal(t, 5, f.stock(t, 1), "first line must be rolled back")
	assert.Equal(t, 1, f.stock(t, 2))
	assert.Zero(t, f.orderCount(t, 42))
	items, err := f.carts.List(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, items, 1, "cart is untouched when the commit fails")
}

type failingItemRepo struct {
	*InMemoryRepository
	failOn int
	calls  int
}

func (r *failingItemRepo) InsertItem(ctx context.Context, orderID int, it Item) error {
	r.calls++
	if r.calls == r.failOn {
		return errors.New("connection reset")
	}
	return r.InMemoryRepository.InsertItem(ctx, orderID, it)
}

func TestCommit_RollsBackOnWriteFailure(t *testing.T) {
	f := newFixture(t,
		product.Product{ID: 1, Price: 100, Stock: 5},
		product.Product{ID: 2, Price: 50, Stock: 5},
		product.Product{ID: 3, Price: 20, Stock: 5},
	)
	svc := f.newService(&failingItemRepo{InMemoryRepository: f.orders, failOn: 3})

	in := f.checkout(t, 42, "pay_006",
		payment.CartLine{ProductID: 1, Quantity: 1, Price: 100},
		payment.CartLine{ProductID: 2, Quantity: 2, Price: 50},
		payment.CartLine{ProductID: 3, Quantity: 3, Price: 20},
	)
	_, _, err := svc.Commit(context.Background(), 42, in)
	require.Error(t, err)

	for _, id := range []int{1, 2, 3} {
		assert.Equal(t, 5, f.stock(t, id), "product %d", id)
	}
	assert.Zero(t, f.orderCount(t, 42))
	_, err = f.orders.FindByPaymentID(context.Background(), "pay_006")
	assert.ErrorIs(t, err, ErrNotFound)

	// the same callback succeeds once the fault is gone
	o, replayed, err := f.svc.Commit(context.Background(), 42, in)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Len(t, o.Items, 3)
}

func TestCommit_UsesSnapshotPrice(t *testing.T) {
	f := newFixture(t, product.Product{ID: 1, Price: 450, Stock: 5})
	ctx := context.Background()

	in := f.checkout(t, 42, "pay_007", payment.CartLine{ProductID: 1, Quantity: 1, Price: 450})
	raised := 999.0
	_, err := f.products.Update(ctx, 1, product.Patch{Price: &raised})
	require.NoError(t, err)

	o, _, err := f.svc.Commit(ctx, 42, in)
	require.NoError(t, err)
	assert.Equal(t, 450.0, o.Items[0].Price)

	lowered := 10.0
	_, err = f.products.Update(ctx, 1, product.Patch{Price: &lowered})
	require.NoError(t, err)
	got, err := f.svc.Get(ctx, 42, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 450.0, got.Items[0].Price)
}

func TestCommit_RejectsAnotherUsersIntent(t *testing.T) {
	f := newFixture(t, product.Product{ID: 1, Price: 100, Stock: 5})
	in := f.checkout(t, 42, "pay_008", payment.CartLine{ProductID: 1, Quantity: 1, Price: 100})

	_, _, err := f.svc.Commit(context.Background(), 43, in)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 5, f.stock(t, 1))
}

func TestCommit_ProviderUnavailable(t *testing.T) {
	f := newFixture(t, product.Product{ID: 1, Price: 100, Stock: 5})
	in := f.checkout(t, 42, "pay_009", payment.CartLine{ProductID: 1, Quantity: 1, Price: 100})
	f.provider.FetchErr = &payment.ProviderError{Op: "fetch order", StatusCode: 503, Retriable: true}

	_, _, err := f.svc.Commit(context.Background(), 42, in)
	var perr *payment.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.True(t, perr.Retriable)
	assert.Equal(t, 5, f.stock(t, 1))
}

func TestCommit_RetriesOrderNumberCollision(t *testing.T) {
	f := newFixture(t, product.Product{ID: 1, Price: 100, Stock: 5})
	numbers := []string{"ORD-1-AAAAAA", "ORD-1-AAAAAA", "ORD-1-BBBBBB"}
	f.svc.orderNumber = func(time.Time) (string, error) {
		n := numbers[0]
		if len(numbers) > 1 {
			numbers = numbers[1:]
		}
		return n, nil
	}

	o1, _, err := f.svc.Commit(context.Background(), 42, f.checkout(t, 42, "pay_010", payment.CartLine{ProductID: 1, Quantity: 1, Price: 100}))
	require.NoError(t, err)
	o2, _, err := f.svc.Commit(context.Background(), 42, f.checkout(t, 42, "pay_011", payment.CartLine{ProductID: 1, Quantity: 1, Price: 100}))
	require.NoError(t, err)
	assert.Equal(t, "ORD-1-AAAAAA", o1.OrderNumber)
	assert.Equal(t, "ORD-1-BBBBBB", o2.OrderNumber)

	// a generator stuck on a used number gives up and changes nothing
	_, _, err = f.svc.Commit(context.Background(), 42, f.checkout(t, 42, "pay_012", payment.CartLine{ProductID: 1, Quantity: 1, Price: 100}))
	assert.ErrorIs(t, err, ErrNoOrderNumber)
	assert.Equal(t, 3, f.stock(t, 1))
}

func TestCommit_StockAccounting(t *testing.T) {
	f := newFixture(t,
		product.Product{ID: 1, Price: 100, Stock: 7},
		product.Product{ID: 2, Price: 30, Stock: 4},
	)
	ctx := context.Background()
	attempts := [][]payment.CartLine{
		{{ProductID: 1, Quantity: 3, Price: 100}},
		{{ProductID: 1, Quantity: 2, Price: 100}, {ProductID: 2, Quantity: 4, Price: 30}},
		{{ProductID: 1, Quantity: 3, Price: 100}}, // only 2 left
		{{ProductID: 2, Quantity: 1, Price: 30}},  // none left
		{{ProductID: 1, Quantity: 2, Price: 100}},
	}
	for i, lines := range attempts {
		_, _, _ = f.svc.Commit(ctx, 42, f.checkout(t, 42, "pay_acc_"+string(rune('a'+i)), lines...))
	}

	orders, err := f.svc.List(ctx, 42)
	require.NoError(t, err)
	sold := map[int]int{}
	for _, o := range orders {
		for _, it := range o.Items {
			sold[*it.ProductID] += it.Quantity
		}
	}
	assert.Equal(t, 7-f.stock(t, 1), sold[1])
	assert.Equal(t, 4-f.stock(t, 2), sold[2])
	assert.GreaterOrEqual(t, f.stock(t, 1), 0)
	assert.GreaterOrEqual(t, f.stock(t, 2), 0)
	assert.Len(t, orders, 3)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, product.Product{ID: 1, Price: 100, Stock: 5})
	o, _, err := f.svc.Commit(context.Background(), 42, f.checkout(t, 42, "pay_013", payment.CartLine{ProductID: 1, Quantity: 1, Price: 100}))
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), o.ID, "lost")
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = f.svc.UpdateStatus(context.Background(), 999, StatusShipped)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.svc.UpdateStatus(context.Background(), o.ID, StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
}

func TestNewOrderNumber(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	re := regexp.MustCompile(`^ORD-1700000000123-[0-9A-Z]{6}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n, err := NewOrderNumber(at)
		require.NoError(t, err)
		assert.Regexp(t, re, n)
		seen[n] = true
	}
	assert.Greater(t, len(seen), 45)
}
