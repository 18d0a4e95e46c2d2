package order

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/wichananm65/storefront-backend/internal/database"
	"github.com/wichananm65/storefront-backend/internal/delivery"
	"github.com/wichananm65/storefront-backend/internal/logging"
	"github.com/wichananm65/storefront-backend/internal/metrics"
	"github.com/wichananm65/storefront-backend/internal/payment"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	maxOrderNumberAttempts = 5
	orderNumberAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	orderNumberSuffixLen   = 6
)

var (
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrForbidden        = errors.New("payment belongs to another user")
	ErrInvalidIntent    = errors.New("payment intent has no usable cart snapshot")
	ErrInvalidStatus    = errors.New("invalid order status")
	ErrNoOrderNumber    = errors.New("could not allocate a unique order number")
)

// IntentSource returns the provider-side record of a checkout.
type IntentSource interface {
	FetchIntent(ctx context.Context, providerOrderID string) (payment.Intent, error)
}

// StockLedger removes sold units from inventory.
type StockLedger interface {
	DecreaseStock(ctx context.Context, productID, qty int) error
}

// CartCleaner drops cart lines once they have been bought.
type CartCleaner interface {
	RemovePurchased(ctx context.Context, userID int, productIDs []int) error
}

// Deps are the collaborators of Service.
type Deps struct {
	Repo       Repository
	Transactor database.Transactor
	Verifier   *payment.Verifier
	Intents    IntentSource
	Stock      StockLedger
	Cart       CartCleaner
	Metrics    *metrics.Metrics
}

// Service provides business logic for orders.
type Service struct {
	repo     Repository
	tx       database.Transactor
	verifier *payment.Verifier
	intents  IntentSource
	stock    StockLedger
	cart     CartCleaner
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	now         func() time.Time
	orderNumber func(time.Time) (string, error)
}

func NewService(d Deps) *Service {
	return &Service{
		repo:        d.Repo,
		tx:          d.Transactor,
		verifier:    d.Verifier,
		intents:     d.Intents,
		stock:       d.Stock,
		cart:        d.Cart,
		metrics:     d.Metrics,
		tracer:      otel.Tracer("order"),
		now:         time.Now,
		orderNumber: NewOrderNumber,
	}
}

// Commit turns a verified payment into an order. The order row, its items
// and the stock decrements are written in one transaction. A payment that
// was already committed returns the stored order with replayed set.
func (s *Service) Commit(ctx context.Context, userID int, in VerifyInput) (Order, bool, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "order.Commit")
	defer span.End()
	span.SetAttributes(
		attribute.Int("user.id", userID),
		attribute.String("payment.provider_order_id", in.ProviderOrderID),
		attribute.String("payment.id", in.ProviderPaymentID),
	)

	o, replayed, err := s.commit(ctx, userID, in)

	outcome := "created"
	switch {
	case err == nil && replayed:
		outcome = "replayed"
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrForbidden):
		outcome = "rejected"
	case err != nil:
		outcome = "failed"
	}
	s.metrics.OrderCommit(outcome, time.Since(start))
	span.SetAttributes(attribute.String("order.commit_outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		return Order{}, false, err
	}
	span.SetAttributes(attribute.Int("order.id", o.ID), attribute.String("order.number", o.OrderNumber))
	return o, replayed, nil
}

func (s *Service) commit(ctx context.Context, userID int, in VerifyInput) (Order, bool, error) {
	log := logging.FromContext(ctx)

	valid := s.verifier.Verify(in.ProviderOrderID, in.ProviderPaymentID, in.Signature)
	s.metrics.SignatureCheck(valid)
	if !valid {
		log.Warn("payment signature rejected", zap.Int("user_id", userID), zap.String("provider_order_id", in.ProviderOrderID))
		return Order{}, false, ErrInvalidSignature
	}

	intent, err := s.intents.FetchIntent(ctx, in.ProviderOrderID)
	if err != nil {
		return Order{}, false, fmt.Errorf("fetch payment intent %s: %w", in.ProviderOrderID, err)
	}
	if intent.Notes.UserID != userID {
		return Order{}, false, ErrForbidden
	}
	if intent.AmountMinor <= 0 || len(intent.Notes.CartItems) == 0 {
		return Order{}, false, ErrInvalidIntent
	}

	if existing, err := s.repo.FindByPaymentID(ctx, in.ProviderPaymentID); err == nil {
		log.Info("payment already committed", zap.String("payment_id", in.ProviderPaymentID), zap.Int("order_id", existing.ID))
		return existing, true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Order{}, false, fmt.Errorf("look up payment %s: %w", in.ProviderPaymentID, err)
	}

	now := s.now().UTC()
	est := delivery.Project(delivery.SeedFromTime(now), now)
	o := Order{
		UserID:          userID,
		TotalAmount:     float64(intent.AmountMinor) / 100,
		Status:          StatusConfirmed,
		ShippingAddress: intent.Notes.ShippingAddress,
		PaymentMethod:   PaymentMethodRazorpay,
		PaymentID:       in.ProviderPaymentID,
		ProviderOrderID: in.ProviderOrderID,
		PaymentStatus:   PaymentPaid,
		DeliveryDate:    &est.Date,
		DeliveryPhone:   &est.Phone,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.insertOrder(ctx, &o, now); err != nil {
			return err
		}
		for _, line := range intent.Notes.CartItems {
			if err := s.stock.DecreaseStock(ctx, line.ProductID, line.Quantity); err != nil {
				return fmt.Errorf("product %d: %w", line.ProductID, err)
			}
			pid := line.ProductID
			if err := s.repo.InsertItem(ctx, o.ID, Item{ProductID: &pid, Quantity: line.Quantity, Price: line.Price}); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrDuplicatePayment) {
		// a concurrent request committed the same payment first
		existing, ferr := s.repo.FindByPaymentID(ctx, in.ProviderPaymentID)
		if ferr != nil {
			return Order{}, false, fmt.Errorf("load order for payment %s: %w", in.ProviderPaymentID, ferr)
		}
		return existing, true, nil
	}
	if err != nil {
		log.Error("order commit rolled back", zap.Int("user_id", userID), zap.String("payment_id", in.ProviderPaymentID), zap.Error(err))
		return Order{}, false, err
	}

	purchased := make([]int, 0, len(intent.Notes.CartItems))
	for _, line := range intent.Notes.CartItems {
		purchased = append(purchased, line.ProductID)
	}
	if s.cart != nil {
		if err := s.cart.RemovePurchased(ctx, userID, purchased); err != nil {
			log.Warn("cart cleanup after order commit failed", zap.Int("order_id", o.ID), zap.Error(err))
		}
	}

	if stored, err := s.repo.GetForUser(ctx, o.ID, userID); err == nil {
		o = stored
	}
	log.Info("order committed", zap.Int("order_id", o.ID), zap.String("order_number", o.OrderNumber), zap.Float64("total_amount", o.TotalAmount))
	return o, false, nil
}

func (s *Service) insertOrder(ctx context.Context, o *Order, now time.Time) error {
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		number, err := s.orderNumber(now)
		if err != nil {
			return err
		}
		o.OrderNumber = number
		err = s.repo.Insert(ctx, o)
		if errors.Is(err, ErrOrderNumberTaken) {
			continue
		}
		return err
	}
	return ErrNoOrderNumber
}

func (s *Service) List(ctx context.Context, userID int) ([]Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, id int) (Order, error) {
	if id <= 0 {
		return Order{}, ErrNotFound
	}
	return s.repo.GetForUser(ctx, id, userID)
}

func (s *Service) UpdateStatus(ctx context.Context, id int, status string) (Order, error) {
	if !validStatus(status) {
		return Order{}, ErrInvalidStatus
	}
	if id <= 0 {
		return Order{}, ErrNotFound
	}
	return s.repo.UpdateStatus(ctx, id, status)
}

// NewOrderNumber formats ORD-<unix millis>-<6 random uppercase alphanumerics>.
func NewOrderNumber(t time.Time) (string, error) {
	suffix := make([]byte, orderNumberSuffixLen)
	limit := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("order number: %w", err)
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("ORD-%d-%s", t.UnixMilli(), suffix), nil
}
