package order

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/storefront-backend/internal/address"
	"github.com/wichananm65/storefront-backend/internal/logging"
	"github.com/wichananm65/storefront-backend/internal/payment"
	"github.com/wichananm65/storefront-backend/internal/product"
	"github.com/wichananm65/storefront-backend/internal/user"
	"go.uber.org/zap"
)

// Handler exposes checkout and order history.
type Handler struct {
	service *Service
	broker  *payment.Broker
	now     func() time.Time
}

func NewHandler(s *Service, b *payment.Broker) *Handler {
	return &Handler{service: s, broker: b, now: time.Now}
}

func (h *Handler) RegisterProtectedRoutes(app fiber.Router) {
	app.Post("/api/v1/orders/create-payment-intent", h.createPaymentIntent)
	app.Post("/api/v1/orders/verify-payment", h.verifyPayment)
	app.Get("/api/v1/orders", h.getOrders)
	app.Get("/api/v1/orders/:id<int>", h.getOrder)
	app.Put("/api/v1/orders/:id<int>/status", h.updateStatus)
}

// createIntentRequest takes the amount in minor units. Amount is the older
// checkout client's name for the same value.
type createIntentRequest struct {
	AmountMinor     int64                    `json:"amount_minor"`
	Amount          int64                    `json:"amount"`
	Currency        string                   `json:"currency"`
	CartItems       []payment.CartLine       `json:"cart_items"`
	ShippingAddress *payment.ShippingAddress `json:"shipping_address"`
	AddressID       int                      `json:"address_id"`
}

// verifyRequest accepts the provider's own field names as well, which is
// what the checkout widget hands back.
type verifyRequest struct {
	ProviderOrderID   string `json:"provider_order_id"`
	ProviderPaymentID string `json:"provider_payment_id"`
	ProviderSignature string `json:"provider_signature"`

	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (r verifyRequest) input() VerifyInput {
	in := VerifyInput{ProviderOrderID: r.ProviderOrderID, ProviderPaymentID: r.ProviderPaymentID, Signature: r.ProviderSignature}
	if in.ProviderOrderID == "" {
		in.ProviderOrderID = r.RazorpayOrderID
	}
	if in.ProviderPaymentID == "" {
		in.ProviderPaymentID = r.RazorpayPaymentID
	}
	if in.Signature == "" {
		in.Signature = r.RazorpaySignature
	}
	return in
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) createPaymentIntent(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	payload := new(createIntentRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	amount := payload.AmountMinor
	if amount == 0 {
		amount = payload.Amount
	}

	res, err := h.broker.CreateIntent(c.UserContext(), userID, payment.IntentRequest{
		AmountMinor:     amount,
		Currency:        payload.Currency,
		CartItems:       payload.CartItems,
		ShippingAddress: payload.ShippingAddress,
		AddressID:       payload.AddressID,
	})
	if err != nil {
		var perr *payment.ProviderError
		switch {
		case errors.As(err, &perr):
			logging.FromContext(c.UserContext()).Error("create payment intent", zap.Int("user_id", userID), zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": perr.UserMessage(), "retriable": perr.Retriable})
		case errors.Is(err, address.ErrNotFound):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Address not found"})
		case isIntentValidation(err):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		default:
			logging.FromContext(c.UserContext()).Error("create payment intent", zap.Int("user_id", userID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create payment order"})
		}
	}
	return c.JSON(res)
}

func isIntentValidation(err error) bool {
	for _, target := range []error{
		payment.ErrInvalidAmount, payment.ErrInvalidCurrency, payment.ErrEmptySnapshot,
		payment.ErrInvalidLine, payment.ErrAmountMismatch, payment.ErrMissingAddress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *Handler) verifyPayment(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	payload := new(verifyRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	o, replayed, err := h.service.Commit(c.UserContext(), userID, payload.input())
	if err != nil {
		var perr *payment.ProviderError
		switch {
		case errors.Is(err, ErrInvalidSignature):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payment signature"})
		case errors.Is(err, ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Payment does not belong to this user"})
		case errors.Is(err, payment.ErrIntentNotFound), errors.Is(err, ErrInvalidIntent):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown or unusable payment order"})
		case errors.Is(err, product.ErrInsufficientStock), errors.Is(err, product.ErrNotFound):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Some items are no longer available in the requested quantity"})
		case errors.As(err, &perr):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": perr.UserMessage(), "retriable": perr.Retriable})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Payment verification failed"})
		}
	}

	msg := "Payment verified and order created successfully"
	if replayed {
		msg = "Payment already processed"
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"replayed": replayed,
		"order":    o.View(h.now()),
		"message":  msg,
	})
}

func (h *Handler) getOrders(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	orders, err := h.service.List(c.UserContext(), userID)
	if err != nil {
		logging.FromContext(c.UserContext()).Error("list orders", zap.Int("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch orders"})
	}

	now := h.now()
	views := make([]View, 0, len(orders))
	for _, o := range orders {
		views = append(views, o.View(now))
	}
	return c.JSON(fiber.Map{"orders": views, "count": len(views)})
}

func (h *Handler) getOrder(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}

	o, err := h.service.Get(c.UserContext(), userID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Order not found"})
		}
		logging.FromContext(c.UserContext()).Error("get order", zap.Int("order_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch order"})
	}
	return c.JSON(fiber.Map{"order": o.View(h.now())})
}

func (h *Handler) updateStatus(c *fiber.Ctx) error {
	if !user.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Unauthorized"})
	}
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid order id"})
	}
	payload := new(statusRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	o, err := h.service.UpdateStatus(c.UserContext(), id, payload.Status)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"order": o.View(h.now())})
	case errors.Is(err, ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Order not found"})
	default:
		logging.FromContext(c.UserContext()).Error("update order status", zap.Int("order_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update order status"})
	}
}
