package cart

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/storefront-backend/internal/logging"
	"github.com/wichananm65/storefront-backend/internal/product"
	"github.com/wichananm65/storefront-backend/internal/user"
	"go.uber.org/zap"
)

// Handler delegates cart operations to the cart service.
type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) RegisterProtectedRoutes(app fiber.Router) {
	app.Get("/api/v1/cart", h.getCart)
	app.Post("/api/v1/cart", h.addToCart)
	app.Put("/api/v1/cart/:productId", h.updateQuantity)
	app.Delete("/api/v1/cart/:productId", h.removeItem)
	app.Delete("/api/v1/cart", h.clearCart)
}

type addRequest struct {
	ProductID int  `json:"product_id"`
	Quantity  *int `json:"quantity,omitempty"`
}

type updateRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) getCart(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	items, err := h.service.List(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, "list cart", err)
	}
	return c.JSON(items)
}

func (h *Handler) addToCart(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	payload := new(addRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	qty := 1
	if payload.Quantity != nil {
		qty = *payload.Quantity
	}

	it, err := h.service.Add(c.UserContext(), userID, payload.ProductID, qty)
	if err != nil {
		return h.fail(c, "add to cart", err)
	}
	return c.Status(fiber.StatusCreated).JSON(it)
}

func (h *Handler) updateQuantity(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	productID, err := strconv.Atoi(c.Params("productId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}
	payload := new(updateRequest)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	it, removed, err := h.service.SetQuantity(c.UserContext(), userID, productID, payload.Quantity)
	if err != nil {
		return h.fail(c, "update cart quantity", err)
	}
	if removed {
		return c.JSON(fiber.Map{"message": "Item removed from cart"})
	}
	return c.JSON(it)
}

func (h *Handler) removeItem(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	productID, err := strconv.Atoi(c.Params("productId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}
	if err := h.service.Remove(c.UserContext(), userID, productID); err != nil {
		return h.fail(c, "remove cart item", err)
	}
	return c.JSON(fiber.Map{"message": "Item removed from cart"})
}

func (h *Handler) clearCart(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	if err := h.service.Clear(c.UserContext(), userID); err != nil {
		return h.fail(c, "clear cart", err)
	}
	return c.JSON(fiber.Map{"message": "Cart cleared"})
}

func (h *Handler) fail(c *fiber.Ctx, op string, err error) error {
	var stockErr *InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":           "Insufficient stock",
			"available":       stockErr.Available,
			"requested":       stockErr.Requested,
			"current_in_cart": stockErr.CurrentInCart,
			"max_can_add":     stockErr.MaxCanAdd(),
		})
	case errors.Is(err, ErrInvalidProduct), errors.Is(err, ErrInvalidQuantity):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, product.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Product not found"})
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Cart item not found"})
	default:
		logging.FromContext(c.UserContext()).Error(op, zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Cart request failed"})
	}
}
