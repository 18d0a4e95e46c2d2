package address

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/wichananm65/storefront-backend/internal/logging"
	"github.com/wichananm65/storefront-backend/internal/payment"
	"github.com/wichananm65/storefront-backend/internal/user"
	"go.uber.org/zap"
)

// Handler delegates address operations to the address service.
type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) RegisterProtectedRoutes(app fiber.Router) {
	app.Get("/api/v1/address", h.getAddresses)
	app.Post("/api/v1/address", h.addAddress)
	app.Delete("/api/v1/address/:id<int>", h.deleteAddress)
}

func (h *Handler) getAddresses(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	addrs, err := h.service.List(c.UserContext(), userID)
	if err != nil {
		logging.FromContext(c.UserContext()).Error("list addresses", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch addresses"})
	}
	return c.JSON(addrs)
}

func (h *Handler) addAddress(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	payload := new(payment.ShippingAddress)
	if err := c.BodyParser(payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	addr, err := h.service.Add(c.UserContext(), userID, *payload)
	switch {
	case err == nil:
		return c.Status(fiber.StatusCreated).JSON(addr)
	case errors.Is(err, ErrIncomplete):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		logging.FromContext(c.UserContext()).Error("add address", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save address"})
	}
}

func (h *Handler) deleteAddress(c *fiber.Ctx) error {
	userID, err := user.GetUserIDFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid address id"})
	}
	if err := h.service.Delete(c.UserContext(), userID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Address not found"})
		}
		logging.FromContext(c.UserContext()).Error("delete address", zap.Int("address_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete address"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
